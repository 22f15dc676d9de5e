package download

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxFetchBytes bounds FetchBytes responses. Torrent metainfo is small.
const maxFetchBytes = 16 << 20

// FileEntry is one file within a download, addressed by its index.
type FileEntry struct {
	Index int
	Path  string
	Size  int64
}

// Name returns the base name of the file.
func (f FileEntry) Name() string { return filepath.Base(f.Path) }

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks . Source

// Source lists a download's files and fetches release payloads.
type Source interface {
	// ListFiles returns the files of d. Indices must be stable between calls.
	ListFiles(ctx context.Context, d *Download) ([]FileEntry, error)
	// FetchBytes downloads the payload behind link, e.g. a .torrent file.
	FetchBytes(ctx context.Context, identifier, link string) ([]byte, error)
}

// DiskSource reads downloads that have already been materialized on disk.
type DiskSource struct {
	httpClient *http.Client
}

// DiskSourceOption configures a DiskSource.
type DiskSourceOption func(*DiskSource)

// WithHTTPClient sets the client used by FetchBytes.
func WithHTTPClient(hc *http.Client) DiskSourceOption {
	return func(s *DiskSource) {
		s.httpClient = hc
	}
}

// NewDiskSource creates a source reading download paths from the local filesystem.
func NewDiskSource(opts ...DiskSourceOption) *DiskSource {
	s := &DiskSource{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListFiles walks the download path. A download that is a single file yields
// one entry. Entries are in lexical path order and hidden files are skipped.
func (s *DiskSource) ListFiles(ctx context.Context, d *Download) ([]FileEntry, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("stat download %d: %w", d.ID, err)
	}
	if !info.IsDir() {
		return []FileEntry{{Index: 0, Path: d.Path, Size: info.Size()}}, nil
	}

	var entries []FileEntry
	err = filepath.WalkDir(d.Path, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(de.Name(), ".") && path != d.Path {
			if de.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if de.IsDir() || !de.Type().IsRegular() {
			return nil
		}
		fi, err := de.Info()
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{Index: len(entries), Path: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk download %d: %w", d.ID, err)
	}
	return entries, nil
}

// FetchBytes downloads link over HTTP. identifier only labels errors.
func (s *DiskSource) FetchBytes(ctx context.Context, identifier, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", identifier, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", identifier, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", identifier, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", identifier, err)
	}
	return data, nil
}
