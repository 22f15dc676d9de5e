// Package archive expands archive containers found in completed downloads.
// Zip files are read in-process; rar and 7z are handed to external tools.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/vmunix/librarr/internal/importer"
)

// MarkerFile is written into a directory once its archives are expanded.
const MarkerFile = ".librarr-expanded"

var (
	// ErrUnsupported indicates no extractor is available for an archive.
	ErrUnsupported = errors.New("unsupported archive format")

	// ErrUnsafeEntry indicates an archive entry would land outside the target.
	ErrUnsafeEntry = errors.New("archive entry escapes target directory")
)

// partN matches the volume number of multi-part rar sets.
var partN = regexp.MustCompile(`(?i)\.part0*(\d+)\.rar$`)

// Runner executes an external extraction tool.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) error
}

type commandRunner struct{}

func (commandRunner) Run(ctx context.Context, binary string, args ...string) error {
	out, err := exec.CommandContext(ctx, binary, args...).CombinedOutput() //nolint:gosec
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(binary), err, msg)
	}
	return nil
}

// Option configures an Expander.
type Option func(*Expander)

// WithUnrar sets the unrar binary. Empty disables rar support.
func WithUnrar(path string) Option {
	return func(e *Expander) { e.unrar = path }
}

// WithSevenZip sets the 7z binary. Empty disables 7z support.
func WithSevenZip(path string) Option {
	return func(e *Expander) { e.sevenZip = path }
}

// WithRunner injects the command runner (primarily for tests).
func WithRunner(r Runner) Option {
	return func(e *Expander) {
		if r != nil {
			e.run = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Expander) {
		if l != nil {
			e.log = l
		}
	}
}

// Expander unpacks archives next to themselves.
type Expander struct {
	unrar    string
	sevenZip string
	run      Runner
	log      *slog.Logger
}

// New creates an Expander. Without options only zip is supported.
func New(opts ...Option) *Expander {
	e := &Expander{run: commandRunner{}, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "archive")
	return e
}

// IsArchive reports whether path names a container this package knows. For
// multi-part rar sets only the first volume counts.
func IsArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip", ".7z":
		return true
	case ".rar":
		if m := partN.FindStringSubmatch(path); m != nil {
			return m[1] == "1"
		}
		return true
	}
	return false
}

// NeedsExpansion reports whether dir holds archives and has not been
// expanded yet.
func (e *Expander) NeedsExpansion(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, MarkerFile)); err == nil {
		return false
	}
	archives, err := findArchives(dir)
	return err == nil && len(archives) > 0
}

// Expand extracts every archive under dir into the archive's own directory
// and returns dir. The marker is written only when all archives succeeded.
func (e *Expander) Expand(ctx context.Context, dir string) (string, error) {
	archives, err := findArchives(dir)
	if err != nil {
		return dir, err
	}

	var errs []error
	for _, a := range archives {
		if err := ctx.Err(); err != nil {
			return dir, err
		}
		e.log.Info("expanding archive", "path", a)
		if err := e.expandOne(ctx, a); err != nil {
			e.log.Warn("expand failed", "path", a, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(a), err))
		}
	}
	if len(errs) > 0 {
		return dir, errors.Join(errs...)
	}

	if err := os.WriteFile(filepath.Join(dir, MarkerFile), nil, 0644); err != nil {
		return dir, fmt.Errorf("write marker: %w", err)
	}
	return dir, nil
}

func (e *Expander) expandOne(ctx context.Context, path string) error {
	dest := filepath.Dir(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		return extractZip(path, dest)
	case ".rar":
		if e.unrar == "" {
			return fmt.Errorf("%w: no unrar binary configured", ErrUnsupported)
		}
		return e.run.Run(ctx, e.unrar, "x", "-o-", "-y", path, dest+string(filepath.Separator))
	case ".7z":
		if e.sevenZip == "" {
			return fmt.Errorf("%w: no 7z binary configured", ErrUnsupported)
		}
		return e.run.Run(ctx, e.sevenZip, "x", "-y", "-aos", "-o"+dest, path)
	}
	return ErrUnsupported
}

func findArchives(dir string) ([]string, error) {
	var archives []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsArchive(path) {
			archives = append(archives, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return archives, nil
}

func extractZip(path, dest string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !importer.IsWithin(target, dest) {
			return fmt.Errorf("%w: %s", ErrUnsafeEntry, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if _, err := os.Lstat(target); err == nil {
			continue // already extracted
		}
		if err := writeEntry(f, target); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return err
	}
	return out.Close()
}
