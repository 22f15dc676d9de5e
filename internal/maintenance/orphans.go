// internal/maintenance/orphans.go
package maintenance

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// CleanOrphans removes media files under the library root that no file
// record points at. A file is only deleted when another hard link to its
// inode exists, so the data survives elsewhere; single-link orphans are
// logged and left alone.
func (s *Sweeper) CleanOrphans(ctx context.Context, lib *library.Library) (*Report, error) {
	report := &Report{}
	log := s.log.With("library", lib.Name)

	err := filepath.WalkDir(lib.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == lib.Root {
				return fs.SkipAll
			}
			report.errorf("walk %s: %v", path, err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == importer.QuarantineDir && path != lib.Root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !release.IsMediaFile(path) {
			return nil
		}

		known, err := s.library.FileExists(path)
		if err != nil {
			return err
		}
		if known {
			return nil
		}

		links, err := linkCount(path)
		if err != nil {
			report.errorf("stat %s: %v", path, err)
			return nil
		}
		if links < 2 {
			log.Info("orphan kept, no other link", "path", path)
			report.OrphansKept++
			return nil
		}
		if err := os.Remove(path); err != nil {
			report.errorf("remove %s: %v", path, err)
			return nil
		}
		report.OrphansRemoved++
		removedTotal.WithLabelValues("orphans").Inc()
		s.record(&library.File{LibraryID: lib.ID, Path: path}, "orphan")
		log.Info("orphan removed", "path", path, "links", links)
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, nil
}

func linkCount(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Nlink), nil
}
