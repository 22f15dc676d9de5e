// internal/maintenance/dirs.go
package maintenance

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
)

// CleanEmptyDirs removes directories under the library root that hold no
// files, deepest first. Folders of registered shows and their seasons are
// kept even when empty.
func (s *Sweeper) CleanEmptyDirs(ctx context.Context, lib *library.Library) (*Report, error) {
	report := &Report{}
	log := s.log.With("library", lib.Name)

	protected, err := s.protectedDirs(lib)
	if err != nil {
		return nil, err
	}

	var dirs []string
	err = filepath.WalkDir(lib.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == lib.Root {
				return fs.SkipAll
			}
			report.errorf("walk %s: %v", path, err)
			return nil
		}
		if !d.IsDir() || path == lib.Root {
			return nil
		}
		if d.Name() == importer.QuarantineDir {
			return fs.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return report, err
	}

	sort.SliceStable(dirs, func(i, j int) bool { return depth(dirs[i]) > depth(dirs[j]) })
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if protected[dir] {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			report.errorf("read %s: %v", dir, err)
			continue
		}
		if len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil {
			report.errorf("remove %s: %v", dir, err)
			continue
		}
		report.DirsRemoved++
		removedTotal.WithLabelValues("empty_dirs").Inc()
		log.Debug("empty directory removed", "path", dir)
	}
	return report, nil
}

// protectedDirs returns the folders every known season of every show of a
// TV library would be placed in, together with their parents up to the root.
func (s *Sweeper) protectedDirs(lib *library.Library) (map[string]bool, error) {
	out := make(map[string]bool)
	if lib.Type != library.TypeTV {
		return out, nil
	}
	shows, err := s.library.ListShows(lib.ID)
	if err != nil {
		return nil, err
	}
	root := filepath.Clean(lib.Root)
	for _, show := range shows {
		seasons, err := s.library.ListSeasons(show.ID)
		if err != nil {
			return nil, err
		}
		if len(seasons) == 0 {
			seasons = []int{1}
		}
		for _, season := range seasons {
			desc := &library.Description{
				Library:  lib,
				Target:   library.EpisodeTarget{ShowID: show.ID, ShowName: show.Name, Season: season, Episode: 1},
				Show:     show.Name,
				Year:     show.Year,
				Season:   season,
				Episode:  1,
				BasePath: show.Path,
			}
			planned := absUnder(root, importer.PlanFor(lib, desc, "placeholder.mkv"))
			for dir := filepath.Dir(planned); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
				out[dir] = true
			}
			if show.Path != "" {
				out[absUnder(root, show.Path)] = true
			}
		}
	}
	return out, nil
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}
