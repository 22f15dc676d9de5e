// internal/processing/automatch.go
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/matcher"
	"github.com/vmunix/librarr/pkg/release"
)

// autoMatch matches every file of d that has no record yet against all
// libraries and persists the records worth processing. Files that match
// nothing are reported in t and get no record, so a later run tries them
// again.
func (p *Processor) autoMatch(ctx context.Context, d *download.Download, files []download.FileEntry, t *tally, log *slog.Logger) ([]*download.MatchRecord, error) {
	existing, err := p.matches.ListByDownload(d.ID)
	if err != nil {
		return nil, err
	}
	matched := make(map[int]bool, len(existing))
	for _, r := range existing {
		matched[r.FileIndex] = true
	}

	libs, err := p.library.ListLibraries(nil)
	if err != nil {
		return nil, err
	}
	if len(libs) == 0 {
		t.messages = append(t.messages, "no libraries configured")
		return nil, nil
	}

	tried := make(map[string]bool)
	var records []*download.MatchRecord
	for _, f := range files {
		if matched[f.Index] {
			continue
		}
		rec, err := p.matcher.Match(ctx, d, f, libs)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", f.Name(), err)
		}

		if _, ok := rec.Target.(library.Unmatched); ok && p.discover(ctx, d, f, libs, tried, log) {
			if rec, err = p.matcher.Match(ctx, d, f, libs); err != nil {
				return nil, fmt.Errorf("match %s: %w", f.Name(), err)
			}
		}

		if u, ok := rec.Target.(library.Unmatched); ok {
			if release.IsMediaFile(f.Path) {
				t.messages = append(t.messages, fmt.Sprintf("%s: %s", f.Name(), u.Reason))
			}
			continue
		}

		if err := p.matches.Create(rec); err != nil {
			if errors.Is(err, download.ErrDuplicateMatch) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}

	log.Info("auto-match finished", "files", len(files), "records", len(records))
	return records, nil
}

// discover tries to add the movie an unmatched video file names to a
// library with auto_add_discovered set. Each title is looked up once per
// run. It reports whether a movie was added or found.
func (p *Processor) discover(ctx context.Context, d *download.Download, f download.FileEntry,
	libs []*library.Library, tried map[string]bool, log *slog.Logger) bool {
	if p.discoverer == nil || release.Classify(f.Path) != release.MediaVideo {
		return false
	}
	if _, ok := release.ParseEpisode(filepath.Base(f.Path)); ok {
		return false
	}
	info, ok := matcher.ParseMovieName(d, f)
	if !ok {
		return false
	}

	key := fmt.Sprintf("%s|%d", release.Normalize(info.Title), info.Year)
	if tried[key] {
		return false
	}
	tried[key] = true

	for _, lib := range libs {
		if lib.Type != library.TypeMovie || !lib.AutoAddDiscovered {
			continue
		}
		dctx, cancel := context.WithTimeout(ctx, p.discoverTimeout)
		m, err := p.discoverer.DiscoverMovie(dctx, lib, info.Title, info.Year)
		cancel()
		if err != nil {
			log.Info("discovery found nothing", "library", lib.Name, "title", info.Title, "year", info.Year, "error", err)
			continue
		}
		log.Info("movie discovered", "library", lib.Name, "movie_id", m.ID, "title", m.Title, "year", m.Year)
		return true
	}
	return false
}
