// internal/maintenance/dedup.go
package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// Score weights. Location outranks quality; size only breaks ties.
const (
	scoreCanonical    = 1000
	scoreOrganized    = 500
	scoreResPerTier   = 100
	scoreCodecPerTier = 10
)

// Score rates a file for keeping. canonical reports whether the file sits
// where the naming pattern would place it.
func Score(f *library.File, canonical bool) int {
	score := 0
	if canonical {
		score += scoreCanonical
	}
	if f.Organized {
		score += scoreOrganized
	}
	score += release.ResolutionRank(f.Resolution) * scoreResPerTier
	codec := f.VideoCodec
	if codec == "" {
		codec = f.AudioCodec
	}
	score += release.CodecRank(codec) * scoreCodecPerTier
	return score
}

type scored struct {
	file  *library.File
	score int
}

// Dedup keeps the best file of every entity that has several and deletes
// the rest from disk and database.
func (s *Sweeper) Dedup(ctx context.Context) (*Report, error) {
	report := &Report{}
	keys, err := s.library.ListDuplicateKeys()
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		files, err := s.library.ListFilesForTarget(key)
		if err != nil {
			return report, err
		}
		if len(files) < 2 {
			continue
		}
		ranked := s.rank(key, files)
		winner := ranked[0].file
		log := s.log.With("target", key, "kept", winner.Path)

		for _, loser := range ranked[1:] {
			f := loser.file
			if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("remove duplicate", "path", f.Path, "error", err)
				report.errorf("remove %s: %v", f.Path, err)
				continue
			}
			if err := s.library.DeleteFile(f.ID); err != nil && !errors.Is(err, library.ErrNotFound) {
				report.errorf("delete file record %d: %v", f.ID, err)
				continue
			}
			report.DuplicatesRemoved++
			removedTotal.WithLabelValues("dedup").Inc()
			s.record(f, "duplicate")
			log.Info("duplicate removed", "path", f.Path, "score", loser.score, "kept_score", ranked[0].score)
		}
	}
	return report, nil
}

// rank orders files best first: score, then size, then age.
func (s *Sweeper) rank(key library.Key, files []*library.File) []scored {
	canonical := s.canonicalPaths(key, files)
	ranked := make([]scored, len(files))
	for i, f := range files {
		ranked[i] = scored{file: f, score: Score(f, canonical[f.ID])}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.file.SizeBytes != b.file.SizeBytes {
			return a.file.SizeBytes > b.file.SizeBytes
		}
		return a.file.ID < b.file.ID
	})
	return ranked
}

// canonicalPaths reports, per file ID, whether the file is at its planned
// location. An entity that cannot be described has no canonical files.
func (s *Sweeper) canonicalPaths(key library.Key, files []*library.File) map[int64]bool {
	out := make(map[int64]bool, len(files))
	desc, err := s.library.Describe(files[0].Target())
	if err != nil {
		s.log.Warn("describe duplicate target", "target", key, "error", err)
		return out
	}
	for _, f := range files {
		planned := absUnder(desc.Library.Root, importer.PlanFor(desc.Library, desc, filepath.Base(f.Path)))
		out[f.ID] = planned == filepath.Clean(f.Path)
	}
	return out
}
