package matcher

import (
	"context"
	"fmt"

	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// Decision is the advisory outcome of ShouldDownload.
type Decision struct {
	Skip   bool
	Reason string
}

// UpgradePolicy decides whether a file of the given quality should replace
// an entity's existing file.
type UpgradePolicy interface {
	IsUpgrade(ctx context.Context, target library.Target, q release.Quality) bool
}

// NeverUpgrade treats nothing as an upgrade. It is the default until quality
// comparison rules exist.
type NeverUpgrade struct{}

// IsUpgrade always returns false.
func (NeverUpgrade) IsUpgrade(context.Context, library.Target, release.Quality) bool { return false }

// ShouldDownload decides whether the file matched to target is still wanted.
// It only reads state. The downloading check is a plain query, so two
// downloads racing for one entity can both pass; the dedup sweep settles it.
func (m *Matcher) ShouldDownload(ctx context.Context, target library.Target, q release.Quality, downloadID int64) (Decision, error) {
	switch t := target.(type) {
	case library.EpisodeTarget:
		ep, err := m.repo.GetEpisode(t.EpisodeID)
		if err != nil {
			return Decision{}, fmt.Errorf("episode policy: %w", err)
		}
		if ep.Status == library.StatusIgnored {
			return Decision{Skip: true, Reason: "episode is ignored"}, nil
		}
		if ep.Status == library.StatusDownloaded && !m.upgrade.IsUpgrade(ctx, target, q) {
			return Decision{Skip: true, Reason: "episode already downloaded"}, nil
		}
		busy, err := m.downloading.IsEpisodeDownloading(t.EpisodeID, downloadID)
		if err != nil {
			return Decision{}, fmt.Errorf("episode policy: %w", err)
		}
		if busy {
			return Decision{Skip: true, Reason: "episode is downloading in another download"}, nil
		}
		return Decision{}, nil

	case library.MovieTarget:
		mv, err := m.repo.GetMovie(t.MovieID)
		if err != nil {
			return Decision{}, fmt.Errorf("movie policy: %w", err)
		}
		if !mv.Monitored {
			return Decision{Skip: true, Reason: "movie is not monitored"}, nil
		}
		if mv.HasFile {
			return Decision{Skip: true, Reason: "movie already has a file"}, nil
		}
		busy, err := m.downloading.IsMovieDownloading(t.MovieID, downloadID)
		if err != nil {
			return Decision{}, fmt.Errorf("movie policy: %w", err)
		}
		if busy {
			return Decision{Skip: true, Reason: "movie is downloading in another download"}, nil
		}
		return Decision{}, nil

	case library.TrackTarget, library.ChapterTarget:
		return Decision{}, nil

	case library.Unmatched, library.Sample:
		return Decision{}, nil

	default:
		return Decision{}, fmt.Errorf("policy for %T: %w", target, library.ErrUnknownTarget)
	}
}
