package tmdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// DefaultMinScore is the title similarity a search result needs before it
// is added to a library.
const DefaultMinScore = 0.85

// Searcher looks movies up by title.
type Searcher interface {
	SearchMovie(ctx context.Context, title string, year int) ([]Movie, error)
}

// Discoverer adds movies found on TMDB to a library so files of previously
// unknown movies can be matched.
type Discoverer struct {
	search   Searcher
	store    *library.Store
	minScore float64
	log      *slog.Logger
}

// NewDiscoverer creates a discoverer writing to store.
func NewDiscoverer(search Searcher, store *library.Store, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{
		search:   search,
		store:    store,
		minScore: DefaultMinScore,
		log:      log.With("component", "discover"),
	}
}

// DiscoverMovie finds title on TMDB and adds it to lib as a monitored,
// wanted movie. A movie already in lib with the same TMDB ID is returned
// as is. Returns ErrNotFound when no result is close enough.
func (d *Discoverer) DiscoverMovie(ctx context.Context, lib *library.Library, title string, year int) (*library.Movie, error) {
	results, err := d.search.SearchMovie(ctx, title, year)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", title, err)
	}
	if len(results) == 0 && year > 0 {
		// Release years are often off by one against TMDB's.
		if results, err = d.search.SearchMovie(ctx, title, 0); err != nil {
			return nil, fmt.Errorf("search %q: %w", title, err)
		}
	}

	best, score := d.pick(title, year, results)
	if best == nil {
		return nil, fmt.Errorf("%q (%d): %w", title, year, ErrNotFound)
	}

	existing, err := d.store.ListMovies(lib.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if m.TMDBID != nil && *m.TMDBID == best.ID {
			return m, nil
		}
	}

	tmdbID := best.ID
	m := &library.Movie{
		LibraryID: lib.ID,
		Title:     best.Title,
		Year:      best.Year(),
		TMDBID:    &tmdbID,
		Monitored: true,
		Status:    library.StatusWanted,
	}
	if err := d.store.AddMovie(m); err != nil {
		return nil, fmt.Errorf("add discovered movie: %w", err)
	}
	d.log.Info("movie discovered", "library", lib.Name, "title", m.Title, "year", m.Year, "tmdb_id", tmdbID, "score", score)
	return m, nil
}

func (d *Discoverer) pick(title string, year int, results []Movie) (*Movie, float64) {
	want := release.CleanTitle(title)
	var (
		best      *Movie
		bestScore float64
	)
	for i := range results {
		r := &results[i]
		if y := r.Year(); year > 0 && y > 0 && (y-year > 1 || year-y > 1) {
			continue
		}
		score := release.Similarity(want, release.CleanTitle(r.Title))
		if r.Original != "" {
			score = max(score, release.Similarity(want, release.CleanTitle(r.Original)))
		}
		if score < d.minScore {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && r.Popularity > best.Popularity) {
			best, bestScore = r, score
		}
	}
	return best, bestScore
}
