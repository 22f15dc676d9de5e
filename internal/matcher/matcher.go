// Package matcher decides which library entity a downloaded file fulfills.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// Thresholds are the minimum similarity scores for a structural match.
type Thresholds struct {
	ShowName   float64
	MovieTitle float64
	Album      float64
	Artist     float64
	Track      float64
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ShowName:   0.8,
		MovieTitle: 0.8,
		Album:      0.7,
		Artist:     0.7,
		Track:      0.7,
	}
}

// Repository is the read-only view of the library the matcher needs.
// Implemented by *library.Store.
type Repository interface {
	ListShows(libraryID int64) ([]*library.Show, error)
	FindEpisode(showID int64, season, episode int) (*library.Episode, error)
	GetEpisode(id int64) (*library.Episode, error)
	ListMovies(libraryID int64) ([]*library.Movie, error)
	GetMovie(id int64) (*library.Movie, error)
	ListAlbums(libraryID int64) ([]*library.Album, error)
	ListTracks(albumID int64) ([]*library.Track, error)
	ListAudiobooks(libraryID int64) ([]*library.Audiobook, error)
	ListChapters(audiobookID int64) ([]*library.Chapter, error)
}

// DownloadChecker reports entities already claimed by another download.
// Implemented by *download.MatchStore.
type DownloadChecker interface {
	IsEpisodeDownloading(episodeID, excludeDownloadID int64) (bool, error)
	IsMovieDownloading(movieID, excludeDownloadID int64) (bool, error)
}

// Matcher scores files against library entities.
type Matcher struct {
	repo        Repository
	downloading DownloadChecker
	tags        TagReader
	upgrade     UpgradePolicy
	thresholds  Thresholds
	log         *slog.Logger
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithThresholds overrides the default similarity thresholds.
func WithThresholds(t Thresholds) Option {
	return func(m *Matcher) {
		m.thresholds = t
	}
}

// WithTagReader sets the embedded-tag reader used for audio files.
func WithTagReader(r TagReader) Option {
	return func(m *Matcher) {
		m.tags = r
	}
}

// WithUpgradePolicy sets the policy deciding whether a file upgrades an
// already downloaded entity.
func WithUpgradePolicy(p UpgradePolicy) Option {
	return func(m *Matcher) {
		m.upgrade = p
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Matcher) {
		m.log = log
	}
}

// New creates a matcher. Embedded tags are read with FileTagReader unless
// overridden.
func New(repo Repository, downloading DownloadChecker, opts ...Option) *Matcher {
	m := &Matcher{
		repo:        repo,
		downloading: downloading,
		tags:        FileTagReader{},
		upgrade:     NeverUpgrade{},
		thresholds:  DefaultThresholds(),
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "matcher")
	return m
}

// Thresholds returns the thresholds in effect.
func (m *Matcher) Thresholds() Thresholds {
	return m.thresholds
}

// candidate is a structural match before policy is applied.
type candidate struct {
	target     library.Target
	confidence float64
}

// Match produces the match record for one file of d. Files that match
// nothing get an Unmatched target; only repository failures are errors.
// The record is not persisted.
func (m *Matcher) Match(ctx context.Context, d *download.Download, f download.FileEntry, libs []*library.Library) (*download.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rec := &download.MatchRecord{
		DownloadID: d.ID,
		FileIndex:  f.Index,
		FilePath:   f.Path,
		FileSize:   f.Size,
		MatchType:  download.MatchAuto,
		Quality:    release.ParseQuality(filepath.Base(f.Path)),
	}

	var (
		c      *candidate
		reason string
		err    error
	)
	switch release.Classify(f.Path) {
	case release.MediaSample:
		rec.Target = library.Sample{}
		rec.Confidence = 1
		return rec, nil
	case release.MediaVideo:
		c, reason, err = m.matchVideo(d, f, libs)
	case release.MediaAudio:
		c, reason, err = m.matchAudio(d, f, libs)
	default:
		rec.Target = library.Unmatched{Reason: "not a media file"}
		return rec, nil
	}
	if err != nil {
		return nil, err
	}

	if c == nil {
		m.log.Debug("file unmatched", "download_id", d.ID, "file", f.Path, "reason", reason)
		rec.Target = library.Unmatched{Reason: reason}
		return rec, nil
	}

	rec.Target = c.target
	rec.Confidence = c.confidence

	decision, err := m.ShouldDownload(ctx, c.target, rec.Quality, d.ID)
	if err != nil {
		return nil, err
	}
	rec.SkipDownload = decision.Skip
	rec.SkipReason = decision.Reason

	m.log.Debug("file matched", "download_id", d.ID, "file", f.Path, "target", c.target,
		"confidence", c.confidence, "skip", decision.Skip)
	return rec, nil
}

func librariesOf(libs []*library.Library, types ...library.Type) []*library.Library {
	var out []*library.Library
	for _, l := range libs {
		for _, t := range types {
			if l.Type == t {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// titleScore compares two titles after reducing them to matching keys.
func titleScore(a, b string) float64 {
	return release.Similarity(release.CleanTitle(a), release.CleanTitle(b))
}

func yearCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return true
	}
	d := a - b
	return d >= -1 && d <= 1
}

// matchVideo tries the episode interpretation first and the movie one only
// when no season and episode were recovered.
func (m *Matcher) matchVideo(d *download.Download, f download.FileEntry, libs []*library.Library) (*candidate, string, error) {
	if ep, ok := release.ParseEpisode(filepath.Base(f.Path)); ok {
		if ep.Show == "" {
			// "S01E02.mkv" inside a named release folder
			if outer, ok := release.ParseEpisode(d.Name); ok {
				ep.Show, ep.Year = outer.Show, outer.Year
			}
		}
		return m.matchEpisode(ep, librariesOf(libs, library.TypeTV))
	}
	return m.matchMovie(d, f, librariesOf(libs, library.TypeMovie))
}

func (m *Matcher) matchEpisode(info release.EpisodeInfo, libs []*library.Library) (*candidate, string, error) {
	if info.Show == "" {
		return nil, fmt.Sprintf("no show name for S%02dE%02d", info.Season, info.Episode), nil
	}
	if len(libs) == 0 {
		return nil, "no tv library", nil
	}

	var (
		best      *library.Show
		bestScore float64
	)
	for _, l := range libs {
		shows, err := m.repo.ListShows(l.ID)
		if err != nil {
			return nil, "", fmt.Errorf("list shows: %w", err)
		}
		for _, s := range shows {
			if info.Year != 0 && s.Year != 0 && info.Year != s.Year {
				continue
			}
			if score := titleScore(s.Name, info.Show); score > bestScore {
				best, bestScore = s, score
			}
		}
	}
	if best == nil || bestScore < m.thresholds.ShowName {
		return nil, fmt.Sprintf("no show matching %q", info.Show), nil
	}

	ep, err := m.repo.FindEpisode(best.ID, info.Season, info.Episode)
	if errors.Is(err, library.ErrNotFound) {
		return nil, fmt.Sprintf("%s S%02dE%02d not in library", best.Name, info.Season, info.Episode), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find episode: %w", err)
	}

	return &candidate{
		target: library.EpisodeTarget{
			EpisodeID: ep.ID,
			ShowID:    best.ID,
			ShowName:  best.Name,
			Season:    ep.Season,
			Episode:   ep.Episode,
		},
		confidence: bestScore,
	}, "", nil
}

// matchMovie parses the file name and then the download name, keeping the
// better match.
func (m *Matcher) matchMovie(d *download.Download, f download.FileEntry, libs []*library.Library) (*candidate, string, error) {
	if len(libs) == 0 {
		return nil, "no movie library", nil
	}

	var infos []release.MovieInfo
	for _, name := range []string{filepath.Base(f.Path), d.Name} {
		if info, ok := release.ParseMovie(name); ok {
			infos = append(infos, info)
		}
	}
	if len(infos) == 0 {
		return nil, "could not parse an episode or movie from the name", nil
	}

	var movies []*library.Movie
	for _, l := range libs {
		list, err := m.repo.ListMovies(l.ID)
		if err != nil {
			return nil, "", fmt.Errorf("list movies: %w", err)
		}
		movies = append(movies, list...)
	}

	var (
		best      *library.Movie
		bestScore float64
	)
	for _, info := range infos {
		for _, mv := range movies {
			if !yearCompatible(info.Year, mv.Year) {
				continue
			}
			if score := titleScore(mv.Title, info.Title); score > bestScore {
				best, bestScore = mv, score
			}
		}
	}
	if best == nil || bestScore < m.thresholds.MovieTitle {
		if infos[0].Year != 0 {
			return nil, fmt.Sprintf("no movie matching %q (%d)", infos[0].Title, infos[0].Year), nil
		}
		return nil, fmt.Sprintf("no movie matching %q", infos[0].Title), nil
	}

	return &candidate{
		target:     library.MovieTarget{MovieID: best.ID, Title: best.Title, Year: best.Year},
		confidence: bestScore,
	}, "", nil
}

// ParseMovieName exposes the movie interpretation used for matching, for
// callers that discover new movies from unmatched files.
func ParseMovieName(d *download.Download, f download.FileEntry) (release.MovieInfo, bool) {
	for _, name := range []string{filepath.Base(f.Path), d.Name} {
		if info, ok := release.ParseMovie(name); ok {
			return info, true
		}
	}
	return release.MovieInfo{}, false
}
