package matcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// audioKey is what is known about an audio file before matching.
type audioKey struct {
	artist string // artist for music, author for audiobooks
	album  string // album title or book title
	title  string // track or chapter title
	disc   int
	number int // track or chapter number, 0 if unknown
}

// audioKeyFor reads embedded tags and falls back to the download name and
// the enclosing folder for the album, and to the filename for the track.
func (m *Matcher) audioKeyFor(d *download.Download, f download.FileEntry) audioKey {
	var key audioKey

	if m.tags != nil {
		tags, err := m.tags.ReadTags(f.Path)
		switch {
		case err == nil:
			key.artist = tags.AlbumArtist
			if key.artist == "" {
				key.artist = tags.Artist
			}
			key.album, key.title = tags.Album, tags.Title
			key.disc, key.number = tags.Disc, tags.Track
		case !errors.Is(err, ErrNoTags):
			m.log.Debug("read tags failed", "file", f.Path, "error", err)
		}
	}

	if key.artist == "" || key.album == "" {
		for _, name := range []string{d.Name, filepath.Base(filepath.Dir(f.Path))} {
			if ak, ok := release.ParseAlbumKey(name); ok {
				key.artist, key.album = ak.Artist, ak.Album
				break
			}
		}
	}

	if key.number == 0 {
		if disc, n, ok := release.ParseTrackNumber(filepath.Base(f.Path)); ok {
			key.number = n
			if key.disc == 0 {
				key.disc = disc
			}
		}
	}
	if key.title == "" {
		key.title = release.TrackTitle(filepath.Base(f.Path))
	}
	return key
}

// owner is a scored album or audiobook candidate.
type owner struct {
	album  *library.Album
	book   *library.Audiobook
	score  float64
	titles float64 // album/book title similarity
	people float64 // artist/author similarity
}

func (m *Matcher) matchAudio(d *download.Download, f download.FileEntry, libs []*library.Library) (*candidate, string, error) {
	key := m.audioKeyFor(d, f)
	if key.album == "" || key.artist == "" {
		return nil, "no artist and album in tags or download name", nil
	}

	music := librariesOf(libs, library.TypeMusic)
	books := librariesOf(libs, library.TypeAudiobook)
	if len(music) == 0 && len(books) == 0 {
		return nil, "no music or audiobook library", nil
	}

	best, err := m.bestOwner(key, music, books)
	if err != nil {
		return nil, "", err
	}
	if best == nil {
		return nil, fmt.Sprintf("no album matching %q by %q", key.album, key.artist), nil
	}

	ownerScore := (best.titles + best.people) / 2
	if best.album != nil {
		tracks, err := m.repo.ListTracks(best.album.ID)
		if err != nil {
			return nil, "", fmt.Errorf("list tracks: %w", err)
		}
		tr, score := pickTrack(tracks, key, m.thresholds.Track)
		if tr == nil {
			return nil, fmt.Sprintf("no track matching %q on %s - %s", key.title, best.album.Artist, best.album.Title), nil
		}
		return &candidate{
			target:     library.TrackTarget{TrackID: tr.ID, AlbumID: best.album.ID, Title: tr.Title, TrackNumber: tr.TrackNumber},
			confidence: ownerScore * score,
		}, "", nil
	}

	chapters, err := m.repo.ListChapters(best.book.ID)
	if err != nil {
		return nil, "", fmt.Errorf("list chapters: %w", err)
	}
	ch, score := pickChapter(chapters, key, m.thresholds.Track)
	if ch == nil {
		return nil, fmt.Sprintf("no chapter matching %q in %s - %s", key.title, best.book.Author, best.book.Title), nil
	}
	return &candidate{
		target:     library.ChapterTarget{ChapterID: ch.ID, AudiobookID: best.book.ID, ChapterNumber: ch.ChapterNumber},
		confidence: ownerScore * score,
	}, "", nil
}

// bestOwner returns the album or audiobook whose title and artist both
// exceed their thresholds with the highest combined score.
func (m *Matcher) bestOwner(key audioKey, music, books []*library.Library) (*owner, error) {
	var best *owner
	consider := func(o owner) {
		if o.titles <= m.thresholds.Album || o.people <= m.thresholds.Artist {
			return
		}
		o.score = o.titles + o.people
		if best == nil || o.score > best.score {
			best = &o
		}
	}

	for _, l := range music {
		albums, err := m.repo.ListAlbums(l.ID)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
		for _, a := range albums {
			consider(owner{album: a, titles: titleScore(a.Title, key.album), people: titleScore(a.Artist, key.artist)})
		}
	}
	for _, l := range books {
		list, err := m.repo.ListAudiobooks(l.ID)
		if err != nil {
			return nil, fmt.Errorf("list audiobooks: %w", err)
		}
		for _, b := range list {
			consider(owner{book: b, titles: titleScore(b.Title, key.album), people: titleScore(b.Author, key.artist)})
		}
	}
	return best, nil
}

// pickTrack matches by track number (disc aware) and falls back to title
// similarity above threshold.
func pickTrack(tracks []*library.Track, key audioKey, threshold float64) (*library.Track, float64) {
	if key.number > 0 {
		for _, tr := range tracks {
			if tr.TrackNumber == key.number && (key.disc == 0 || tr.Disc == key.disc) {
				return tr, 1
			}
		}
	}

	var (
		best      *library.Track
		bestScore float64
	)
	for _, tr := range tracks {
		if score := release.Similarity(tr.Title, key.title); score > threshold && score > bestScore {
			best, bestScore = tr, score
		}
	}
	return best, bestScore
}

// pickChapter is pickTrack for audiobooks. A book with a single chapter
// takes any file that matched the book.
func pickChapter(chapters []*library.Chapter, key audioKey, threshold float64) (*library.Chapter, float64) {
	if key.number > 0 {
		for _, ch := range chapters {
			if ch.ChapterNumber == key.number {
				return ch, 1
			}
		}
	}

	var (
		best      *library.Chapter
		bestScore float64
	)
	for _, ch := range chapters {
		if ch.Title == "" {
			continue
		}
		if score := release.Similarity(ch.Title, key.title); score > threshold && score > bestScore {
			best, bestScore = ch, score
		}
	}
	if best == nil && len(chapters) == 1 {
		return chapters[0], 1
	}
	return best, bestScore
}
