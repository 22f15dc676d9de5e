package library

import (
	"fmt"
)

// Description is everything known about the entity a target points at,
// flattened for naming. Fields that do not apply to the kind are zero.
type Description struct {
	Library *Library
	Target  Target // the target with every descriptive field filled in

	Show    string
	Season  int
	Episode int
	Title   string // episode, movie, track or book title
	Year    int

	Artist string
	Album  string
	Disc   int
	Track  int

	Author         string
	Series         string
	SeriesPosition string
	Narrator       string
	Chapter        int

	// BasePath is the folder recorded on the owning show, movie, album or
	// audiobook, if any. It overrides pattern-derived folder naming.
	BasePath string
}

// Describe loads the entity behind t together with its owner and library.
// Returns ErrUnknownTarget for pseudo variants and ErrNotFound for dangling IDs.
func (s *Store) Describe(t Target) (*Description, error) {
	var (
		d         = &Description{}
		libraryID int64
	)

	switch v := t.(type) {
	case EpisodeTarget:
		ep, err := s.GetEpisode(v.EpisodeID)
		if err != nil {
			return nil, err
		}
		show, err := s.GetShow(ep.ShowID)
		if err != nil {
			return nil, err
		}
		libraryID = show.LibraryID
		d.Show, d.Season, d.Episode, d.Title, d.Year = show.Name, ep.Season, ep.Episode, ep.Title, show.Year
		d.BasePath = show.Path
		d.Target = EpisodeTarget{EpisodeID: ep.ID, ShowID: show.ID, ShowName: show.Name, Season: ep.Season, Episode: ep.Episode}

	case MovieTarget:
		m, err := s.GetMovie(v.MovieID)
		if err != nil {
			return nil, err
		}
		libraryID = m.LibraryID
		d.Title, d.Year, d.BasePath = m.Title, m.Year, m.Path
		d.Target = MovieTarget{MovieID: m.ID, Title: m.Title, Year: m.Year}

	case TrackTarget:
		tr, err := s.GetTrack(v.TrackID)
		if err != nil {
			return nil, err
		}
		album, err := s.GetAlbum(tr.AlbumID)
		if err != nil {
			return nil, err
		}
		libraryID = album.LibraryID
		d.Artist, d.Album, d.Year = album.Artist, album.Title, album.Year
		d.Title, d.Disc, d.Track = tr.Title, tr.Disc, tr.TrackNumber
		d.BasePath = album.Path
		d.Target = TrackTarget{TrackID: tr.ID, AlbumID: album.ID, Title: tr.Title, TrackNumber: tr.TrackNumber}

	case ChapterTarget:
		ch, err := s.GetChapter(v.ChapterID)
		if err != nil {
			return nil, err
		}
		book, err := s.GetAudiobook(ch.AudiobookID)
		if err != nil {
			return nil, err
		}
		libraryID = book.LibraryID
		d.Author, d.Title, d.Year = book.Author, book.Title, book.Year
		d.Series, d.SeriesPosition, d.Narrator = book.Series, book.SeriesPosition, book.Narrator
		d.Chapter = ch.ChapterNumber
		d.BasePath = book.Path
		d.Target = ChapterTarget{ChapterID: ch.ID, AudiobookID: book.ID, ChapterNumber: ch.ChapterNumber}

	default:
		return nil, fmt.Errorf("describe %T: %w", t, ErrUnknownTarget)
	}

	lib, err := s.GetLibrary(libraryID)
	if err != nil {
		return nil, err
	}
	d.Library = lib
	return d, nil
}
