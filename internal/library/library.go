// Package library tracks libraries, the entities they contain (shows and
// episodes, movies, albums and tracks, audiobooks and chapters) and the files
// on disk that fulfill them.
package library

import (
	"time"
)

// Type is the kind of media a library holds.
type Type string

const (
	TypeTV        Type = "tv"
	TypeMovie     Type = "movie"
	TypeMusic     Type = "music"
	TypeAudiobook Type = "audiobook"
)

// Valid reports whether t is a known library type.
func (t Type) Valid() bool {
	switch t {
	case TypeTV, TypeMovie, TypeMusic, TypeAudiobook:
		return true
	}
	return false
}

// TransferMode is how files are brought into the library.
type TransferMode string

const (
	TransferCopy     TransferMode = "copy"
	TransferMove     TransferMode = "move"
	TransferHardlink TransferMode = "hardlink"
)

// Status is the fulfillment state of an episode, movie, track or chapter.
type Status string

const (
	StatusWanted      Status = "wanted"
	StatusDownloading Status = "downloading"
	StatusDownloaded  Status = "downloaded"
	StatusIgnored     Status = "ignored"
)

// Library is a root folder of one media type.
type Library struct {
	ID                int64
	Name              string
	Type              Type
	Root              string
	NamingPattern     string // empty selects the default for Type
	Organize          bool
	TransferMode      TransferMode
	AutoAddDiscovered bool
	AddedAt           time.Time
}

// Show is a TV series.
type Show struct {
	ID        int64
	LibraryID int64
	Name      string
	Year      int
	Path      string // canonical folder when the show was added from disk
	Monitored bool
	AddedAt   time.Time
}

// Episode is a single episode of a show.
type Episode struct {
	ID      int64
	ShowID  int64
	Season  int
	Episode int
	Title   string
	Status  Status
}

// Movie is a feature film.
type Movie struct {
	ID        int64
	LibraryID int64
	Title     string
	Year      int
	TMDBID    *int64
	Path      string
	Monitored bool
	HasFile   bool
	Status    Status
	AddedAt   time.Time
}

// Album is a music release by one credited artist.
type Album struct {
	ID        int64
	LibraryID int64
	Artist    string
	Title     string
	Year      int
	Path      string
	Monitored bool
	AddedAt   time.Time
}

// Track is one track of an album.
type Track struct {
	ID          int64
	AlbumID     int64
	Disc        int
	TrackNumber int
	Title       string
	Status      Status
	HasFile     bool
}

// Audiobook is a book with chapters as separate files.
type Audiobook struct {
	ID             int64
	LibraryID      int64
	Author         string
	Title          string
	Series         string
	SeriesPosition string
	Narrator       string
	Year           int
	Path           string
	Monitored      bool
	AddedAt        time.Time
}

// Chapter is one part of an audiobook.
type Chapter struct {
	ID            int64
	AudiobookID   int64
	ChapterNumber int
	Title         string
	Status        Status
	HasFile       bool
}

// File is a media file on disk known to the library. Path is unique across
// all libraries. At most one of the entity links is set.
type File struct {
	ID              int64
	LibraryID       int64
	Path            string
	SizeBytes       int64
	Container       string
	VideoCodec      string
	AudioCodec      string
	Resolution      string
	HDRType         string
	Organized       bool
	Conflicted      bool
	ConflictMessage string
	EpisodeID       *int64
	MovieID         *int64
	TrackID         *int64
	ChapterID       *int64
	AddedAt         time.Time
}
