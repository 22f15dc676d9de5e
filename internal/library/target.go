package library

import (
	"encoding/json"
	"fmt"
)

// TargetKind names a Target variant.
type TargetKind string

const (
	KindEpisode   TargetKind = "episode"
	KindMovie     TargetKind = "movie"
	KindTrack     TargetKind = "track"
	KindChapter   TargetKind = "chapter"
	KindUnmatched TargetKind = "unmatched"
	KindSample    TargetKind = "sample"
)

// Target is what a downloaded file fulfills. The set of variants is closed:
// EpisodeTarget, MovieTarget, TrackTarget, ChapterTarget, plus the Unmatched
// and Sample pseudo variants. Switches over Target return ErrUnknownTarget
// from their default branch.
type Target interface {
	Kind() TargetKind
	isTarget()
}

// EpisodeTarget links a file to a TV episode.
type EpisodeTarget struct {
	EpisodeID int64  `json:"episode_id"`
	ShowID    int64  `json:"show_id"`
	ShowName  string `json:"show_name,omitempty"`
	Season    int    `json:"season"`
	Episode   int    `json:"episode"`
}

// MovieTarget links a file to a movie.
type MovieTarget struct {
	MovieID int64  `json:"movie_id"`
	Title   string `json:"title,omitempty"`
	Year    int    `json:"year,omitempty"`
}

// TrackTarget links a file to an album track.
type TrackTarget struct {
	TrackID     int64  `json:"track_id"`
	AlbumID     int64  `json:"album_id"`
	Title       string `json:"title,omitempty"`
	TrackNumber int    `json:"track_number"`
}

// ChapterTarget links a file to an audiobook chapter.
type ChapterTarget struct {
	ChapterID     int64 `json:"chapter_id"`
	AudiobookID   int64 `json:"audiobook_id"`
	ChapterNumber int   `json:"chapter_number"`
}

// Unmatched records why nothing in the library was found for a file.
type Unmatched struct {
	Reason string `json:"reason"`
}

// Sample marks a preview or trailer that is never organized.
type Sample struct{}

func (EpisodeTarget) Kind() TargetKind { return KindEpisode }
func (MovieTarget) Kind() TargetKind   { return KindMovie }
func (TrackTarget) Kind() TargetKind   { return KindTrack }
func (ChapterTarget) Kind() TargetKind { return KindChapter }
func (Unmatched) Kind() TargetKind     { return KindUnmatched }
func (Sample) Kind() TargetKind        { return KindSample }

func (EpisodeTarget) isTarget() {}
func (MovieTarget) isTarget()   {}
func (TrackTarget) isTarget()   {}
func (ChapterTarget) isTarget() {}
func (Unmatched) isTarget()     {}
func (Sample) isTarget()        {}

func (t EpisodeTarget) String() string {
	return fmt.Sprintf("%s S%02dE%02d", t.ShowName, t.Season, t.Episode)
}

func (t MovieTarget) String() string {
	return fmt.Sprintf("%s (%d)", t.Title, t.Year)
}

func (t TrackTarget) String() string {
	return fmt.Sprintf("track %d %s", t.TrackNumber, t.Title)
}

func (t ChapterTarget) String() string {
	return fmt.Sprintf("chapter %d", t.ChapterNumber)
}

// Key identifies one fulfillable entity.
type Key struct {
	Kind TargetKind
	ID   int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

// KeyOf returns the entity key of t. ok is false for Unmatched, Sample and nil.
func KeyOf(t Target) (key Key, ok bool) {
	switch v := t.(type) {
	case EpisodeTarget:
		return Key{KindEpisode, v.EpisodeID}, true
	case MovieTarget:
		return Key{KindMovie, v.MovieID}, true
	case TrackTarget:
		return Key{KindTrack, v.TrackID}, true
	case ChapterTarget:
		return Key{KindChapter, v.ChapterID}, true
	default:
		return Key{}, false
	}
}

// TargetFor returns the bare target of key, carrying only the entity ID.
// Describe fills in the rest.
func TargetFor(key Key) (Target, error) {
	switch key.Kind {
	case KindEpisode:
		return EpisodeTarget{EpisodeID: key.ID}, nil
	case KindMovie:
		return MovieTarget{MovieID: key.ID}, nil
	case KindTrack:
		return TrackTarget{TrackID: key.ID}, nil
	case KindChapter:
		return ChapterTarget{ChapterID: key.ID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, key.Kind)
	}
}

// IsEntity reports whether t links to a real library entity.
func IsEntity(t Target) bool {
	_, ok := KeyOf(t)
	return ok
}

// Owner identifies the parent an entity belongs to: the show of an episode,
// the album of a track, the audiobook of a chapter, or the movie itself.
// Files are grouped by owner for processing.
type Owner struct {
	Kind string
	ID   int64
}

// OwnerOf returns the owner of t. ok is false for pseudo variants.
func OwnerOf(t Target) (owner Owner, ok bool) {
	switch v := t.(type) {
	case EpisodeTarget:
		return Owner{"show", v.ShowID}, true
	case MovieTarget:
		return Owner{"movie", v.MovieID}, true
	case TrackTarget:
		return Owner{"album", v.AlbumID}, true
	case ChapterTarget:
		return Owner{"audiobook", v.AudiobookID}, true
	default:
		return Owner{}, false
	}
}

// EncodeTarget serializes t for storage. A nil target encodes as empty.
func EncodeTarget(t Target) (kind TargetKind, payload string, err error) {
	if t == nil {
		return "", "", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", "", fmt.Errorf("encode %s target: %w", t.Kind(), err)
	}
	return t.Kind(), string(b), nil
}

// DecodeTarget is the inverse of EncodeTarget.
func DecodeTarget(kind TargetKind, payload string) (Target, error) {
	if kind == "" {
		return nil, nil
	}
	if payload == "" {
		payload = "{}"
	}

	var (
		t   Target
		err error
	)
	switch kind {
	case KindEpisode:
		var v EpisodeTarget
		err = json.Unmarshal([]byte(payload), &v)
		t = v
	case KindMovie:
		var v MovieTarget
		err = json.Unmarshal([]byte(payload), &v)
		t = v
	case KindTrack:
		var v TrackTarget
		err = json.Unmarshal([]byte(payload), &v)
		t = v
	case KindChapter:
		var v ChapterTarget
		err = json.Unmarshal([]byte(payload), &v)
		t = v
	case KindUnmatched:
		var v Unmatched
		err = json.Unmarshal([]byte(payload), &v)
		t = v
	case KindSample:
		t = Sample{}
	default:
		return nil, fmt.Errorf("decode %q: %w", kind, ErrUnknownTarget)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s target: %w", kind, err)
	}
	return t, nil
}

// Target returns the entity the file is linked to, or nil. Only IDs are
// populated.
func (f *File) Target() Target {
	switch {
	case f.EpisodeID != nil:
		return EpisodeTarget{EpisodeID: *f.EpisodeID}
	case f.MovieID != nil:
		return MovieTarget{MovieID: *f.MovieID}
	case f.TrackID != nil:
		return TrackTarget{TrackID: *f.TrackID}
	case f.ChapterID != nil:
		return ChapterTarget{ChapterID: *f.ChapterID}
	default:
		return nil
	}
}

// SetTarget links the file to t, clearing any previous link.
func (f *File) SetTarget(t Target) error {
	f.EpisodeID, f.MovieID, f.TrackID, f.ChapterID = nil, nil, nil, nil
	switch v := t.(type) {
	case EpisodeTarget:
		f.EpisodeID = &v.EpisodeID
	case MovieTarget:
		f.MovieID = &v.MovieID
	case TrackTarget:
		f.TrackID = &v.TrackID
	case ChapterTarget:
		f.ChapterID = &v.ChapterID
	case nil:
	default:
		return fmt.Errorf("link file to %s: %w", t.Kind(), ErrUnknownTarget)
	}
	return nil
}
