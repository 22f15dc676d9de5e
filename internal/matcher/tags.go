package matcher

import (
	"errors"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// ErrNoTags is returned by a TagReader when a file carries no metadata.
var ErrNoTags = errors.New("no embedded tags")

// Tags is the subset of embedded audio metadata used for matching.
type Tags struct {
	Artist      string
	AlbumArtist string
	Album       string
	Title       string
	Track       int
	Disc        int
	Year        int
}

// TagReader reads embedded audio metadata.
type TagReader interface {
	ReadTags(path string) (*Tags, error)
}

// FileTagReader reads ID3, MP4, FLAC and Ogg tags from disk.
type FileTagReader struct{}

// ReadTags opens path and decodes its tags.
func (FileTagReader) ReadTags(path string) (*Tags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	md, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return nil, ErrNoTags
	}
	if err != nil {
		return nil, fmt.Errorf("read tags %s: %w", path, err)
	}

	track, _ := md.Track()
	disc, _ := md.Disc()
	return &Tags{
		Artist:      md.Artist(),
		AlbumArtist: md.AlbumArtist(),
		Album:       md.Album(),
		Title:       md.Title(),
		Track:       track,
		Disc:        disc,
		Year:        md.Year(),
	}, nil
}
