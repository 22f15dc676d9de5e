package matcher

import (
	"context"
	"fmt"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// TorrentCheck is the result of validating a release against an album.
type TorrentCheck struct {
	Name       string
	AudioFiles int
	Tracks     int
	OK         bool
	Reason     string
}

// ValidateAlbumTorrent fetches a .torrent and checks, before anything is
// downloaded, that it looks like album and carries enough audio files.
func (m *Matcher) ValidateAlbumTorrent(ctx context.Context, src download.Source, identifier, link string, album *library.Album) (*TorrentCheck, error) {
	data, err := src.FetchBytes(ctx, identifier, link)
	if err != nil {
		return nil, err
	}
	name, files, err := download.TorrentFiles(data)
	if err != nil {
		return nil, fmt.Errorf("torrent %s: %w", identifier, err)
	}
	tracks, err := m.repo.ListTracks(album.ID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}

	check := &TorrentCheck{Name: name, Tracks: len(tracks)}
	for _, f := range files {
		if release.IsAudioFile(f.Path) {
			check.AudioFiles++
		}
	}

	if key, ok := release.ParseAlbumKey(name); ok {
		if titleScore(album.Title, key.Album) <= m.thresholds.Album || titleScore(album.Artist, key.Artist) <= m.thresholds.Artist {
			check.Reason = fmt.Sprintf("torrent %q is not %s - %s", name, album.Artist, album.Title)
			return check, nil
		}
	}
	if check.AudioFiles == 0 {
		check.Reason = "torrent has no audio files"
		return check, nil
	}
	if check.AudioFiles < check.Tracks {
		check.Reason = fmt.Sprintf("torrent has %d audio files, album has %d tracks", check.AudioFiles, check.Tracks)
		return check, nil
	}

	check.OK = true
	return check, nil
}
