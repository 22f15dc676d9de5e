package download

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/anacrolix/torrent/metainfo"
)

// TorrentFiles decodes .torrent metainfo and returns the torrent name and
// the files it would produce, in metainfo order. Paths are relative and
// rooted at the torrent name.
func TorrentFiles(data []byte) (string, []FileEntry, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return "", nil, fmt.Errorf("parse torrent metainfo: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return "", nil, fmt.Errorf("parse torrent info: %w", err)
	}

	upverted := info.UpvertedFiles()
	files := make([]FileEntry, 0, len(upverted))
	for i, f := range upverted {
		parts := append([]string{info.Name}, f.Path...)
		files = append(files, FileEntry{Index: i, Path: filepath.Join(parts...), Size: f.Length})
	}
	return info.Name, files, nil
}
