// internal/processing/policy.go
package processing

import (
	"errors"
	"fmt"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/library"
)

// audioSkipReason applies the monitored and has-file checks that
// ShouldDownload leaves to the caller for tracks and chapters. An empty
// reason means the file is wanted.
func (p *Processor) audioSkipReason(target library.Target) (string, error) {
	switch t := target.(type) {
	case library.TrackTarget:
		tr, err := p.library.GetTrack(t.TrackID)
		if err != nil {
			return "", fmt.Errorf("load track %d: %w", t.TrackID, err)
		}
		album, err := p.library.GetAlbum(tr.AlbumID)
		if err != nil {
			return "", fmt.Errorf("load album %d: %w", tr.AlbumID, err)
		}
		if !album.Monitored {
			return "album is not monitored", nil
		}
		if tr.HasFile {
			return "track already has a file", nil
		}

	case library.ChapterTarget:
		ch, err := p.library.GetChapter(t.ChapterID)
		if err != nil {
			return "", fmt.Errorf("load chapter %d: %w", t.ChapterID, err)
		}
		book, err := p.library.GetAudiobook(ch.AudiobookID)
		if err != nil {
			return "", fmt.Errorf("load audiobook %d: %w", ch.AudiobookID, err)
		}
		if !book.Monitored {
			return "audiobook is not monitored", nil
		}
		if ch.HasFile {
			return "chapter already has a file", nil
		}
	}
	return "", nil
}

// countEarlier adds the records finished by earlier runs to t's status
// counts. Failed records were requeued before this runs and are not among
// them.
func (p *Processor) countEarlier(records []*download.MatchRecord, t *tally) error {
	for _, r := range records {
		if !r.Processed {
			continue
		}
		if _, ok := library.KeyOf(r.Target); !ok {
			continue
		}
		t.earlierMatched++
		if r.LibraryFileID == nil {
			continue
		}
		f, err := p.library.GetFile(*r.LibraryFileID)
		if errors.Is(err, library.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load library file %d: %w", *r.LibraryFileID, err)
		}
		if !f.Organized {
			t.earlierUnorganized++
		}
	}
	return nil
}
