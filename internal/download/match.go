package download

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// MatchType records how a match record was created.
type MatchType string

const (
	MatchAuto   MatchType = "auto"   // derived by the matcher
	MatchManual MatchType = "manual" // linked by a user
	MatchForced MatchType = "forced" // linked by a user, policy bypassed
)

// MatchRecord is the decision of what one file of a download fulfills,
// plus its processing state.
type MatchRecord struct {
	ID            int64
	DownloadID    int64
	FileIndex     int
	FilePath      string
	FileSize      int64
	Target        library.Target // nil when not yet decided
	MatchType     MatchType
	Confidence    float64
	Quality       release.Quality
	SkipDownload  bool
	SkipReason    string
	Processed     bool
	LibraryFileID *int64
	Error         string
	CreatedAt     time.Time
}

// Reverter moves an entity from downloading back to wanted.
// Implemented by *library.Store.
type Reverter interface {
	RevertDownloading(key library.Key) error
}

// MatchStore persists match records.
type MatchStore struct {
	db *sql.DB
}

// NewMatchStore creates a match record store.
func NewMatchStore(db *sql.DB) *MatchStore {
	return &MatchStore{db: db}
}

const matchColumns = `id, download_id, file_index, file_path, file_size, target_kind, target, match_type,
	confidence, quality, skip_download, skip_reason, processed, library_file_id, error, created_at`

func scanMatch(row interface{ Scan(...any) error }) (*MatchRecord, error) {
	var (
		r       = &MatchRecord{}
		kind    string
		payload string
		quality string
	)
	err := row.Scan(&r.ID, &r.DownloadID, &r.FileIndex, &r.FilePath, &r.FileSize, &kind, &payload, &r.MatchType,
		&r.Confidence, &quality, &r.SkipDownload, &r.SkipReason, &r.Processed, &r.LibraryFileID, &r.Error, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Target, err = library.DecodeTarget(library.TargetKind(kind), payload)
	if err != nil {
		return nil, fmt.Errorf("match %d: %w", r.ID, err)
	}
	if quality != "" {
		if err := json.Unmarshal([]byte(quality), &r.Quality); err != nil {
			return nil, fmt.Errorf("match %d quality: %w", r.ID, err)
		}
	}
	return r, nil
}

// entityColumns returns the values of the indexed episode/movie/track/chapter columns.
func entityColumns(t library.Target) (episodeID, movieID, trackID, chapterID *int64) {
	key, ok := library.KeyOf(t)
	if !ok {
		return nil, nil, nil, nil
	}
	id := key.ID
	switch key.Kind {
	case library.KindEpisode:
		episodeID = &id
	case library.KindMovie:
		movieID = &id
	case library.KindTrack:
		trackID = &id
	case library.KindChapter:
		chapterID = &id
	}
	return episodeID, movieID, trackID, chapterID
}

// Create inserts a match record. Sets ID and CreatedAt on the struct.
// Returns ErrDuplicateMatch if the file already has a record.
func (s *MatchStore) Create(r *MatchRecord) error {
	if r.MatchType == "" {
		r.MatchType = MatchAuto
	}

	kind, payload, err := library.EncodeTarget(r.Target)
	if err != nil {
		return err
	}
	quality, err := json.Marshal(r.Quality)
	if err != nil {
		return fmt.Errorf("encode quality: %w", err)
	}
	episodeID, movieID, trackID, chapterID := entityColumns(r.Target)

	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO file_matches (download_id, file_index, file_path, file_size, target_kind, target,
			episode_id, movie_id, track_id, chapter_id, match_type, confidence, quality,
			skip_download, skip_reason, processed, library_file_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DownloadID, r.FileIndex, r.FilePath, r.FileSize, kind, payload,
		episodeID, movieID, trackID, chapterID, r.MatchType, r.Confidence, string(quality),
		r.SkipDownload, r.SkipReason, r.Processed, r.LibraryFileID, r.Error, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("download %d file %d: %w", r.DownloadID, r.FileIndex, ErrDuplicateMatch)
		}
		return fmt.Errorf("insert match: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

// Get retrieves a match record by ID.
// Returns ErrNotFound if the record does not exist.
func (s *MatchStore) Get(id int64) (*MatchRecord, error) {
	r, err := scanMatch(s.db.QueryRow("SELECT "+matchColumns+" FROM file_matches WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get match %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match %d: %w", id, err)
	}
	return r, nil
}

func (s *MatchStore) list(where string, args ...any) ([]*MatchRecord, error) {
	rows, err := s.db.Query("SELECT "+matchColumns+" FROM file_matches WHERE "+where+" ORDER BY file_index", args...)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*MatchRecord
	for rows.Next() {
		r, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return results, nil
}

// ListByDownload returns every record of a download in file order.
func (s *MatchStore) ListByDownload(downloadID int64) ([]*MatchRecord, error) {
	return s.list("download_id = ?", downloadID)
}

// ListUnprocessed returns the records of a download still awaiting processing.
func (s *MatchStore) ListUnprocessed(downloadID int64) ([]*MatchRecord, error) {
	return s.list("download_id = ? AND processed = 0", downloadID)
}

// MarkProcessed records the outcome of processing: the created library file,
// an error message, or neither for skipped records.
func (s *MatchStore) MarkProcessed(id int64, libraryFileID *int64, errMsg string) error {
	result, err := s.db.Exec(`
		UPDATE file_matches SET processed = 1, library_file_id = ?, error = ?
		WHERE id = ?`,
		libraryFileID, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("mark match %d processed: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark match %d processed: %w", id, ErrNotFound)
	}
	return nil
}

// MarkSkipped records a skip decision made while processing.
func (s *MatchStore) MarkSkipped(id int64, reason string) error {
	result, err := s.db.Exec(`
		UPDATE file_matches SET processed = 1, skip_download = 1, skip_reason = ?, library_file_id = NULL, error = ''
		WHERE id = ?`,
		reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark match %d skipped: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark match %d skipped: %w", id, ErrNotFound)
	}
	return nil
}

// RequeueFailed marks the failed records of a download unprocessed again and
// returns how many there were.
func (s *MatchStore) RequeueFailed(downloadID int64) (int, error) {
	result, err := s.db.Exec(`
		UPDATE file_matches SET processed = 0, library_file_id = NULL, error = ''
		WHERE download_id = ? AND processed = 1 AND error != ''`,
		downloadID,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue failed matches of download %d: %w", downloadID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteByDownload removes every record of a download.
// Callers that may have marked entities downloading should use ForceReset.
func (s *MatchStore) DeleteByDownload(downloadID int64) error {
	if _, err := s.db.Exec("DELETE FROM file_matches WHERE download_id = ?", downloadID); err != nil {
		return fmt.Errorf("delete matches of download %d: %w", downloadID, err)
	}
	return nil
}

// isDownloading reports whether an unprocessed, non-skipped record of another
// active download targets the entity in column col.
func (s *MatchStore) isDownloading(col string, id, excludeDownloadID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM file_matches m
		JOIN downloads d ON d.id = m.download_id
		WHERE m.`+col+` = ? AND m.download_id != ? AND m.processed = 0 AND m.skip_download = 0
			AND d.status IN (?, ?)`,
		id, excludeDownloadID, StatusPending, StatusProcessing,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s %d downloading: %w", strings.TrimSuffix(col, "_id"), id, err)
	}
	return n > 0, nil
}

// IsEpisodeDownloading reports whether another download is already fetching the episode.
func (s *MatchStore) IsEpisodeDownloading(episodeID, excludeDownloadID int64) (bool, error) {
	return s.isDownloading("episode_id", episodeID, excludeDownloadID)
}

// IsMovieDownloading reports whether another download is already fetching the movie.
func (s *MatchStore) IsMovieDownloading(movieID, excludeDownloadID int64) (bool, error) {
	return s.isDownloading("movie_id", movieID, excludeDownloadID)
}

// ForceReset clears a download's records so matching can start over. Every
// entity a record points at is first reverted from downloading to wanted; if
// any revert fails nothing is deleted.
func (s *MatchStore) ForceReset(ctx context.Context, downloadID int64, reverter Reverter) error {
	records, err := s.ListByDownload(downloadID)
	if err != nil {
		return err
	}

	seen := make(map[library.Key]bool)
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		key, ok := library.KeyOf(r.Target)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		if err := reverter.RevertDownloading(key); err != nil && !errors.Is(err, library.ErrNotFound) {
			return fmt.Errorf("revert %s: %w", key, err)
		}
	}

	return s.DeleteByDownload(downloadID)
}
