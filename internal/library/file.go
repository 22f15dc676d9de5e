package library

import (
	"fmt"
	"strings"
	"time"
)

const fileColumns = `id, library_id, path, size_bytes, container, video_codec, audio_codec, resolution, hdr_type,
	organized, conflicted, conflict_message, episode_id, movie_id, track_id, chapter_id, added_at`

func scanFile(row scanner) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.LibraryID, &f.Path, &f.SizeBytes, &f.Container, &f.VideoCodec, &f.AudioCodec,
		&f.Resolution, &f.HDRType, &f.Organized, &f.Conflicted, &f.ConflictMessage,
		&f.EpisodeID, &f.MovieID, &f.TrackID, &f.ChapterID, &f.AddedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FileFilter specifies criteria for listing files.
type FileFilter struct {
	LibraryID  *int64
	PathPrefix *string // matches the directory and everything below it
	Organized  *bool
	Linked     *bool // has any entity link
	Limit      int   // 0 = no limit
	Offset     int
}

func addFile(q querier, f *File) error {
	now := time.Now()
	result, err := q.Exec(`
		INSERT INTO files (library_id, path, size_bytes, container, video_codec, audio_codec, resolution, hdr_type,
			organized, conflicted, conflict_message, episode_id, movie_id, track_id, chapter_id, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.LibraryID, f.Path, f.SizeBytes, f.Container, f.VideoCodec, f.AudioCodec, f.Resolution, f.HDRType,
		f.Organized, f.Conflicted, f.ConflictMessage, f.EpisodeID, f.MovieID, f.TrackID, f.ChapterID, now,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	f.ID = id
	f.AddedAt = now
	return nil
}

// AddFile inserts a new file into the database.
// Sets ID and AddedAt on the struct. Returns ErrDuplicate if the path is taken.
func (s *Store) AddFile(f *File) error { return addFile(s.db, f) }

// AddFile inserts a new file within a transaction.
func (t *Tx) AddFile(f *File) error { return addFile(t.tx, f) }

func getFile(q querier, id int64) (*File, error) {
	f, err := scanFile(q.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get file %d: %w", id, mapSQLiteError(err))
	}
	return f, nil
}

// GetFile retrieves a file by ID.
// Returns ErrNotFound if the file does not exist.
func (s *Store) GetFile(id int64) (*File, error) { return getFile(s.db, id) }

// GetFile retrieves a file by ID within a transaction.
func (t *Tx) GetFile(id int64) (*File, error) { return getFile(t.tx, id) }

func getFileByPath(q querier, path string) (*File, error) {
	f, err := scanFile(q.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
	if err != nil {
		return nil, fmt.Errorf("get file %q: %w", path, mapSQLiteError(err))
	}
	return f, nil
}

// GetFileByPath retrieves the file stored at path.
// Returns ErrNotFound if no record owns the path.
func (s *Store) GetFileByPath(path string) (*File, error) { return getFileByPath(s.db, path) }

// GetFileByPath retrieves a file by path within a transaction.
func (t *Tx) GetFileByPath(path string) (*File, error) { return getFileByPath(t.tx, path) }

// FileExists reports whether any record owns path.
func (s *Store) FileExists(path string) (bool, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files WHERE path = ?", path).Scan(&n); err != nil {
		return false, fmt.Errorf("check file %q: %w", path, err)
	}
	return n > 0, nil
}

func listFiles(q querier, f FileFilter) ([]*File, int, error) {
	var conditions []string
	var args []any

	if f.LibraryID != nil {
		conditions = append(conditions, "library_id = ?")
		args = append(args, *f.LibraryID)
	}
	if f.PathPrefix != nil {
		prefix := strings.TrimSuffix(*f.PathPrefix, "/")
		// substr and length count characters, not bytes.
		conditions = append(conditions, "(path = ? OR substr(path, 1, length(?)) = ?)")
		args = append(args, prefix, prefix+"/", prefix+"/")
	}
	if f.Organized != nil {
		conditions = append(conditions, "organized = ?")
		args = append(args, *f.Organized)
	}
	if f.Linked != nil {
		linked := "(episode_id IS NOT NULL OR movie_id IS NOT NULL OR track_id IS NOT NULL OR chapter_id IS NOT NULL)"
		if !*f.Linked {
			linked = "NOT " + linked
		}
		conditions = append(conditions, linked)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := q.QueryRow("SELECT COUNT(*) FROM files "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query := "SELECT " + fileColumns + " FROM files " + whereClause + " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan file: %w", err)
		}
		results = append(results, file)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate files: %w", err)
	}

	return results, total, nil
}

// ListFiles returns files matching the filter with pagination.
// Returns (results, totalCount, error).
func (s *Store) ListFiles(f FileFilter) ([]*File, int, error) { return listFiles(s.db, f) }

// ListFiles returns files matching the filter within a transaction.
func (t *Tx) ListFiles(f FileFilter) ([]*File, int, error) { return listFiles(t.tx, f) }

// targetColumn maps an entity kind to its link column.
func targetColumn(kind TargetKind) (string, error) {
	switch kind {
	case KindEpisode:
		return "episode_id", nil
	case KindMovie:
		return "movie_id", nil
	case KindTrack:
		return "track_id", nil
	case KindChapter:
		return "chapter_id", nil
	default:
		return "", fmt.Errorf("file link for %q: %w", kind, ErrUnknownTarget)
	}
}

// ListFilesForTarget returns every file linked to the entity identified by key.
func (s *Store) ListFilesForTarget(key Key) ([]*File, error) {
	col, err := targetColumn(key.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query("SELECT "+fileColumns+" FROM files WHERE "+col+" = ? ORDER BY id", key.ID)
	if err != nil {
		return nil, fmt.Errorf("list files for %s: %w", key, err)
	}
	defer func() { _ = rows.Close() }()

	var results []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		results = append(results, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return results, nil
}

// ListDuplicateKeys returns the entities that more than one file is linked to.
func (s *Store) ListDuplicateKeys() ([]Key, error) {
	var keys []Key
	for _, kind := range []TargetKind{KindEpisode, KindMovie, KindTrack, KindChapter} {
		col, _ := targetColumn(kind)
		rows, err := s.db.Query("SELECT " + col + " FROM files WHERE " + col + " IS NOT NULL GROUP BY " + col + " HAVING COUNT(*) > 1 ORDER BY " + col)
		if err != nil {
			return nil, fmt.Errorf("find duplicate %s files: %w", kind, err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan duplicate: %w", err)
			}
			keys = append(keys, Key{Kind: kind, ID: id})
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate duplicates: %w", err)
		}
	}
	return keys, nil
}

func updateFile(q querier, f *File) error {
	result, err := q.Exec(`
		UPDATE files SET library_id = ?, path = ?, size_bytes = ?, container = ?, video_codec = ?, audio_codec = ?,
			resolution = ?, hdr_type = ?, organized = ?, conflicted = ?, conflict_message = ?,
			episode_id = ?, movie_id = ?, track_id = ?, chapter_id = ?
		WHERE id = ?`,
		f.LibraryID, f.Path, f.SizeBytes, f.Container, f.VideoCodec, f.AudioCodec,
		f.Resolution, f.HDRType, f.Organized, f.Conflicted, f.ConflictMessage,
		f.EpisodeID, f.MovieID, f.TrackID, f.ChapterID, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update file %d: %w", f.ID, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update file %d: %w", f.ID, ErrNotFound)
	}
	return nil
}

// UpdateFile updates an existing file.
// Returns ErrNotFound if the file does not exist, ErrDuplicate if the new
// path belongs to another record.
func (s *Store) UpdateFile(f *File) error { return updateFile(s.db, f) }

// UpdateFile updates an existing file within a transaction.
func (t *Tx) UpdateFile(f *File) error { return updateFile(t.tx, f) }

func deleteFile(q querier, id int64) error {
	_, err := q.Exec("DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete file %d: %w", id, mapSQLiteError(err))
	}
	return nil
}

// DeleteFile removes a file by ID.
// This operation is idempotent - no error is returned if the file does not exist.
func (s *Store) DeleteFile(id int64) error { return deleteFile(s.db, id) }

// DeleteFile removes a file by ID within a transaction.
func (t *Tx) DeleteFile(id int64) error { return deleteFile(t.tx, id) }
