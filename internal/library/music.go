package library

import (
	"fmt"
	"time"
)

const albumColumns = "id, library_id, artist, title, year, path, monitored, added_at"

func scanAlbum(row scanner) (*Album, error) {
	a := &Album{}
	if err := row.Scan(&a.ID, &a.LibraryID, &a.Artist, &a.Title, &a.Year, &a.Path, &a.Monitored, &a.AddedAt); err != nil {
		return nil, err
	}
	return a, nil
}

// AddAlbum inserts an album. Sets ID and AddedAt on the struct.
func (s *Store) AddAlbum(a *Album) error {
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO albums (library_id, artist, title, year, path, monitored, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.LibraryID, a.Artist, a.Title, a.Year, a.Path, a.Monitored, now,
	)
	if err != nil {
		return fmt.Errorf("insert album: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	a.ID = id
	a.AddedAt = now
	return nil
}

// GetAlbum retrieves an album by ID.
func (s *Store) GetAlbum(id int64) (*Album, error) {
	a, err := scanAlbum(s.db.QueryRow("SELECT "+albumColumns+" FROM albums WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get album %d: %w", id, mapSQLiteError(err))
	}
	return a, nil
}

// ListAlbums returns the albums of a library.
func (s *Store) ListAlbums(libraryID int64) ([]*Album, error) {
	rows, err := s.db.Query("SELECT "+albumColumns+" FROM albums WHERE library_id = ? ORDER BY artist, title", libraryID)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, fmt.Errorf("scan album: %w", err)
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate albums: %w", err)
	}
	return results, nil
}

const trackColumns = "id, album_id, disc, track_number, title, status, has_file"

func scanTrack(row scanner) (*Track, error) {
	tr := &Track{}
	if err := row.Scan(&tr.ID, &tr.AlbumID, &tr.Disc, &tr.TrackNumber, &tr.Title, &tr.Status, &tr.HasFile); err != nil {
		return nil, err
	}
	return tr, nil
}

// AddTrack inserts a track. Sets ID on the struct.
func (s *Store) AddTrack(tr *Track) error {
	if tr.Status == "" {
		tr.Status = StatusWanted
	}
	if tr.Disc == 0 {
		tr.Disc = 1
	}
	result, err := s.db.Exec(`
		INSERT INTO tracks (album_id, disc, track_number, title, status, has_file)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tr.AlbumID, tr.Disc, tr.TrackNumber, tr.Title, tr.Status, tr.HasFile,
	)
	if err != nil {
		return fmt.Errorf("insert track: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	tr.ID = id
	return nil
}

// GetTrack retrieves a track by ID.
func (s *Store) GetTrack(id int64) (*Track, error) {
	tr, err := scanTrack(s.db.QueryRow("SELECT "+trackColumns+" FROM tracks WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get track %d: %w", id, mapSQLiteError(err))
	}
	return tr, nil
}

// ListTracks returns the tracks of an album in play order.
func (s *Store) ListTracks(albumID int64) ([]*Track, error) {
	rows, err := s.db.Query("SELECT "+trackColumns+" FROM tracks WHERE album_id = ? ORDER BY disc, track_number", albumID)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Track
	for rows.Next() {
		tr, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		results = append(results, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracks: %w", err)
	}
	return results, nil
}
