package library

import (
	"fmt"
	"time"
)

const movieColumns = "id, library_id, title, year, tmdb_id, path, monitored, has_file, status, added_at"

func scanMovie(row scanner) (*Movie, error) {
	m := &Movie{}
	err := row.Scan(&m.ID, &m.LibraryID, &m.Title, &m.Year, &m.TMDBID, &m.Path,
		&m.Monitored, &m.HasFile, &m.Status, &m.AddedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// AddMovie inserts a movie. Sets ID and AddedAt on the struct.
func (s *Store) AddMovie(m *Movie) error {
	if m.Status == "" {
		m.Status = StatusWanted
	}
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO movies (library_id, title, year, tmdb_id, path, monitored, has_file, status, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.LibraryID, m.Title, m.Year, m.TMDBID, m.Path, m.Monitored, m.HasFile, m.Status, now,
	)
	if err != nil {
		return fmt.Errorf("insert movie: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	m.ID = id
	m.AddedAt = now
	return nil
}

func getMovie(q querier, id int64) (*Movie, error) {
	m, err := scanMovie(q.QueryRow("SELECT "+movieColumns+" FROM movies WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get movie %d: %w", id, mapSQLiteError(err))
	}
	return m, nil
}

// GetMovie retrieves a movie by ID.
// Returns ErrNotFound if the movie does not exist.
func (s *Store) GetMovie(id int64) (*Movie, error) { return getMovie(s.db, id) }

// GetMovie retrieves a movie by ID within a transaction.
func (t *Tx) GetMovie(id int64) (*Movie, error) { return getMovie(t.tx, id) }

// ListMovies returns the movies of a library ordered by title.
func (s *Store) ListMovies(libraryID int64) ([]*Movie, error) {
	rows, err := s.db.Query("SELECT "+movieColumns+" FROM movies WHERE library_id = ? ORDER BY title, year", libraryID)
	if err != nil {
		return nil, fmt.Errorf("list movies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movie: %w", err)
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movies: %w", err)
	}
	return results, nil
}

// UpdateMovie updates an existing movie.
// Returns ErrNotFound if the movie does not exist.
func (s *Store) UpdateMovie(m *Movie) error {
	result, err := s.db.Exec(`
		UPDATE movies SET title = ?, year = ?, tmdb_id = ?, path = ?, monitored = ?, has_file = ?, status = ?
		WHERE id = ?`,
		m.Title, m.Year, m.TMDBID, m.Path, m.Monitored, m.HasFile, m.Status, m.ID,
	)
	if err != nil {
		return fmt.Errorf("update movie %d: %w", m.ID, mapSQLiteError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("update movie %d: %w", m.ID, ErrNotFound)
	}
	return nil
}
