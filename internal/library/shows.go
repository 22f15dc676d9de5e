package library

import (
	"fmt"
	"time"
)

const showColumns = "id, library_id, name, year, path, monitored, added_at"

func scanShow(row scanner) (*Show, error) {
	sh := &Show{}
	if err := row.Scan(&sh.ID, &sh.LibraryID, &sh.Name, &sh.Year, &sh.Path, &sh.Monitored, &sh.AddedAt); err != nil {
		return nil, err
	}
	return sh, nil
}

// AddShow inserts a show. Sets ID and AddedAt on the struct.
func (s *Store) AddShow(sh *Show) error {
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO shows (library_id, name, year, path, monitored, added_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sh.LibraryID, sh.Name, sh.Year, sh.Path, sh.Monitored, now,
	)
	if err != nil {
		return fmt.Errorf("insert show: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	sh.ID = id
	sh.AddedAt = now
	return nil
}

// GetShow retrieves a show by ID.
// Returns ErrNotFound if the show does not exist.
func (s *Store) GetShow(id int64) (*Show, error) {
	sh, err := scanShow(s.db.QueryRow("SELECT "+showColumns+" FROM shows WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get show %d: %w", id, mapSQLiteError(err))
	}
	return sh, nil
}

// ListShows returns the shows of a library ordered by name.
func (s *Store) ListShows(libraryID int64) ([]*Show, error) {
	rows, err := s.db.Query("SELECT "+showColumns+" FROM shows WHERE library_id = ? ORDER BY name", libraryID)
	if err != nil {
		return nil, fmt.Errorf("list shows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Show
	for rows.Next() {
		sh, err := scanShow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan show: %w", err)
		}
		results = append(results, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shows: %w", err)
	}
	return results, nil
}

const episodeColumns = "id, show_id, season, episode, title, status"

func scanEpisode(row scanner) (*Episode, error) {
	e := &Episode{}
	if err := row.Scan(&e.ID, &e.ShowID, &e.Season, &e.Episode, &e.Title, &e.Status); err != nil {
		return nil, err
	}
	return e, nil
}

// AddEpisode inserts an episode. Sets ID on the struct.
func (s *Store) AddEpisode(e *Episode) error {
	if e.Status == "" {
		e.Status = StatusWanted
	}
	result, err := s.db.Exec(`
		INSERT INTO episodes (show_id, season, episode, title, status)
		VALUES (?, ?, ?, ?, ?)`,
		e.ShowID, e.Season, e.Episode, e.Title, e.Status,
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

func getEpisode(q querier, id int64) (*Episode, error) {
	e, err := scanEpisode(q.QueryRow("SELECT "+episodeColumns+" FROM episodes WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get episode %d: %w", id, mapSQLiteError(err))
	}
	return e, nil
}

// GetEpisode retrieves an episode by ID.
// Returns ErrNotFound if the episode does not exist.
func (s *Store) GetEpisode(id int64) (*Episode, error) { return getEpisode(s.db, id) }

// GetEpisode retrieves an episode by ID within a transaction.
func (t *Tx) GetEpisode(id int64) (*Episode, error) { return getEpisode(t.tx, id) }

// FindEpisode looks up an episode by its show and numbering.
// Returns ErrNotFound if the show has no such episode.
func (s *Store) FindEpisode(showID int64, season, episode int) (*Episode, error) {
	e, err := scanEpisode(s.db.QueryRow(
		"SELECT "+episodeColumns+" FROM episodes WHERE show_id = ? AND season = ? AND episode = ?",
		showID, season, episode,
	))
	if err != nil {
		return nil, fmt.Errorf("find episode S%02dE%02d of show %d: %w", season, episode, showID, mapSQLiteError(err))
	}
	return e, nil
}

// ListEpisodes returns the episodes of a show ordered by season and number.
func (s *Store) ListEpisodes(showID int64) ([]*Episode, error) {
	rows, err := s.db.Query("SELECT "+episodeColumns+" FROM episodes WHERE show_id = ? ORDER BY season, episode", showID)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate episodes: %w", err)
	}
	return results, nil
}

// ListSeasons returns the distinct season numbers that have episodes.
func (s *Store) ListSeasons(showID int64) ([]int, error) {
	rows, err := s.db.Query("SELECT DISTINCT season FROM episodes WHERE show_id = ? ORDER BY season", showID)
	if err != nil {
		return nil, fmt.Errorf("list seasons: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var seasons []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		seasons = append(seasons, n)
	}
	return seasons, rows.Err()
}
