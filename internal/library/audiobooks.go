package library

import (
	"fmt"
	"time"
)

const audiobookColumns = "id, library_id, author, title, series, series_position, narrator, year, path, monitored, added_at"

func scanAudiobook(row scanner) (*Audiobook, error) {
	b := &Audiobook{}
	err := row.Scan(&b.ID, &b.LibraryID, &b.Author, &b.Title, &b.Series, &b.SeriesPosition,
		&b.Narrator, &b.Year, &b.Path, &b.Monitored, &b.AddedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AddAudiobook inserts an audiobook. Sets ID and AddedAt on the struct.
func (s *Store) AddAudiobook(b *Audiobook) error {
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO audiobooks (library_id, author, title, series, series_position, narrator, year, path, monitored, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.LibraryID, b.Author, b.Title, b.Series, b.SeriesPosition, b.Narrator, b.Year, b.Path, b.Monitored, now,
	)
	if err != nil {
		return fmt.Errorf("insert audiobook: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	b.ID = id
	b.AddedAt = now
	return nil
}

// GetAudiobook retrieves an audiobook by ID.
func (s *Store) GetAudiobook(id int64) (*Audiobook, error) {
	b, err := scanAudiobook(s.db.QueryRow("SELECT "+audiobookColumns+" FROM audiobooks WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get audiobook %d: %w", id, mapSQLiteError(err))
	}
	return b, nil
}

// ListAudiobooks returns the audiobooks of a library.
func (s *Store) ListAudiobooks(libraryID int64) ([]*Audiobook, error) {
	rows, err := s.db.Query("SELECT "+audiobookColumns+" FROM audiobooks WHERE library_id = ? ORDER BY author, title", libraryID)
	if err != nil {
		return nil, fmt.Errorf("list audiobooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Audiobook
	for rows.Next() {
		b, err := scanAudiobook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audiobook: %w", err)
		}
		results = append(results, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audiobooks: %w", err)
	}
	return results, nil
}

const chapterColumns = "id, audiobook_id, chapter_number, title, status, has_file"

func scanChapter(row scanner) (*Chapter, error) {
	c := &Chapter{}
	if err := row.Scan(&c.ID, &c.AudiobookID, &c.ChapterNumber, &c.Title, &c.Status, &c.HasFile); err != nil {
		return nil, err
	}
	return c, nil
}

// AddChapter inserts a chapter. Sets ID on the struct.
func (s *Store) AddChapter(c *Chapter) error {
	if c.Status == "" {
		c.Status = StatusWanted
	}
	result, err := s.db.Exec(`
		INSERT INTO chapters (audiobook_id, chapter_number, title, status, has_file)
		VALUES (?, ?, ?, ?, ?)`,
		c.AudiobookID, c.ChapterNumber, c.Title, c.Status, c.HasFile,
	)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetChapter retrieves a chapter by ID.
func (s *Store) GetChapter(id int64) (*Chapter, error) {
	c, err := scanChapter(s.db.QueryRow("SELECT "+chapterColumns+" FROM chapters WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get chapter %d: %w", id, mapSQLiteError(err))
	}
	return c, nil
}

// ListChapters returns the chapters of an audiobook in order.
func (s *Store) ListChapters(audiobookID int64) ([]*Chapter, error) {
	rows, err := s.db.Query("SELECT "+chapterColumns+" FROM chapters WHERE audiobook_id = ? ORDER BY chapter_number", audiobookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chapters: %w", err)
	}
	return results, nil
}
