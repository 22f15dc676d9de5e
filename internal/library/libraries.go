package library

import (
	"errors"
	"fmt"
	"time"
)

const libraryColumns = "id, name, type, root, naming_pattern, organize, transfer_mode, auto_add_discovered, added_at"

func scanLibrary(row scanner) (*Library, error) {
	l := &Library{}
	err := row.Scan(&l.ID, &l.Name, &l.Type, &l.Root, &l.NamingPattern, &l.Organize,
		&l.TransferMode, &l.AutoAddDiscovered, &l.AddedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// AddLibrary inserts a library. Sets ID and AddedAt on the struct.
func (s *Store) AddLibrary(l *Library) error {
	if l.TransferMode == "" {
		l.TransferMode = TransferCopy
	}
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO libraries (name, type, root, naming_pattern, organize, transfer_mode, auto_add_discovered, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Type, l.Root, l.NamingPattern, l.Organize, l.TransferMode, l.AutoAddDiscovered, now,
	)
	if err != nil {
		return fmt.Errorf("insert library: %w", mapSQLiteError(err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	l.ID = id
	l.AddedAt = now
	return nil
}

// UpsertLibrary inserts a library or updates the existing one with the same
// name. Used to sync libraries declared in config.
func (s *Store) UpsertLibrary(l *Library) error {
	existing, err := s.GetLibraryByName(l.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.AddLibrary(l)
		}
		return err
	}
	if l.TransferMode == "" {
		l.TransferMode = TransferCopy
	}
	_, err = s.db.Exec(`
		UPDATE libraries SET type = ?, root = ?, naming_pattern = ?, organize = ?, transfer_mode = ?, auto_add_discovered = ?
		WHERE id = ?`,
		l.Type, l.Root, l.NamingPattern, l.Organize, l.TransferMode, l.AutoAddDiscovered, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("update library %d: %w", existing.ID, mapSQLiteError(err))
	}
	l.ID = existing.ID
	l.AddedAt = existing.AddedAt
	return nil
}

// GetLibrary retrieves a library by ID.
// Returns ErrNotFound if the library does not exist.
func (s *Store) GetLibrary(id int64) (*Library, error) {
	l, err := scanLibrary(s.db.QueryRow("SELECT "+libraryColumns+" FROM libraries WHERE id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("get library %d: %w", id, mapSQLiteError(err))
	}
	return l, nil
}

// GetLibraryByName retrieves a library by its unique name.
func (s *Store) GetLibraryByName(name string) (*Library, error) {
	l, err := scanLibrary(s.db.QueryRow("SELECT "+libraryColumns+" FROM libraries WHERE name = ?", name))
	if err != nil {
		return nil, fmt.Errorf("get library %q: %w", name, mapSQLiteError(err))
	}
	return l, nil
}

// ListLibraries returns all libraries, or only those of type t when t is non-nil.
func (s *Store) ListLibraries(t *Type) ([]*Library, error) {
	query := "SELECT " + libraryColumns + " FROM libraries"
	var args []any
	if t != nil {
		query += " WHERE type = ?"
		args = append(args, *t)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Library
	for rows.Next() {
		l, err := scanLibrary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan library: %w", err)
		}
		results = append(results, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate libraries: %w", err)
	}
	return results, nil
}
