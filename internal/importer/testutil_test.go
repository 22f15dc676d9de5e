// internal/importer/testutil_test.go
package importer

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err, "open db")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Apply(db), "apply migrations")
	return db
}

// ptr is a helper to create pointer to value
func ptr[T any](v T) *T {
	return &v
}

// writeFile creates path with content, including parent directories.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

type placerFixture struct {
	db        *sql.DB
	store     *library.Store
	history   *HistoryStore
	placer    *Placer
	lib       *library.Library
	movieID   int64
	downloads string
}

// setupPlacer creates a movie library rooted in a temp dir with one movie.
func setupPlacer(t *testing.T) *placerFixture {
	t.Helper()
	db := setupTestDB(t)
	store := library.NewStore(db)
	history := NewHistoryStore(db)

	base := t.TempDir()
	lib := &library.Library{
		Name: "Movies", Type: library.TypeMovie, Root: filepath.Join(base, "movies"),
		Organize: true, TransferMode: library.TransferCopy,
	}
	require.NoError(t, os.MkdirAll(lib.Root, 0755))
	require.NoError(t, store.AddLibrary(lib))

	m := &library.Movie{LibraryID: lib.ID, Title: "Heat", Year: 1995, Monitored: true, Status: library.StatusWanted}
	require.NoError(t, store.AddMovie(m))

	return &placerFixture{
		db:        db,
		store:     store,
		history:   history,
		placer:    NewPlacer(store, history, nil),
		lib:       lib,
		movieID:   m.ID,
		downloads: filepath.Join(base, "downloads"),
	}
}

// addFile writes a file on disk and stores an unorganized record for it.
func (f *placerFixture) addFile(t *testing.T, path, content string) *library.File {
	t.Helper()
	writeFile(t, path, content)
	file := &library.File{LibraryID: f.lib.ID, Path: path, SizeBytes: int64(len(content))}
	require.NoError(t, file.SetTarget(library.MovieTarget{MovieID: f.movieID}))
	require.NoError(t, f.store.AddFile(file))
	return file
}
