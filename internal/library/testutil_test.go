// internal/library/testutil_test.go
package library

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/migrations"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Apply(db))
	return db
}

// ptr is a helper to create pointer to value
func ptr[T any](v T) *T {
	return &v
}

func addTestLibrary(t *testing.T, s *Store, typ Type) *Library {
	t.Helper()
	lib := &Library{Name: string(typ), Type: typ, Root: "/media/" + string(typ), Organize: true}
	require.NoError(t, s.AddLibrary(lib))
	return lib
}

func addTestEpisode(t *testing.T, s *Store, lib *Library, status Status) (*Show, *Episode) {
	t.Helper()
	show := &Show{LibraryID: lib.ID, Name: "Breaking Bad", Year: 2008, Monitored: true}
	require.NoError(t, s.AddShow(show))
	ep := &Episode{ShowID: show.ID, Season: 1, Episode: 5, Title: "Gray Matter", Status: status}
	require.NoError(t, s.AddEpisode(ep))
	return show, ep
}
