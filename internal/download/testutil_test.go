// internal/download/testutil_test.go
package download

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/library"
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

// insertTestDownload adds a download in the given status.
func insertTestDownload(t *testing.T, store *Store, name string, status Status) *Download {
	t.Helper()
	d := &Download{Name: name, Path: "/downloads/" + name, Status: status}
	require.NoError(t, store.Add(d))
	return d
}

// insertTestEpisode adds a TV library, a show and one episode.
func insertTestEpisode(t *testing.T, db *sql.DB, status library.Status) (*library.Store, library.EpisodeTarget) {
	t.Helper()
	lib := library.NewStore(db)
	l := &library.Library{Name: "TV", Type: library.TypeTV, Root: "/media/tv", Organize: true}
	require.NoError(t, lib.AddLibrary(l))
	show := &library.Show{LibraryID: l.ID, Name: "The Expanse", Year: 2015, Monitored: true}
	require.NoError(t, lib.AddShow(show))
	ep := &library.Episode{ShowID: show.ID, Season: 1, Episode: 2, Title: "The Big Empty", Status: status}
	require.NoError(t, lib.AddEpisode(ep))
	return lib, library.EpisodeTarget{
		EpisodeID: ep.ID, ShowID: show.ID, ShowName: show.Name, Season: ep.Season, Episode: ep.Episode,
	}
}
