package processing

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/analysis"
	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/matcher"
	"github.com/vmunix/librarr/internal/migrations"
)

type fixture struct {
	lib       *library.Store
	downloads *download.Store
	matches   *download.MatchStore
	history   *importer.HistoryStore
	queue     *analysis.Queue
	bus       *events.Bus
	movies    *library.Library
	tv        *library.Library
	base      string
	proc      *Processor
}

// setup creates organizing movie and TV libraries under a temp dir and a
// processor reading downloads from disk.
func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(db))

	f := &fixture{
		lib:       library.NewStore(db),
		downloads: download.NewStore(db),
		matches:   download.NewMatchStore(db),
		history:   importer.NewHistoryStore(db),
		queue:     analysis.NewQueue(db),
		bus:       events.NewBus(nil, nil),
		base:      t.TempDir(),
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	f.movies = &library.Library{
		Name: "Movies", Type: library.TypeMovie, Root: filepath.Join(f.base, "movies"),
		Organize: true, TransferMode: library.TransferCopy,
	}
	f.tv = &library.Library{
		Name: "TV", Type: library.TypeTV, Root: filepath.Join(f.base, "tv"),
		Organize: true, TransferMode: library.TransferCopy,
	}
	require.NoError(t, f.lib.AddLibrary(f.movies))
	require.NoError(t, f.lib.AddLibrary(f.tv))

	f.proc = f.build(download.NewDiskSource(), nil, opts...)
	return f
}

// build creates a processor over the fixture's stores. A nil placer selects
// the real one.
func (f *fixture) build(src download.Source, placer Placer, opts ...Option) *Processor {
	if placer == nil {
		placer = importer.NewPlacer(f.lib, f.history, nil)
	}
	m := matcher.New(f.lib, f.matches)
	base := []Option{WithBatchDelay(0), WithAnalysisQueue(f.queue), WithPublisher(f.bus)}
	p := New(f.downloads, f.matches, f.lib, src, m, placer, append(base, opts...)...)
	p.retryDelay = 0
	return p
}

func (f *fixture) addMovie(t *testing.T, title string, year int) *library.Movie {
	t.Helper()
	m := &library.Movie{LibraryID: f.movies.ID, Title: title, Year: year, Monitored: true, Status: library.StatusWanted}
	require.NoError(t, f.lib.AddMovie(m))
	return m
}

func (f *fixture) addShow(t *testing.T, name string, year int) *library.Show {
	t.Helper()
	s := &library.Show{LibraryID: f.tv.ID, Name: name, Year: year, Monitored: true}
	require.NoError(t, f.lib.AddShow(s))
	return s
}

func (f *fixture) addEpisode(t *testing.T, show *library.Show, season, episode int, title string, status library.Status) *library.Episode {
	t.Helper()
	e := &library.Episode{ShowID: show.ID, Season: season, Episode: episode, Title: title, Status: status}
	require.NoError(t, f.lib.AddEpisode(e))
	return e
}

// addDownload creates a pending download whose directory holds files. Each
// file's content is its own name, so sizes differ between files.
func (f *fixture) addDownload(t *testing.T, name string, files ...string) *download.Download {
	t.Helper()
	dir := filepath.Join(f.base, "downloads", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, file := range files {
		writeFile(t, filepath.Join(dir, file), "content of "+file)
	}
	d := &download.Download{Name: name, Path: dir}
	require.NoError(t, f.downloads.Add(d))
	return d
}

func (f *fixture) updateLibrary(t *testing.T, l *library.Library) {
	t.Helper()
	require.NoError(t, f.lib.UpsertLibrary(l))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// drain returns the types of the events buffered on ch.
func drain(ch <-chan events.Event) []string {
	var types []string
	for {
		select {
		case e := <-ch:
			types = append(types, e.EventType())
		default:
			return types
		}
	}
}

// failingPlacer fails every file whose path contains match.
type failingPlacer struct {
	Placer
	match string
}

func (p failingPlacer) Place(ctx context.Context, f *library.File, target string, action library.TransferMode, root string) importer.PlaceResult {
	if strings.Contains(f.Path, p.match) {
		return importer.PlaceResult{Error: "write failed: no space left on device"}
	}
	return p.Placer.Place(ctx, f, target, action, root)
}

// fakeDiscoverer adds whatever it is asked for.
type fakeDiscoverer struct {
	store *library.Store
	calls int
}

func (d *fakeDiscoverer) DiscoverMovie(_ context.Context, lib *library.Library, title string, year int) (*library.Movie, error) {
	d.calls++
	m := &library.Movie{LibraryID: lib.ID, Title: title, Year: year, Monitored: true, Status: library.StatusWanted}
	if err := d.store.AddMovie(m); err != nil {
		return nil, err
	}
	return m, nil
}

// fakeExpander writes the files in contents into the directory once.
type fakeExpander struct {
	contents map[string]string
	err      error
	calls    int
}

func (e *fakeExpander) NeedsExpansion(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".expanded"))
	return err != nil && e.calls == 0
}

func (e *fakeExpander) Expand(_ context.Context, dir string) (string, error) {
	e.calls++
	if e.err != nil {
		return dir, e.err
	}
	for name, content := range e.contents {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			return dir, err
		}
	}
	return dir, os.WriteFile(filepath.Join(dir, ".expanded"), nil, 0644)
}
