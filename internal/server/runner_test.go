package server

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/maintenance"
	"github.com/vmunix/librarr/internal/migrations"
	"github.com/vmunix/librarr/internal/processing"
)

type fakeProcessor struct {
	mu  sync.Mutex
	ids []int64
}

func (p *fakeProcessor) Process(_ context.Context, id int64, _ processing.Options) (*processing.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return &processing.Result{DownloadID: id, Status: download.StatusCompleted}, nil
}

func (p *fakeProcessor) seen(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.ids {
		if got == id {
			return true
		}
	}
	return false
}

type fakeSweeper struct {
	mu   sync.Mutex
	runs []maintenance.Options
}

func (s *fakeSweeper) Run(_ context.Context, opts maintenance.Options) (*maintenance.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, opts)
	return &maintenance.Report{}, nil
}

func (s *fakeSweeper) calls() []maintenance.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]maintenance.Options(nil), s.runs...)
}

type testEnv struct {
	db        *sql.DB
	bus       *events.Bus
	downloads *download.Store
	processor *fakeProcessor
	sweeper   *fakeSweeper
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Apply(db))

	bus := events.NewBus(events.NewEventLog(db), nil)
	t.Cleanup(func() { _ = bus.Close() })

	return &testEnv{
		db:        db,
		bus:       bus,
		downloads: download.NewStore(db),
		processor: &fakeProcessor{},
		sweeper:   &fakeSweeper{},
	}
}

func (e *testEnv) runner(cfg Config) *Runner {
	return NewRunner(cfg, Deps{
		Bus:       e.bus,
		Downloads: e.downloads,
		Processor: e.processor,
		Sweeper:   e.sweeper,
	}, nil)
}

// start runs r in the background and returns a function that stops it and
// returns Run's error.
func start(t *testing.T, r *Runner) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("runner did not stop")
			return nil
		}
	}
}

func TestRunner_ProcessesPendingDownloads(t *testing.T) {
	env := setup(t)
	d := &download.Download{Name: "Movie.2020.1080p", Path: "/downloads/Movie.2020.1080p"}
	require.NoError(t, env.downloads.Add(d))

	stop := start(t, env.runner(Config{
		Listen:                 "127.0.0.1:0",
		PollInterval:           10 * time.Millisecond,
		MaxConcurrentDownloads: 1,
	}))

	assert.Eventually(t, func() bool { return env.processor.seen(d.ID) }, time.Second, 10*time.Millisecond)
	assert.NoError(t, stop())
}

func TestRunner_ResumesStuckDownloads(t *testing.T) {
	env := setup(t)
	stuck := &download.Download{Name: "Stuck", Path: "/downloads/stuck"}
	fresh := &download.Download{Name: "Fresh", Path: "/downloads/fresh"}
	require.NoError(t, env.downloads.Add(stuck))
	require.NoError(t, env.downloads.Add(fresh))
	require.NoError(t, env.downloads.Transition(stuck, download.StatusProcessing))
	require.NoError(t, env.downloads.Transition(fresh, download.StatusProcessing))
	_, err := env.db.Exec("UPDATE downloads SET last_transition_at = ? WHERE id = ?",
		time.Now().Add(-2*time.Hour), stuck.ID)
	require.NoError(t, err)

	stop := start(t, env.runner(Config{
		PollInterval: 10 * time.Millisecond,
		StuckAfter:   30 * time.Minute,
	}))

	assert.Eventually(t, func() bool { return env.processor.seen(stuck.ID) }, time.Second, 10*time.Millisecond)
	assert.NoError(t, stop())
	assert.False(t, env.processor.seen(fresh.ID))
}

func TestRunner_PublishesTransitions(t *testing.T) {
	env := setup(t)
	env.runner(Config{})
	changes := env.bus.Subscribe(events.EventDownloadStatusChanged, 10)

	d := &download.Download{Name: "Show.S01E01", Path: "/downloads/show"}
	require.NoError(t, env.downloads.Add(d))
	require.NoError(t, env.downloads.Transition(d, download.StatusProcessing))

	select {
	case e := <-changes:
		sc, ok := e.(*events.DownloadStatusChanged)
		require.True(t, ok)
		assert.Equal(t, d.ID, sc.DownloadID)
		assert.Equal(t, "pending", sc.OldStatus)
		assert.Equal(t, "processing", sc.NewStatus)
	case <-time.After(time.Second):
		t.Fatal("no status change published")
	}
}

func TestRunner_ScheduledSweep(t *testing.T) {
	env := setup(t)
	opts := maintenance.Options{Dedup: true, Orphans: false, EmptyDirs: true}

	stop := start(t, env.runner(Config{
		PollInterval:  time.Hour,
		SweepInterval: 10 * time.Millisecond,
		Sweep:         opts,
	}))

	assert.Eventually(t, func() bool { return len(env.sweeper.calls()) > 0 }, time.Second, 10*time.Millisecond)
	assert.NoError(t, stop())
	assert.Equal(t, opts, env.sweeper.calls()[0])
}

func TestRunner_NoSweeper(t *testing.T) {
	env := setup(t)
	r := NewRunner(Config{PollInterval: time.Hour, SweepInterval: time.Millisecond},
		Deps{Bus: env.bus, Downloads: env.downloads, Processor: env.processor}, nil)

	stop := start(t, r)
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, stop())
}

func TestRoutes(t *testing.T) {
	env := setup(t)
	h := env.runner(Config{}).routes()

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}
