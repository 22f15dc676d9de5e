package server

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vmunix/librarr/internal/analysis"
	"github.com/vmunix/librarr/internal/archive"
	"github.com/vmunix/librarr/internal/config"
	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/internal/maintenance"
	"github.com/vmunix/librarr/internal/matcher"
	"github.com/vmunix/librarr/internal/migrations"
	"github.com/vmunix/librarr/internal/processing"
	"github.com/vmunix/librarr/internal/tmdb"
)

const sqlitePragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// App holds the stores and services built from one configuration. The
// daemon and the CLI share it.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Bus       *events.Bus
	Events    *events.EventLog
	Library   *library.Store
	Downloads *download.Store
	Matches   *download.MatchStore
	History   *importer.HistoryStore
	Source    *download.DiskSource
	Matcher   *matcher.Matcher
	Processor *processing.Processor
	Sweeper   *maintenance.Sweeper

	logger *slog.Logger
}

// Open opens the database, applies migrations, upserts the configured
// libraries and wires every service.
func Open(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	eventLog := events.NewEventLog(db)
	a := &App{
		Config:    cfg,
		DB:        db,
		Bus:       events.NewBus(eventLog, logger),
		Events:    eventLog,
		Library:   library.NewStore(db),
		Downloads: download.NewStore(db),
		Matches:   download.NewMatchStore(db),
		History:   importer.NewHistoryStore(db),
		Source:    download.NewDiskSource(),
		logger:    logger,
	}

	if err := a.syncLibraries(); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Matcher = matcher.New(a.Library, a.Matches,
		matcher.WithThresholds(thresholds(cfg.Matching)),
		matcher.WithLogger(logger))

	p := cfg.Processing
	opts := []processing.Option{
		processing.WithAnalysisQueue(analysis.NewQueue(db)),
		processing.WithPublisher(a.Bus),
		processing.WithGroupWorkers(p.GroupWorkers),
		processing.WithBatchDelay(p.BatchDelay),
		processing.WithExpandTimeout(p.ExpandTimeout),
		processing.WithDiscoverTimeout(p.DiscoverTimeout),
		processing.WithLogger(logger),
	}
	if p.ExpandArchives {
		opts = append(opts, processing.WithExpander(archive.New(
			archive.WithUnrar(p.UnrarPath),
			archive.WithSevenZip(p.SevenZipPath),
			archive.WithLogger(logger))))
	}
	if cfg.TMDB.APIKey != "" {
		client := tmdb.NewClient(cfg.TMDB.APIKey, tmdb.WithCacheTTL(cfg.TMDB.CacheTTL))
		opts = append(opts, processing.WithDiscoverer(tmdb.NewDiscoverer(client, a.Library, logger)))
	}
	placer := importer.NewPlacer(a.Library, a.History, logger)
	a.Processor = processing.New(a.Downloads, a.Matches, a.Library, a.Source, a.Matcher, placer, opts...)

	a.Sweeper = maintenance.New(a.Library, a.History, cfg.SweepLockPath(), logger)
	return a, nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	for _, dir := range []string{cfg.Server.DataDir, filepath.Dir(cfg.Database.Path)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", cfg.Database.Path+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrations.Apply(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// syncLibraries upserts every configured library by name.
func (a *App) syncLibraries() error {
	for _, lc := range a.Config.Libraries {
		lib := lc.Library()
		if err := a.Library.UpsertLibrary(lib); err != nil {
			return fmt.Errorf("library %q: %w", lc.Name, err)
		}
		a.logger.Debug("library synced", "library", lib.Name, "id", lib.ID, "type", lib.Type, "root", lib.Root)
	}
	return nil
}

// thresholds overlays the configured values on the defaults.
func thresholds(c config.MatchingConfig) matcher.Thresholds {
	t := matcher.DefaultThresholds()
	for _, o := range []struct {
		src float64
		dst *float64
	}{
		{c.ShowName, &t.ShowName},
		{c.MovieTitle, &t.MovieTitle},
		{c.Album, &t.Album},
		{c.Artist, &t.Artist},
		{c.Track, &t.Track},
	} {
		if o.src > 0 {
			*o.dst = o.src
		}
	}
	return t
}

// Runner builds the daemon runner over the app's services.
func (a *App) Runner() *Runner {
	cfg := a.Config
	rc := Config{
		Listen:                 cfg.Server.Listen,
		PollInterval:           cfg.Downloads.PollInterval,
		StuckAfter:             cfg.Downloads.StuckAfter,
		MaxConcurrentDownloads: cfg.Processing.MaxConcurrentDownloads,
		Sweep: maintenance.Options{
			Dedup:     true,
			Orphans:   cfg.Maintenance.Orphans,
			EmptyDirs: cfg.Maintenance.EmptyDirs,
		},
	}
	if cfg.Maintenance.Enabled {
		rc.SweepInterval = cfg.Maintenance.Interval
	}
	return NewRunner(rc, Deps{
		Bus:       a.Bus,
		Downloads: a.Downloads,
		Processor: a.Processor,
		Sweeper:   a.Sweeper,
	}, a.logger)
}

// Close closes the bus and the database.
func (a *App) Close() error {
	_ = a.Bus.Close()
	return a.DB.Close()
}
