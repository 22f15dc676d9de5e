// Package server wires the daemon's long-running parts together: the event
// handlers, the download poller, the sweep schedule and the HTTP endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/handlers"
	"github.com/vmunix/librarr/internal/maintenance"
)

// Config for the daemon runner.
type Config struct {
	Listen                 string // empty disables the HTTP server
	PollInterval           time.Duration
	StuckAfter             time.Duration // 0 never resumes stuck downloads
	SweepInterval          time.Duration // 0 disables scheduled sweeps
	Sweep                  maintenance.Options
	MaxConcurrentDownloads int
}

// Deps are the components the runner drives.
type Deps struct {
	Bus       *events.Bus
	Downloads *download.Store
	Processor handlers.Processor
	Sweeper   handlers.Sweeper // nil disables sweeps
}

// Runner manages the event-driven components.
type Runner struct {
	config Config
	deps   Deps
	logger *slog.Logger
}

// NewRunner creates a new runner. Download status transitions are
// published on the bus from here on.
func NewRunner(cfg Config, deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "runner"),
	}
	deps.Downloads.OnTransition(r.publishTransition)
	return r
}

// Run starts all components and blocks until ctx is canceled or one of
// them fails. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) error {
	hs := []handlers.Handler{
		handlers.NewProcessHandler(r.deps.Bus, r.deps.Processor, r.config.MaxConcurrentDownloads, r.logger),
	}
	if r.deps.Sweeper != nil {
		hs = append(hs, handlers.NewSweepHandler(r.deps.Bus, r.deps.Sweeper, r.logger))
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, h := range hs {
		g.Go(func() error {
			r.logger.Debug("handler starting", "handler", h.Name())
			if err := h.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("handler %s: %w", h.Name(), err)
			}
			return nil
		})
	}

	g.Go(func() error { return r.pollLoop(ctx) })
	if r.deps.Sweeper != nil && r.config.SweepInterval > 0 {
		g.Go(func() error { return r.sweepLoop(ctx) })
	}
	if r.config.Listen != "" {
		g.Go(func() error { return r.serve(ctx) })
	}

	r.logger.Info("runner started", "handlers", len(hs), "poll_interval", r.config.PollInterval,
		"sweep_interval", r.config.SweepInterval, "listen", r.config.Listen)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *Runner) publishTransition(t download.TransitionEvent) {
	e := &events.DownloadStatusChanged{
		BaseEvent:  events.NewBaseEvent(events.EventDownloadStatusChanged, events.EntityDownload, t.DownloadID),
		DownloadID: t.DownloadID,
		OldStatus:  string(t.From),
		NewStatus:  string(t.To),
	}
	if err := r.deps.Bus.Publish(context.Background(), e); err != nil {
		r.logger.Warn("publish transition", "download_id", t.DownloadID, "error", err)
	}
}

// pollLoop hands pending downloads, and downloads stuck in processing, to
// the process handler.
func (r *Runner) pollLoop(ctx context.Context) error {
	interval := r.config.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.poll(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	pending := download.StatusPending
	ready, err := r.deps.Downloads.List(download.Filter{Status: &pending})
	if err != nil {
		r.logger.Error("list pending downloads", "error", err)
		return
	}
	if r.config.StuckAfter > 0 {
		stuck, err := r.deps.Downloads.ListStuck(map[download.Status]time.Duration{
			download.StatusProcessing: r.config.StuckAfter,
		})
		if err != nil {
			r.logger.Error("list stuck downloads", "error", err)
		}
		for _, d := range stuck {
			r.logger.Warn("resuming stuck download", "download_id", d.ID, "since", d.LastTransitionAt)
		}
		ready = append(ready, stuck...)
	}

	for _, d := range ready {
		e := &events.DownloadCompleted{
			BaseEvent:  events.NewBaseEvent(events.EventDownloadCompleted, events.EntityDownload, d.ID),
			DownloadID: d.ID,
			Path:       d.Path,
		}
		if err := r.deps.Bus.Publish(ctx, e); err != nil {
			r.logger.Error("publish download completed", "download_id", d.ID, "error", err)
		}
	}
}

func (r *Runner) sweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e := &events.SweepRequested{
				BaseEvent: events.NewBaseEvent(events.EventSweepRequested, events.EntityLibrary, 0),
				Dedup:     r.config.Sweep.Dedup,
				Orphans:   r.config.Sweep.Orphans,
				EmptyDirs: r.config.Sweep.EmptyDirs,
			}
			if err := r.deps.Bus.Publish(ctx, e); err != nil {
				r.logger.Error("publish sweep request", "error", err)
			}
		}
	}
}

func (r *Runner) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return logRequests(mux, r.logger)
}

func (r *Runner) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.config.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	r.logger.Info("http listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: %w", err)
	}
	return ctx.Err()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
