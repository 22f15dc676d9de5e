// internal/handlers/sweep.go
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/maintenance"
)

// Sweeper runs maintenance sweeps.
type Sweeper interface {
	Run(ctx context.Context, opts maintenance.Options) (*maintenance.Report, error)
}

// SweepHandler runs maintenance sweeps on request, one at a time.
type SweepHandler struct {
	*BaseHandler
	sweeper   Sweeper
	requested <-chan events.Event
}

// NewSweepHandler creates a sweep handler.
func NewSweepHandler(bus *events.Bus, s Sweeper, logger *slog.Logger) *SweepHandler {
	return &SweepHandler{
		BaseHandler: NewBaseHandler(bus, "sweep", logger),
		sweeper:     s,
		requested:   bus.Subscribe(events.EventSweepRequested, 10),
	}
}

// Name returns the handler name.
func (h *SweepHandler) Name() string {
	return "sweep"
}

// Start begins processing events.
func (h *SweepHandler) Start(ctx context.Context) error {
	for {
		select {
		case e, ok := <-h.requested:
			if !ok {
				return nil // bus closed
			}
			if req, ok := e.(*events.SweepRequested); ok {
				h.handle(ctx, req)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *SweepHandler) handle(ctx context.Context, e *events.SweepRequested) {
	opts := maintenance.Options{Dedup: e.Dedup, Orphans: e.Orphans, EmptyDirs: e.EmptyDirs}
	if opts == (maintenance.Options{}) {
		opts = maintenance.All
	}

	report, err := h.sweeper.Run(ctx, opts)
	switch {
	case errors.Is(err, maintenance.ErrSweepInProgress):
		h.Logger().Info("sweep skipped, another is running")
		return
	case err != nil:
		h.Logger().Error("sweep failed", "error", err)
		return
	}

	for _, msg := range report.Errors {
		h.Logger().Warn("sweep problem", "error", msg)
	}
	h.publish(ctx, &events.SweepCompleted{
		BaseEvent:         events.NewBaseEvent(events.EventSweepCompleted, events.EntityLibrary, 0),
		DuplicatesRemoved: report.DuplicatesRemoved,
		OrphansRemoved:    report.OrphansRemoved,
		OrphansKept:       report.OrphansKept,
		DirsRemoved:       report.DirsRemoved,
	})
}
