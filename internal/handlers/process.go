// internal/handlers/process.go
package handlers

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/processing"
)

// Processor runs the match-and-organize pipeline for one download.
type Processor interface {
	Process(ctx context.Context, id int64, opts processing.Options) (*processing.Result, error)
}

// ProcessHandler processes downloads as they complete.
type ProcessHandler struct {
	*BaseHandler
	processor Processor
	completed <-chan events.Event
	sem       *semaphore.Weighted

	// Downloads with a run queued or in flight, and whether a forced run
	// was requested meanwhile. Repeated unforced events for them are dropped.
	mu       sync.Mutex
	inflight map[int64]bool
	wg       sync.WaitGroup
}

// NewProcessHandler creates a process handler that runs at most
// maxConcurrent downloads at once. It subscribes immediately, so events
// published before Start are not lost.
func NewProcessHandler(bus *events.Bus, p Processor, maxConcurrent int, logger *slog.Logger) *ProcessHandler {
	return &ProcessHandler{
		BaseHandler: NewBaseHandler(bus, "process", logger),
		processor:   p,
		completed:   bus.Subscribe(events.EventDownloadCompleted, 100),
		sem:         semaphore.NewWeighted(int64(max(maxConcurrent, 1))),
		inflight:    make(map[int64]bool),
	}
}

// Name returns the handler name.
func (h *ProcessHandler) Name() string {
	return "process"
}

// Start begins processing events. It waits for in-flight runs before
// returning.
func (h *ProcessHandler) Start(ctx context.Context) error {
	defer h.wg.Wait()
	for {
		select {
		case e, ok := <-h.completed:
			if !ok {
				return nil // bus closed
			}
			dc, ok := e.(*events.DownloadCompleted)
			if !ok {
				continue
			}
			if !h.claim(dc) {
				continue
			}
			h.wg.Add(1)
			go h.handle(ctx, dc)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// claim reports whether e starts a new run. A forced event for a download
// that is already running is remembered and run once the current run ends.
func (h *ProcessHandler) claim(e *events.DownloadCompleted) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.inflight[e.DownloadID]; !busy {
		h.inflight[e.DownloadID] = false
		return true
	}
	if e.Force {
		h.inflight[e.DownloadID] = true
		h.Logger().Debug("forced processing queued after current run", "download_id", e.DownloadID)
		return false
	}
	h.Logger().Debug("processing already queued", "download_id", e.DownloadID)
	return false
}

// release ends the download's run unless a forced run is waiting, in which
// case it reports true and the caller runs again.
func (h *ProcessHandler) release(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight[id] {
		h.inflight[id] = false
		return true
	}
	delete(h.inflight, id)
	return false
}

func (h *ProcessHandler) busy(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.inflight[id]
	return ok
}

func (h *ProcessHandler) handle(ctx context.Context, e *events.DownloadCompleted) {
	defer h.wg.Done()

	force := e.Force
	for {
		h.run(ctx, e.DownloadID, force)
		if ctx.Err() != nil {
			h.mu.Lock()
			delete(h.inflight, e.DownloadID)
			h.mu.Unlock()
			return
		}
		if !h.release(e.DownloadID) {
			return
		}
		force = true
	}
}

func (h *ProcessHandler) run(ctx context.Context, id int64, force bool) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.sem.Release(1)

	res, err := h.processor.Process(ctx, id, processing.Options{Force: force})
	if err != nil {
		h.Logger().Error("processing failed", "download_id", id, "error", err)
		return
	}
	h.Logger().Info("download processed",
		"download_id", id,
		"status", res.Status,
		"force", force,
		"processed", res.FilesProcessed,
		"failed", res.FilesFailed)
}
