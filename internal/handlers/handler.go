// Package handlers connects bus events to the components that act on them.
package handlers

import (
	"context"
	"log/slog"

	"github.com/vmunix/librarr/internal/events"
)

// Handler processes events of specific types.
type Handler interface {
	// Start begins processing events (blocking).
	Start(ctx context.Context) error

	// Name returns handler name for logging.
	Name() string
}

// BaseHandler provides common handler functionality.
type BaseHandler struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewBaseHandler creates a base handler whose logger is tagged with name.
func NewBaseHandler(bus *events.Bus, name string, logger *slog.Logger) *BaseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaseHandler{
		bus:    bus,
		logger: logger.With("component", "handler", "handler", name),
	}
}

// Bus returns the event bus.
func (h *BaseHandler) Bus() *events.Bus {
	return h.bus
}

// Logger returns the handler's logger.
func (h *BaseHandler) Logger() *slog.Logger {
	return h.logger
}

// publish logs instead of returning publish failures.
func (h *BaseHandler) publish(ctx context.Context, e events.Event) {
	if err := h.bus.Publish(ctx, e); err != nil {
		h.logger.Error("publish event", "type", e.EventType(), "error", err)
	}
}
