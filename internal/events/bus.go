package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// Publisher is the publishing half of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus fans events out to buffered subscriber channels. Delivery never
// blocks the publisher: a full subscriber loses the event.
type Bus struct {
	mu     sync.RWMutex
	byType map[string][]chan Event
	all    []chan Event
	store  *EventLog // may be nil
	logger *slog.Logger
	closed bool
}

// NewBus creates a new event bus. store may be nil to disable persistence.
func NewBus(store *EventLog, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byType: make(map[string][]chan Event),
		store:  store,
		logger: logger.With("component", "bus"),
	}
}

// Publish persists e when a log is attached and delivers it to subscribers
// of its type and to catch-all subscribers. Publishing on a closed bus is a
// no-op.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}

	if b.store != nil {
		if _, err := b.store.Append(e); err != nil {
			b.logger.Error("persist event", "type", e.EventType(), "error", err)
		}
	}

	b.deliver(b.byType[e.EventType()], e)
	b.deliver(b.all, e)
	return nil
}

func (b *Bus) deliver(subs []chan Event, e Event) {
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber full, dropping event",
				"type", e.EventType(),
				"entity_type", e.EntityType(),
				"entity_id", e.EntityID())
		}
	}
}

// Subscribe returns a channel for events of one type.
func (b *Bus) Subscribe(eventType string, bufferSize int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.byType[eventType] = append(b.byType[eventType], ch)
	return ch
}

// SubscribeAll returns a channel for every event.
func (b *Bus) SubscribeAll(bufferSize int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, bufferSize)
	if b.closed {
		close(ch)
		return ch
	}
	b.all = append(b.all, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	match := func(ch chan Event) bool { return ch == sub }
	for eventType, subs := range b.byType {
		if i := slices.IndexFunc(subs, match); i >= 0 {
			close(subs[i])
			b.byType[eventType] = slices.Delete(subs, i, i+1)
			return
		}
	}
	if i := slices.IndexFunc(b.all, match); i >= 0 {
		close(b.all[i])
		b.all = slices.Delete(b.all, i, i+1)
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.byType {
		for _, ch := range subs {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
	b.byType, b.all = nil, nil
	return nil
}
