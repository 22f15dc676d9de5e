// internal/handlers/process_test.go
package handlers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/processing"
)

// fakeProcessor records calls. While gate is non-nil each call blocks until
// gate is closed.
type fakeProcessor struct {
	mu      sync.Mutex
	calls   []int64
	forced  []bool
	running int
	peak    int
	gate    chan struct{}
	err     error
}

func (p *fakeProcessor) Process(ctx context.Context, id int64, opts processing.Options) (*processing.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, id)
	p.forced = append(p.forced, opts.Force)
	p.running++
	p.peak = max(p.peak, p.running)
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	p.mu.Lock()
	p.running--
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &processing.Result{DownloadID: id, Status: download.StatusCompleted}, nil
}

func (p *fakeProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProcessor) peakRunning() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func completed(id int64, force bool) *events.DownloadCompleted {
	return &events.DownloadCompleted{
		BaseEvent:  events.NewBaseEvent(events.EventDownloadCompleted, events.EntityDownload, id),
		DownloadID: id,
		Force:      force,
	}
}

// startHandler runs h until the test ends and returns its exit error channel.
func startHandler(t *testing.T, h Handler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestProcessHandler_ProcessesCompletedDownloads(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{}
	h := NewProcessHandler(bus, proc, 2, nil)

	// Published before Start: the subscription already exists.
	require.NoError(t, bus.Publish(context.Background(), completed(1, false)))
	startHandler(t, h)
	require.NoError(t, bus.Publish(context.Background(), completed(2, true)))

	assert.Eventually(t, func() bool { return proc.callCount() == 2 }, time.Second, 5*time.Millisecond)
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.ElementsMatch(t, []int64{1, 2}, proc.calls)
	for i, id := range proc.calls {
		assert.Equal(t, id == 2, proc.forced[i], "force flag of download %d", id)
	}
}

func TestProcessHandler_DropsRepeatedEvents(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{gate: make(chan struct{})}
	h := NewProcessHandler(bus, proc, 2, nil)
	startHandler(t, h)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, completed(7, false)))
	assert.Eventually(t, func() bool { return proc.callCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, completed(7, false)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, proc.callCount(), "a second event for a running download is dropped")

	close(proc.gate)
	assert.Eventually(t, func() bool { return !h.busy(7) }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, completed(7, false)))
	assert.Eventually(t, func() bool { return proc.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestProcessHandler_ForcedEventRunsAfterCurrentRun(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{gate: make(chan struct{})}
	h := NewProcessHandler(bus, proc, 2, nil)
	startHandler(t, h)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, completed(7, false)))
	assert.Eventually(t, func() bool { return proc.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// Two forced requests while running collapse into one follow-up run.
	require.NoError(t, bus.Publish(ctx, completed(7, true)))
	require.NoError(t, bus.Publish(ctx, completed(7, true)))
	require.NoError(t, bus.Publish(ctx, completed(7, false)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, proc.callCount(), "runs for one download do not overlap")

	close(proc.gate)
	assert.Eventually(t, func() bool { return proc.callCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return !h.busy(7) }, time.Second, 5*time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []bool{false, true}, proc.forced)
}

func TestProcessHandler_LimitsConcurrency(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{gate: make(chan struct{})}
	h := NewProcessHandler(bus, proc, 2, nil)
	startHandler(t, h)

	for id := int64(1); id <= 4; id++ {
		require.NoError(t, bus.Publish(context.Background(), completed(id, false)))
	}
	assert.Eventually(t, func() bool { return proc.callCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, proc.callCount(), "only two runs at once")

	close(proc.gate)
	assert.Eventually(t, func() bool { return proc.callCount() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, proc.peakRunning())
}

func TestProcessHandler_ErrorsDoNotStopHandler(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{err: errors.New("database is locked")}
	h := NewProcessHandler(bus, proc, 1, nil)
	startHandler(t, h)

	require.NoError(t, bus.Publish(context.Background(), completed(1, false)))
	require.NoError(t, bus.Publish(context.Background(), completed(2, false)))
	assert.Eventually(t, func() bool { return proc.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestProcessHandler_StopsOnBusClose(t *testing.T) {
	bus := events.NewBus(nil, nil)
	h := NewProcessHandler(bus, &fakeProcessor{}, 1, nil)
	_, done := startHandler(t, h)

	require.NoError(t, bus.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop")
	}
}

func TestProcessHandler_WaitsForRunsOnShutdown(t *testing.T) {
	bus := events.NewBus(nil, nil)
	defer func() { _ = bus.Close() }()

	proc := &fakeProcessor{gate: make(chan struct{})}
	h := NewProcessHandler(bus, proc, 1, nil)
	cancel, done := startHandler(t, h)

	require.NoError(t, bus.Publish(context.Background(), completed(1, false)))
	assert.Eventually(t, func() bool { return proc.callCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("handler did not stop")
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Zero(t, proc.running, "run finished before Start returned")
}
