// Package processing turns a completed download into library files. Each
// file is matched to the entity it fulfills, placed in that entity's library
// and recorded, and the download ends in a terminal status.
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"github.com/vmunix/librarr/internal/analysis"
	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
)

// Defaults for the processing knobs.
const (
	DefaultGroupWorkers    = 2
	MaxGroupWorkers        = 3
	DefaultBatchDelay      = 2 * time.Second
	DefaultExpandTimeout   = 10 * time.Minute
	DefaultDiscoverTimeout = 15 * time.Second
)

// groupsPerBatch is how many owner groups run between batch delays.
const groupsPerBatch = 8

// Expander unpacks archives found in a download directory.
type Expander interface {
	NeedsExpansion(dir string) bool
	Expand(ctx context.Context, dir string) (string, error)
}

// AnalysisQueue accepts library files for metadata analysis.
type AnalysisQueue interface {
	Submit(ctx context.Context, job analysis.Job) error
}

// Discoverer adds a previously unknown movie to a library.
type Discoverer interface {
	DiscoverMovie(ctx context.Context, lib *library.Library, title string, year int) (*library.Movie, error)
}

// Matcher derives the match record of one file.
type Matcher interface {
	Match(ctx context.Context, d *download.Download, f download.FileEntry, libs []*library.Library) (*download.MatchRecord, error)
}

// Placer moves a file record's file into its library.
type Placer interface {
	Place(ctx context.Context, f *library.File, target string, action library.TransferMode, root string) importer.PlaceResult
}

// Options control one processing run.
type Options struct {
	// Force discards previous matches and library files still inside the
	// download and matches everything again.
	Force bool
}

// Result summarizes one processing run.
type Result struct {
	RunID          string          `json:"run_id"`
	DownloadID     int64           `json:"download_id"`
	Status         download.Status `json:"status"`
	FilesProcessed int             `json:"files_processed"`
	FilesFailed    int             `json:"files_failed"`
	FilesSkipped   int             `json:"files_skipped"`
	Matched        int             `json:"matched"`
	Organized      int             `json:"organized"`
	Messages       []string        `json:"messages,omitempty"`
}

// Processor drives completed downloads to a terminal status.
type Processor struct {
	downloads *download.Store
	matches   *download.MatchStore
	library   *library.Store
	source    download.Source
	matcher   Matcher
	placer    Placer

	expander   Expander
	analysis   AnalysisQueue
	discoverer Discoverer
	bus        events.Publisher

	groupWorkers    int
	batchDelay      time.Duration
	expandTimeout   time.Duration
	discoverTimeout time.Duration
	retryDelay      time.Duration

	locks *keyedMutex
	log   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithExpander enables archive expansion.
func WithExpander(e Expander) Option {
	return func(p *Processor) { p.expander = e }
}

// WithAnalysisQueue enables queueing of ingested files for analysis.
func WithAnalysisQueue(q AnalysisQueue) Option {
	return func(p *Processor) { p.analysis = q }
}

// WithDiscoverer enables adding unknown movies to libraries that allow it.
func WithDiscoverer(d Discoverer) Option {
	return func(p *Processor) { p.discoverer = d }
}

// WithPublisher sets where processing events go.
func WithPublisher(bus events.Publisher) Option {
	return func(p *Processor) { p.bus = bus }
}

// WithGroupWorkers sets how many owner groups are processed at once,
// clamped to [1, MaxGroupWorkers].
func WithGroupWorkers(n int) Option {
	return func(p *Processor) { p.groupWorkers = min(max(n, 1), MaxGroupWorkers) }
}

// WithBatchDelay sets the pause between batches of groups.
func WithBatchDelay(d time.Duration) Option {
	return func(p *Processor) { p.batchDelay = d }
}

// WithExpandTimeout bounds archive expansion.
func WithExpandTimeout(d time.Duration) Option {
	return func(p *Processor) { p.expandTimeout = d }
}

// WithDiscoverTimeout bounds each discovery lookup.
func WithDiscoverTimeout(d time.Duration) Option {
	return func(p *Processor) { p.discoverTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.log = l }
}

// New creates a processor.
func New(downloads *download.Store, matches *download.MatchStore, lib *library.Store,
	source download.Source, m Matcher, placer Placer, opts ...Option) *Processor {
	p := &Processor{
		downloads:       downloads,
		matches:         matches,
		library:         lib,
		source:          source,
		matcher:         m,
		placer:          placer,
		groupWorkers:    DefaultGroupWorkers,
		batchDelay:      DefaultBatchDelay,
		expandTimeout:   DefaultExpandTimeout,
		discoverTimeout: DefaultDiscoverTimeout,
		retryDelay:      500 * time.Millisecond,
		locks:           newKeyedMutex(),
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "processing")
	return p
}

// Process handles download id. A completed download is left alone unless
// opts.Force is set. Runs for the same download are serialized.
//
// Per-file failures are reported in the result and do not fail the run. An
// error is returned only when the run itself could not proceed, in which case
// the download ends in the error status.
func (p *Processor) Process(ctx context.Context, id int64, opts Options) (*Result, error) {
	unlock := p.locks.Lock(id)
	defer unlock()

	d, err := p.downloads.Get(id)
	if err != nil {
		return nil, fmt.Errorf("load download %d: %w", id, err)
	}

	res := &Result{RunID: uuid.NewString(), DownloadID: id}
	log := p.log.With("download_id", id, "run_id", res.RunID)

	if d.Status == download.StatusCompleted && !opts.Force {
		log.Debug("download already completed")
		res.Status = d.Status
		return res, nil
	}

	// A download left in processing by an interrupted run resumes as is.
	if d.Status != download.StatusProcessing {
		if err := p.downloads.Transition(d, download.StatusProcessing); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	log.Info("processing started", "name", d.Name, "path", d.Path, "force", opts.Force)
	p.publish(ctx, &events.ProcessingStarted{
		BaseEvent:  events.NewBaseEvent(events.EventProcessingStarted, events.EntityDownload, id),
		DownloadID: id,
		RunID:      res.RunID,
		Force:      opts.Force,
	})

	t, runErr := p.run(ctx, d, opts, log)
	t.apply(res)

	if runErr != nil {
		res.Status = download.StatusError
		res.Messages = append(res.Messages, runErr.Error())
		log.Error("processing failed", "error", runErr)
		if err := p.downloads.Fail(d, runErr.Error()); err != nil {
			log.Error("record failure", "error", err)
		}
	} else {
		res.Status = t.status()
		if err := p.downloads.Transition(d, res.Status); err != nil {
			runErr = fmt.Errorf("finish download %d: %w", id, err)
		}
	}

	processingDuration.Observe(time.Since(start).Seconds())
	downloadsProcessed.WithLabelValues(string(res.Status)).Inc()
	log.Info("processing finished", "status", res.Status, "processed", res.FilesProcessed,
		"failed", res.FilesFailed, "skipped", res.FilesSkipped, "organized", res.Organized,
		"duration", time.Since(start))

	p.publish(ctx, &events.ProcessingFinished{
		BaseEvent:      events.NewBaseEvent(events.EventProcessingFinished, events.EntityDownload, id),
		DownloadID:     id,
		RunID:          res.RunID,
		Status:         string(res.Status),
		FilesProcessed: res.FilesProcessed,
		FilesFailed:    res.FilesFailed,
		FilesSkipped:   res.FilesSkipped,
		Matched:        res.Matched,
		Organized:      res.Organized,
		Messages:       res.Messages,
	})
	return res, runErr
}

func (p *Processor) run(ctx context.Context, d *download.Download, opts Options, log *slog.Logger) (tally, error) {
	var t tally

	files, err := p.listFiles(ctx, d)
	if err != nil {
		return t, err
	}
	if p.expand(ctx, d, log) {
		if files, err = p.listFiles(ctx, d); err != nil {
			return t, err
		}
	}

	if opts.Force {
		if err := p.forceReset(ctx, d, log); err != nil {
			return t, err
		}
	} else {
		n, err := p.matches.RequeueFailed(d.ID)
		if err != nil {
			return t, err
		}
		if n > 0 {
			log.Info("retrying failed files", "files", n)
		}
	}

	earlier, err := p.matches.ListByDownload(d.ID)
	if err != nil {
		return t, err
	}

	records, err := p.matches.ListUnprocessed(d.ID)
	if err != nil {
		return t, err
	}
	if len(records) == 0 {
		if records, err = p.autoMatch(ctx, d, files, &t, log); err != nil {
			return t, err
		}
	}

	groups, err := p.processGroups(ctx, d, records, log)
	t.add(groups)
	if err != nil {
		return t, err
	}
	if err := p.countEarlier(earlier, &t); err != nil {
		return t, err
	}

	t.messages = append(t.messages, p.fulfill(t.fulfilled, log)...)
	return t, nil
}

// listFiles retries transient listing failures.
func (p *Processor) listFiles(ctx context.Context, d *download.Download) ([]download.FileEntry, error) {
	var files []download.FileEntry
	err := retry.Do(
		func() error {
			var err error
			files, err = p.source.ListFiles(ctx, d)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(p.retryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("list files of download %d: %w", d.ID, err)
	}
	return files, nil
}

// expand unpacks archives in the download directory. It reports whether the
// files should be listed again; expansion failures are logged only.
func (p *Processor) expand(ctx context.Context, d *download.Download, log *slog.Logger) bool {
	if p.expander == nil {
		return false
	}
	info, err := os.Stat(d.Path)
	if err != nil || !info.IsDir() || !p.expander.NeedsExpansion(d.Path) {
		return false
	}

	ectx, cancel := context.WithTimeout(ctx, p.expandTimeout)
	defer cancel()
	if _, err := p.expander.Expand(ectx, d.Path); err != nil {
		log.Warn("archive expansion failed, continuing with existing files", "error", err)
	}
	return true
}

// forceReset removes library files still inside the download directory,
// undoing what they fulfilled, then clears the download's match records.
func (p *Processor) forceReset(ctx context.Context, d *download.Download, log *slog.Logger) error {
	prefix := d.Path
	files, _, err := p.library.ListFiles(library.FileFilter{PathPrefix: &prefix})
	if err != nil {
		return err
	}
	for _, f := range files {
		if key, ok := library.KeyOf(f.Target()); ok {
			if err := p.library.ClearFulfilled(key); err != nil && !errors.Is(err, library.ErrNotFound) {
				return err
			}
		}
		if err := p.library.DeleteFile(f.ID); err != nil {
			return err
		}
	}
	log.Info("force reset", "files_removed", len(files))
	return p.matches.ForceReset(ctx, d.ID, p.library)
}

// fulfill marks every distinct entity as having a file. Failures are
// returned as messages.
func (p *Processor) fulfill(keys []library.Key, log *slog.Logger) []string {
	var msgs []string
	seen := make(map[library.Key]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := p.library.MarkFulfilled(key); err != nil {
			log.Warn("update entity status", "target", key, "error", err)
			msgs = append(msgs, fmt.Sprintf("update %s: %v", key, err))
		}
	}
	return msgs
}

func (p *Processor) publish(ctx context.Context, e events.Event) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, e); err != nil {
		p.log.Warn("publish event", "type", e.EventType(), "error", err)
	}
}
