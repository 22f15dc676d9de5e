// Package maintenance restores consistency between the library database and
// the files on disk after the fact: duplicate files of one entity are
// collapsed, stray media left in library trees is removed and empty folders
// are pruned.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
)

var removedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "librarr_sweep_removed_total",
	Help: "Files and directories removed by maintenance sweeps.",
}, []string{"sweep"})

// Options selects which sweeps Run performs.
type Options struct {
	Dedup     bool
	Orphans   bool
	EmptyDirs bool
}

// All enables every sweep.
var All = Options{Dedup: true, Orphans: true, EmptyDirs: true}

// Report counts what a sweep changed.
type Report struct {
	DuplicatesRemoved int      `json:"duplicates_removed"`
	OrphansRemoved    int      `json:"orphans_removed"`
	OrphansKept       int      `json:"orphans_kept"`
	DirsRemoved       int      `json:"dirs_removed"`
	Errors            []string `json:"errors,omitempty"`
}

func (r *Report) add(o *Report) {
	r.DuplicatesRemoved += o.DuplicatesRemoved
	r.OrphansRemoved += o.OrphansRemoved
	r.OrphansKept += o.OrphansKept
	r.DirsRemoved += o.DirsRemoved
	r.Errors = append(r.Errors, o.Errors...)
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Sweeper runs maintenance sweeps over every library.
type Sweeper struct {
	library *library.Store
	history *importer.HistoryStore // nil disables history rows
	lock    *flock.Flock
	log     *slog.Logger
}

// New creates a sweeper. lockPath names the file that keeps concurrent
// sweeps, including ones in other processes, from overlapping.
func New(lib *library.Store, history *importer.HistoryStore, lockPath string, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		library: lib,
		history: history,
		lock:    flock.New(lockPath),
		log:     log.With("component", "maintenance"),
	}
}

// Run performs the selected sweeps while holding the sweep lock. Failures
// of individual files are collected in the report; an error is returned
// only when a sweep could not run at all.
func (s *Sweeper) Run(ctx context.Context, opts Options) (*Report, error) {
	ok, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, ErrSweepInProgress
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("release sweep lock", "error", err)
		}
	}()

	report := &Report{}
	if opts.Dedup {
		r, err := s.Dedup(ctx)
		if err != nil {
			return report, err
		}
		report.add(r)
	}

	libs, err := s.library.ListLibraries(nil)
	if err != nil {
		return report, err
	}
	for _, lib := range libs {
		if opts.Orphans {
			r, err := s.CleanOrphans(ctx, lib)
			if err != nil {
				return report, err
			}
			report.add(r)
		}
		if opts.EmptyDirs {
			r, err := s.CleanEmptyDirs(ctx, lib)
			if err != nil {
				return report, err
			}
			report.add(r)
		}
	}

	s.log.Info("sweep finished", "duplicates_removed", report.DuplicatesRemoved,
		"orphans_removed", report.OrphansRemoved, "orphans_kept", report.OrphansKept,
		"dirs_removed", report.DirsRemoved, "errors", len(report.Errors))
	return report, nil
}

func (s *Sweeper) record(f *library.File, reason string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(f, importer.EventDeleted, f.Path, map[string]any{"reason": reason}); err != nil {
		s.log.Warn("record history", "path", f.Path, "error", err)
	}
}

// absUnder resolves a planned path against root.
func absUnder(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}
