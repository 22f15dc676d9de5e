// internal/processing/group.go
package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vmunix/librarr/internal/analysis"
	"github.com/vmunix/librarr/internal/download"
	"github.com/vmunix/librarr/internal/events"
	"github.com/vmunix/librarr/internal/importer"
	"github.com/vmunix/librarr/internal/library"
	"github.com/vmunix/librarr/pkg/release"
)

// tally counts what a group of records did. Each group fills its own tally;
// tallies are merged once the groups are done.
type tally struct {
	processed   int
	failed      int
	skipped     int
	matched     int
	organized   int
	unorganized int // ingested into libraries that do not organize
	fulfilled   []library.Key
	messages    []string

	// records finished by earlier runs of the same download
	earlierMatched     int
	earlierUnorganized int
}

func (t *tally) add(o tally) {
	t.processed += o.processed
	t.failed += o.failed
	t.skipped += o.skipped
	t.matched += o.matched
	t.organized += o.organized
	t.unorganized += o.unorganized
	t.earlierMatched += o.earlierMatched
	t.earlierUnorganized += o.earlierUnorganized
	t.fulfilled = append(t.fulfilled, o.fulfilled...)
	t.messages = append(t.messages, o.messages...)
}

func (t tally) apply(res *Result) {
	res.FilesProcessed = t.processed
	res.FilesFailed = t.failed
	res.FilesSkipped = t.skipped
	res.Matched = t.matched
	res.Organized = t.organized
	res.Messages = append(res.Messages, t.messages...)
}

// status derives the terminal status of a run that did not fail outright.
// A run that left anything unorganized ends matched rather than completed.
// Records finished by earlier runs count, so a retry never demotes a
// download whose files are already ingested.
func (t tally) status() download.Status {
	switch {
	case t.matched+t.earlierMatched == 0:
		return download.StatusUnmatched
	case t.processed == 0 && t.failed > 0 && t.earlierMatched == 0:
		return download.StatusError
	case t.unorganized > 0 || t.earlierUnorganized > 0 || t.failed > 0:
		return download.StatusMatched
	default:
		return download.StatusCompleted
	}
}

// group is the records of one owning show, movie, album or audiobook.
// Records without an owner share the zero group.
type group struct {
	owner   library.Owner
	records []*download.MatchRecord
}

// groupRecords groups records by owner, keeping first-seen order.
func groupRecords(records []*download.MatchRecord) []*group {
	var groups []*group
	index := make(map[library.Owner]*group)
	for _, r := range records {
		owner, _ := library.OwnerOf(r.Target)
		g, ok := index[owner]
		if !ok {
			g = &group{owner: owner}
			index[owner] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}
	return groups
}

// processGroups runs groups concurrently, a batch at a time.
func (p *Processor) processGroups(ctx context.Context, d *download.Download, records []*download.MatchRecord, log *slog.Logger) (tally, error) {
	var total tally
	groups := groupRecords(records)
	tallies := make([]tally, len(groups))

	for start := 0; start < len(groups); start += groupsPerBatch {
		if start > 0 && p.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(p.batchDelay):
			}
		}

		end := min(start+groupsPerBatch, len(groups))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.groupWorkers)
		for i := start; i < end; i++ {
			g.Go(func() error {
				var err error
				tallies[i], err = p.processGroup(gctx, d, groups[i], log)
				return err
			})
		}
		err := g.Wait()
		for _, t := range tallies[start:end] {
			total.add(t)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *Processor) processGroup(ctx context.Context, d *download.Download, g *group, log *slog.Logger) (tally, error) {
	var t tally
	if g.owner.Kind != "" {
		log = log.With("owner", fmt.Sprintf("%s:%d", g.owner.Kind, g.owner.ID))
	}
	for _, rec := range g.records {
		rt, err := p.processRecord(ctx, d, rec, log)
		t.add(rt)
		if err != nil {
			return t, err
		}
	}
	return t, nil
}

// processRecord ingests the file of one record. Only failures that stop
// the whole run are returned; per-file failures are recorded on the record.
func (p *Processor) processRecord(ctx context.Context, d *download.Download, rec *download.MatchRecord, log *slog.Logger) (tally, error) {
	var t tally
	if err := ctx.Err(); err != nil {
		return t, err
	}
	log = log.With("file", rec.FilePath, "file_index", rec.FileIndex)

	if rec.Target == nil {
		t.messages = append(t.messages, fmt.Sprintf("%s: no target linked", filepath.Base(rec.FilePath)))
		return t, nil
	}

	key, isEntity := library.KeyOf(rec.Target)
	if isEntity {
		t.matched++
	}
	if rec.SkipDownload || !isEntity {
		if err := p.matches.MarkProcessed(rec.ID, nil, ""); err != nil {
			return t, err
		}
		t.skipped++
		filesProcessed.WithLabelValues(outcomeSkipped).Inc()
		log.Debug("file skipped", "target_kind", rec.Target.Kind(), "reason", rec.SkipReason)
		return t, nil
	}

	if rec.MatchType != download.MatchForced {
		reason, err := p.audioSkipReason(rec.Target)
		if err != nil {
			return p.failRecord(ctx, d, rec, nil, err, t, log)
		}
		if reason != "" {
			if err := p.matches.MarkSkipped(rec.ID, reason); err != nil {
				return t, err
			}
			t.skipped++
			t.messages = append(t.messages, fmt.Sprintf("%s: %s", filepath.Base(rec.FilePath), reason))
			filesProcessed.WithLabelValues(outcomeSkipped).Inc()
			log.Debug("file skipped", "target_kind", rec.Target.Kind(), "reason", reason)
			return t, nil
		}
	}

	desc, err := p.library.Describe(rec.Target)
	if err != nil {
		return p.failRecord(ctx, d, rec, nil, fmt.Errorf("describe %s: %w", key, err), t, log)
	}
	lib := desc.Library

	file, err := p.fileFor(rec, lib)
	if err != nil {
		return p.failRecord(ctx, d, rec, nil, err, t, log)
	}

	placed, duplicate := file.Path, false
	if lib.Organize {
		dst := importer.PlanFor(lib, desc, filepath.Base(rec.FilePath))
		pr := p.placer.Place(ctx, file, dst, lib.TransferMode, lib.Root)
		if !pr.Success {
			return p.failRecord(ctx, d, rec, &file.ID, errors.New(pr.Error), t, log)
		}
		placed, duplicate = pr.Path, pr.Duplicate
		if duplicate {
			// The record was dropped in favor of the file already there.
			owner, err := p.library.GetFileByPath(pr.Path)
			if err != nil {
				return p.failRecord(ctx, d, rec, nil, fmt.Errorf("load placed file: %w", err), t, log)
			}
			file = owner
		}
		t.organized++
	} else {
		t.unorganized++
	}

	if !duplicate {
		p.enqueueAnalysis(ctx, file, log)
	}

	if err := p.matches.MarkProcessed(rec.ID, &file.ID, ""); err != nil {
		return t, err
	}
	t.processed++
	t.fulfilled = append(t.fulfilled, key)

	outcome := outcomeImported
	if duplicate {
		outcome = outcomeDuplicate
	}
	filesProcessed.WithLabelValues(outcome).Inc()
	log.Info("file processed", "target", desc.Target, "path", placed, "duplicate", duplicate)

	p.publish(ctx, &events.FileOrganized{
		BaseEvent:  events.NewBaseEvent(events.EventFileOrganized, events.EntityFile, file.ID),
		DownloadID: d.ID,
		FileID:     file.ID,
		Target:     fmt.Sprint(desc.Target),
		Path:       placed,
		Duplicate:  duplicate,
	})
	return t, nil
}

// fileFor returns the library file for the record's path, creating it when
// needed and linking it to the record's target.
func (p *Processor) fileFor(rec *download.MatchRecord, lib *library.Library) (*library.File, error) {
	f, err := p.library.GetFileByPath(rec.FilePath)
	switch {
	case err == nil:
		f.LibraryID = lib.ID
		if err := f.SetTarget(rec.Target); err != nil {
			return nil, err
		}
		if err := p.library.UpdateFile(f); err != nil {
			return nil, fmt.Errorf("relink file %d: %w", f.ID, err)
		}
		return f, nil
	case !errors.Is(err, library.ErrNotFound):
		return nil, err
	}

	q := rec.Quality
	if q.IsZero() {
		q = release.ParseQuality(filepath.Base(rec.FilePath))
	}
	f = &library.File{
		LibraryID:  lib.ID,
		Path:       rec.FilePath,
		SizeBytes:  rec.FileSize,
		Container:  strings.TrimPrefix(strings.ToLower(filepath.Ext(rec.FilePath)), "."),
		Resolution: q.Resolution,
		HDRType:    q.HDR,
	}
	if release.IsAudioFile(rec.FilePath) {
		f.AudioCodec = q.Codec
	} else {
		f.VideoCodec = q.Codec
		f.AudioCodec = q.Audio
	}
	if f.SizeBytes == 0 {
		if info, err := os.Stat(rec.FilePath); err == nil {
			f.SizeBytes = info.Size()
		}
	}
	if err := f.SetTarget(rec.Target); err != nil {
		return nil, err
	}
	if err := p.library.AddFile(f); err != nil {
		return nil, fmt.Errorf("create library file: %w", err)
	}
	return f, nil
}

func (p *Processor) failRecord(ctx context.Context, d *download.Download, rec *download.MatchRecord,
	fileID *int64, cause error, t tally, log *slog.Logger) (tally, error) {
	if err := ctx.Err(); err != nil {
		return t, err
	}
	log.Warn("file processing failed", "error", cause)
	if err := p.matches.MarkProcessed(rec.ID, fileID, cause.Error()); err != nil {
		return t, err
	}
	t.failed++
	t.messages = append(t.messages, fmt.Sprintf("%s: %v", filepath.Base(rec.FilePath), cause))
	filesProcessed.WithLabelValues(outcomeFailed).Inc()

	p.publish(ctx, &events.FileFailed{
		BaseEvent:  events.NewBaseEvent(events.EventFileFailed, events.EntityDownload, d.ID),
		DownloadID: d.ID,
		FileIndex:  rec.FileIndex,
		Path:       rec.FilePath,
		Reason:     cause.Error(),
	})
	return t, nil
}

// enqueueAnalysis hands the file to the analysis queue. Failures are logged
// and never affect the file's outcome.
func (p *Processor) enqueueAnalysis(ctx context.Context, f *library.File, log *slog.Logger) {
	if p.analysis == nil {
		return
	}
	job := analysis.Job{
		FileID:         f.ID,
		Path:           f.Path,
		CheckSubtitles: release.IsVideoFile(f.Path),
	}
	if err := p.analysis.Submit(ctx, job); err != nil {
		log.Warn("queue analysis", "file_id", f.ID, "error", err)
	}
}
