// Package analysis holds the queue of library files waiting for metadata
// extraction. Extraction itself runs elsewhere; this package only records
// and hands out the work.
package analysis

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrEmpty is returned by Claim when no job is queued.
var ErrEmpty = errors.New("analysis queue is empty")

// Status is the state of an analysis job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Job asks for a library file to be analyzed.
type Job struct {
	ID             int64
	FileID         int64
	Path           string
	CheckSubtitles bool
	Status         Status
	SubmittedAt    time.Time
}

// Queue is a SQLite-backed job queue.
type Queue struct {
	db *sql.DB
}

// NewQueue creates a queue over db.
func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// Submit enqueues a job. A file that already has a queued job is not
// queued twice.
func (q *Queue) Submit(ctx context.Context, job Job) error {
	if job.FileID == 0 {
		return errors.New("submit analysis: file id required")
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (file_id, path, check_subtitles, status, submitted_at)
		SELECT ?, ?, ?, 'queued', ?
		WHERE NOT EXISTS (SELECT 1 FROM analysis_jobs WHERE file_id = ? AND status = 'queued')`,
		job.FileID, job.Path, job.CheckSubtitles, time.Now(), job.FileID,
	)
	if err != nil {
		return fmt.Errorf("submit analysis for file %d: %w", job.FileID, err)
	}
	return nil
}

// Claim marks the oldest queued job running and returns it.
// Returns ErrEmpty when nothing is queued.
//
// Claim and Finish are the consumer side of the queue, for the external
// extraction worker that reads this database. Nothing in this module
// consumes jobs.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	for {
		j := &Job{}
		err := q.db.QueryRowContext(ctx, `
			SELECT id, file_id, path, check_subtitles, status, submitted_at
			FROM analysis_jobs WHERE status = 'queued' ORDER BY id LIMIT 1`,
		).Scan(&j.ID, &j.FileID, &j.Path, &j.CheckSubtitles, &j.Status, &j.SubmittedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmpty
		}
		if err != nil {
			return nil, fmt.Errorf("claim analysis job: %w", err)
		}

		res, err := q.db.ExecContext(ctx,
			"UPDATE analysis_jobs SET status = 'running' WHERE id = ? AND status = 'queued'", j.ID)
		if err != nil {
			return nil, fmt.Errorf("claim analysis job %d: %w", j.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			j.Status = StatusRunning
			return j, nil
		}
		// Lost the race for this job; try the next one.
	}
}

// Finish records the outcome of a claimed job.
func (q *Queue) Finish(ctx context.Context, id int64, ok bool) error {
	status := StatusDone
	if !ok {
		status = StatusFailed
	}
	if _, err := q.db.ExecContext(ctx, "UPDATE analysis_jobs SET status = ? WHERE id = ?", status, id); err != nil {
		return fmt.Errorf("finish analysis job %d: %w", id, err)
	}
	return nil
}

// Counts returns the number of jobs per status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM analysis_jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count analysis jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[Status]int)
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[s] = n
	}
	return counts, rows.Err()
}
