// Package download tracks completed downloads and the per-file match records
// derived from them.
package download

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Client identifies where a download came from.
type Client string

const (
	ClientManual  Client = "manual"
	ClientTorrent Client = "torrent"
	ClientUsenet  Client = "usenet"
)

// Status tracks the processing state of a download.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusMatched    Status = "matched"
	StatusUnmatched  Status = "unmatched"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Download is one torrent or usenet job whose files sit at Path.
type Download struct {
	ID               int64
	Client           Client
	ClientID         string // ID in the download client, empty for manual
	Name             string
	Path             string
	Status           Status
	Error            string
	AddedAt          time.Time
	CompletedAt      *time.Time
	LastTransitionAt time.Time
}

// Filter specifies criteria for listing downloads.
type Filter struct {
	Status *Status
	Client *Client
	Limit  int // 0 = no limit
	Offset int
}

// TransitionEvent describes one status change.
type TransitionEvent struct {
	DownloadID int64
	From       Status
	To         Status
	At         time.Time
}

// TransitionHandler is called after a transition has been persisted.
type TransitionHandler func(TransitionEvent)

// Store persists download records.
type Store struct {
	db       *sql.DB
	handlers []TransitionHandler
}

// NewStore creates a download store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// OnTransition registers a handler to be called on state transitions.
func (s *Store) OnTransition(h TransitionHandler) {
	s.handlers = append(s.handlers, h)
}

const downloadColumns = "id, client, client_id, name, path, status, error, added_at, completed_at, last_transition_at"

func scanDownload(row interface{ Scan(...any) error }) (*Download, error) {
	d := &Download{}
	err := row.Scan(&d.ID, &d.Client, &d.ClientID, &d.Name, &d.Path, &d.Status, &d.Error,
		&d.AddedAt, &d.CompletedAt, &d.LastTransitionAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Add records a new download.
// This method is idempotent for client downloads: if a download with the same
// client and client_id already exists, the existing record is loaded into d.
func (s *Store) Add(d *Download) error {
	if d.Client == "" {
		d.Client = ClientManual
	}
	if d.Status == "" {
		d.Status = StatusPending
	}

	if d.ClientID != "" {
		existing, err := s.GetByClientID(d.Client, d.ClientID)
		if err == nil {
			*d = *existing
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("check existing download: %w", err)
		}
	}

	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO downloads (client, client_id, name, path, status, error, added_at, completed_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Client, d.ClientID, d.Name, d.Path, d.Status, d.Error, now, d.CompletedAt, now,
	)
	if err != nil {
		return fmt.Errorf("insert download: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	d.ID = id
	d.AddedAt = now
	d.LastTransitionAt = now
	return nil
}

// Get retrieves a download by ID.
// Returns ErrNotFound if the download does not exist.
func (s *Store) Get(id int64) (*Download, error) {
	d, err := scanDownload(s.db.QueryRow("SELECT "+downloadColumns+" FROM downloads WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get download %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get download %d: %w", id, err)
	}
	return d, nil
}

// GetByClientID retrieves a download by its client type and client-specific ID.
// Returns ErrNotFound if no matching download exists.
func (s *Store) GetByClientID(client Client, clientID string) (*Download, error) {
	d, err := scanDownload(s.db.QueryRow(
		"SELECT "+downloadColumns+" FROM downloads WHERE client = ? AND client_id = ?", client, clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get download by client %s/%s: %w", client, clientID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get download by client %s/%s: %w", client, clientID, err)
	}
	return d, nil
}

// Transition changes a download's status with validation and event emission.
// Entering processing clears any previous error; entering completed stamps
// completed_at.
func (s *Store) Transition(d *Download, to Status) error {
	return s.transition(d, to, "")
}

// Fail moves a download to the error status and records msg.
func (s *Store) Fail(d *Download, msg string) error {
	return s.transition(d, StatusError, msg)
}

func (s *Store) transition(d *Download, to Status, errMsg string) error {
	if !d.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}

	from := d.Status
	now := time.Now()
	completedAt := d.CompletedAt
	if to == StatusCompleted {
		completedAt = &now
	}

	result, err := s.db.Exec(`
		UPDATE downloads SET status = ?, error = ?, completed_at = ?, last_transition_at = ?
		WHERE id = ?`,
		to, errMsg, completedAt, now, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update download %d: %w", d.ID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("transition download %d: %w", d.ID, ErrNotFound)
	}

	d.Status = to
	d.Error = errMsg
	d.CompletedAt = completedAt
	d.LastTransitionAt = now

	event := TransitionEvent{
		DownloadID: d.ID,
		From:       from,
		To:         to,
		At:         now,
	}
	for _, h := range s.handlers {
		h(event)
	}

	return nil
}

// List returns downloads matching the specified filter.
func (s *Store) List(f Filter) ([]*Download, error) {
	var conditions []string
	var args []any

	if f.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Client != nil {
		conditions = append(conditions, "client = ?")
		args = append(args, *f.Client)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := "SELECT " + downloadColumns + " FROM downloads " + whereClause + " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan download: %w", err)
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate downloads: %w", err)
	}

	return results, nil
}

// ListStuck returns downloads that have sat in a status longer than its
// threshold. Statuses without a threshold are never stuck.
func (s *Store) ListStuck(thresholds map[Status]time.Duration) ([]*Download, error) {
	now := time.Now()
	var stuck []*Download
	for status, threshold := range thresholds {
		downloads, err := s.List(Filter{Status: &status})
		if err != nil {
			return nil, err
		}
		for _, d := range downloads {
			if now.Sub(d.LastTransitionAt) > threshold {
				stuck = append(stuck, d)
			}
		}
	}
	sort.Slice(stuck, func(i, j int) bool { return stuck[i].ID < stuck[j].ID })
	return stuck, nil
}

// Delete removes a download and, by cascade, its match records.
// This operation is idempotent - no error is returned if the download does not exist.
func (s *Store) Delete(id int64) error {
	_, err := s.db.Exec("DELETE FROM downloads WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete download %d: %w", id, err)
	}
	return nil
}
