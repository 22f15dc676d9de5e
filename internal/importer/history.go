// internal/importer/history.go
package importer

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vmunix/librarr/internal/library"
)

// Event types for history records.
const (
	EventImported    = "imported"
	EventDuplicate   = "duplicate"
	EventQuarantined = "quarantined"
	EventConflicted  = "conflicted"
	EventDeleted     = "deleted"
	EventFailed      = "failed"
)

// HistoryEntry is one recorded outcome for a library file.
type HistoryEntry struct {
	ID         int64
	LibraryID  *int64
	FileID     *int64
	TargetKind library.TargetKind
	TargetID   *int64
	Event      string
	Path       string
	Data       string // JSON object
	CreatedAt  time.Time
}

// HistoryFilter specifies criteria for listing history.
type HistoryFilter struct {
	LibraryID *int64
	FileID    *int64
	Target    *library.Key
	Event     *string
	Limit     int
}

// HistoryStore persists history records.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a history store.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// entryFor builds a history entry describing f. data may be nil.
func entryFor(f *library.File, event, path string, data map[string]any) *HistoryEntry {
	h := &HistoryEntry{Event: event, Path: path, Data: "{}"}
	if f.LibraryID != 0 {
		h.LibraryID = &f.LibraryID
	}
	if f.ID != 0 {
		h.FileID = &f.ID
	}
	if key, ok := library.KeyOf(f.Target()); ok {
		h.TargetKind = key.Kind
		h.TargetID = &key.ID
	}
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			h.Data = string(b)
		}
	}
	return h
}

// Record adds an entry describing f. data may be nil.
func (s *HistoryStore) Record(f *library.File, event, path string, data map[string]any) error {
	return s.Add(entryFor(f, event, path, data))
}

// Add inserts a new history entry.
func (s *HistoryStore) Add(h *HistoryEntry) error {
	if h.Data == "" {
		h.Data = "{}"
	}
	now := time.Now()
	result, err := s.db.Exec(`
		INSERT INTO history (library_id, file_id, target_kind, target_id, event, path, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.LibraryID, h.FileID, h.TargetKind, h.TargetID, h.Event, h.Path, h.Data, now,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	h.ID = id
	h.CreatedAt = now
	return nil
}

// List returns history entries newest first.
func (s *HistoryStore) List(f HistoryFilter) ([]*HistoryEntry, error) {
	var conditions []string
	var args []any

	if f.LibraryID != nil {
		conditions = append(conditions, "library_id = ?")
		args = append(args, *f.LibraryID)
	}
	if f.FileID != nil {
		conditions = append(conditions, "file_id = ?")
		args = append(args, *f.FileID)
	}
	if f.Target != nil {
		conditions = append(conditions, "target_kind = ? AND target_id = ?")
		args = append(args, f.Target.Kind, f.Target.ID)
	}
	if f.Event != nil {
		conditions = append(conditions, "event = ?")
		args = append(args, *f.Event)
	}

	query := "SELECT id, library_id, file_id, target_kind, target_id, event, path, data, created_at FROM history"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*HistoryEntry
	for rows.Next() {
		h := &HistoryEntry{}
		if err := rows.Scan(&h.ID, &h.LibraryID, &h.FileID, &h.TargetKind, &h.TargetID,
			&h.Event, &h.Path, &h.Data, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		results = append(results, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return results, nil
}
