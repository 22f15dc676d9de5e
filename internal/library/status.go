package library

import (
	"fmt"
)

func entityTable(kind TargetKind) (string, error) {
	switch kind {
	case KindEpisode:
		return "episodes", nil
	case KindMovie:
		return "movies", nil
	case KindTrack:
		return "tracks", nil
	case KindChapter:
		return "chapters", nil
	default:
		return "", fmt.Errorf("status of %q: %w", kind, ErrUnknownTarget)
	}
}

func setStatus(q querier, key Key, status Status) error {
	table, err := entityTable(key.Kind)
	if err != nil {
		return err
	}
	result, err := q.Exec("UPDATE "+table+" SET status = ? WHERE id = ?", status, key.ID)
	if err != nil {
		return fmt.Errorf("set %s status: %w", key, mapSQLiteError(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set %s status: %w", key, ErrNotFound)
	}
	return nil
}

// SetStatus sets the fulfillment status of an entity.
func (s *Store) SetStatus(key Key, status Status) error { return setStatus(s.db, key, status) }

// SetStatus sets the fulfillment status of an entity within a transaction.
func (t *Tx) SetStatus(key Key, status Status) error { return setStatus(t.tx, key, status) }

// GetStatus returns the fulfillment status of an entity.
func (s *Store) GetStatus(key Key) (Status, error) {
	table, err := entityTable(key.Kind)
	if err != nil {
		return "", err
	}
	var status Status
	if err := s.db.QueryRow("SELECT status FROM "+table+" WHERE id = ?", key.ID).Scan(&status); err != nil {
		return "", fmt.Errorf("get %s status: %w", key, mapSQLiteError(err))
	}
	return status, nil
}

func markFulfilled(q querier, key Key) error {
	switch key.Kind {
	case KindEpisode:
		return setStatus(q, key, StatusDownloaded)
	case KindMovie, KindTrack, KindChapter:
		table, _ := entityTable(key.Kind)
		result, err := q.Exec("UPDATE "+table+" SET has_file = 1, status = ? WHERE id = ?", StatusDownloaded, key.ID)
		if err != nil {
			return fmt.Errorf("mark %s fulfilled: %w", key, mapSQLiteError(err))
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("mark %s fulfilled: %w", key, ErrNotFound)
		}
		return nil
	default:
		return fmt.Errorf("mark %s fulfilled: %w", key, ErrUnknownTarget)
	}
}

// MarkFulfilled records that an entity now has a file: episodes become
// downloaded; movies, tracks and chapters also get has_file set.
func (s *Store) MarkFulfilled(key Key) error { return markFulfilled(s.db, key) }

// MarkFulfilled records that an entity has a file within a transaction.
func (t *Tx) MarkFulfilled(key Key) error { return markFulfilled(t.tx, key) }

func clearFulfilled(q querier, key Key) error {
	switch key.Kind {
	case KindEpisode:
		_, err := q.Exec("UPDATE episodes SET status = ? WHERE id = ? AND status = ?", StatusWanted, key.ID, StatusDownloaded)
		if err != nil {
			return fmt.Errorf("clear %s: %w", key, mapSQLiteError(err))
		}
		return nil
	case KindMovie, KindTrack, KindChapter:
		table, _ := entityTable(key.Kind)
		_, err := q.Exec(`UPDATE `+table+` SET has_file = 0,
			status = CASE WHEN status = ? THEN ? ELSE status END
			WHERE id = ?`, StatusDownloaded, StatusWanted, key.ID)
		if err != nil {
			return fmt.Errorf("clear %s: %w", key, mapSQLiteError(err))
		}
		return nil
	default:
		return fmt.Errorf("clear %s: %w", key, ErrUnknownTarget)
	}
}

// ClearFulfilled undoes MarkFulfilled after an entity's file was removed.
// Ignored entities stay ignored.
func (s *Store) ClearFulfilled(key Key) error { return clearFulfilled(s.db, key) }

// ClearFulfilled undoes MarkFulfilled within a transaction.
func (t *Tx) ClearFulfilled(key Key) error { return clearFulfilled(t.tx, key) }

// RevertDownloading moves an entity from downloading back to wanted. Other
// statuses are left alone so the call is safe to repeat.
func (s *Store) RevertDownloading(key Key) error {
	table, err := entityTable(key.Kind)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("UPDATE "+table+" SET status = ? WHERE id = ? AND status = ?",
		StatusWanted, key.ID, StatusDownloading)
	if err != nil {
		return fmt.Errorf("revert %s: %w", key, mapSQLiteError(err))
	}
	return nil
}
