// internal/importer/placer.go
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vmunix/librarr/internal/library"
)

// QuarantineDir is the folder under a library root that holds files displaced
// by a path conflict.
const QuarantineDir = ".quarantine"

// PlaceResult is the outcome of placing one file. Filesystem failures are
// reported here rather than returned as errors.
type PlaceResult struct {
	Success   bool
	Duplicate bool // the file was already in place under another record
	Path      string
	Error     string
}

// Placer moves files into their planned library location and keeps their
// records in step.
type Placer struct {
	files   *library.Store
	history *HistoryStore // nil disables history rows
	log     *slog.Logger
	now     func() time.Time
}

// NewPlacer creates a placer. history may be nil.
func NewPlacer(files *library.Store, history *HistoryStore, log *slog.Logger) *Placer {
	if log == nil {
		log = slog.Default()
	}
	return &Placer{
		files:   files,
		history: history,
		log:     log.With("component", "placer"),
		now:     time.Now,
	}
}

// Place puts f at target. A relative target is resolved against root.
// f must already be stored; on success its path is updated and it is marked
// organized. A source already inside root is always moved.
func (p *Placer) Place(ctx context.Context, f *library.File, target string, action library.TransferMode, root string) PlaceResult {
	if err := ctx.Err(); err != nil {
		return p.fail(f, target, err)
	}

	dst := target
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(root, dst)
		if err := ValidatePath(dst, root); err != nil {
			return p.fail(f, dst, err)
		}
	}
	dst = filepath.Clean(dst)
	src := filepath.Clean(f.Path)

	if src == dst {
		if !f.Organized {
			f.Organized = true
			if err := p.files.UpdateFile(f); err != nil {
				return p.fail(f, dst, err)
			}
		}
		return PlaceResult{Success: true, Path: dst}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return p.fail(f, dst, fmt.Errorf("create directory: %w", err))
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return p.fail(f, dst, fmt.Errorf("stat source: %w", err))
	}

	if dstInfo, err := os.Stat(dst); err == nil {
		if dstInfo.Size() == srcInfo.Size() {
			return p.alreadyPlaced(f, src, dst, root)
		}
		if err := p.quarantine(f, dst, root); err != nil {
			return p.conflicted(f, dst, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return p.fail(f, dst, fmt.Errorf("stat destination: %w", err))
	}

	if IsWithin(src, root) {
		action = library.TransferMove
	}
	if err := transfer(src, dst, action); err != nil {
		return p.fail(f, dst, err)
	}

	// Another record may have claimed dst while the transfer ran.
	if other, err := p.files.GetFileByPath(dst); err == nil && other.ID != f.ID {
		return p.dropDuplicate(f, src, dst, root, "claimed during transfer")
	}

	f.Path = dst
	f.SizeBytes = srcInfo.Size()
	f.Organized = true
	f.Conflicted = false
	f.ConflictMessage = ""
	if err := p.files.UpdateFile(f); err != nil {
		if errors.Is(err, library.ErrDuplicate) {
			f.Path = src
			return p.dropDuplicate(f, src, dst, root, "claimed during transfer")
		}
		return p.fail(f, dst, err)
	}

	p.log.Info("file placed", "file_id", f.ID, "src", src, "dest", dst, "action", action)
	p.record(f, EventImported, dst, map[string]any{"source": src, "action": string(action)})
	return PlaceResult{Success: true, Path: dst}
}

func transfer(src, dst string, action library.TransferMode) error {
	switch action {
	case library.TransferMove:
		return MoveFile(src, dst)
	case library.TransferHardlink:
		_, err := LinkFile(src, dst)
		return err
	default:
		_, err := CopyFile(src, dst)
		return err
	}
}

// alreadyPlaced handles a destination holding a same-size file.
func (p *Placer) alreadyPlaced(f *library.File, src, dst, root string) PlaceResult {
	other, err := p.files.GetFileByPath(dst)
	switch {
	case err == nil && other.ID != f.ID:
		return p.dropDuplicate(f, src, dst, root, "same size file already placed")
	case err != nil && !errors.Is(err, library.ErrNotFound):
		return p.fail(f, dst, err)
	}

	f.Path = dst
	f.Organized = true
	if err := p.files.UpdateFile(f); err != nil {
		return p.fail(f, dst, err)
	}
	p.log.Info("file already in place", "file_id", f.ID, "dest", dst)
	p.record(f, EventImported, dst, map[string]any{"source": src, "action": "adopt"})
	return PlaceResult{Success: true, Path: dst}
}

// dropDuplicate deletes f's record. The source file is removed only when it
// sits inside the library; download copies stay for seeding.
func (p *Placer) dropDuplicate(f *library.File, src, dst, root, reason string) PlaceResult {
	if err := p.files.DeleteFile(f.ID); err != nil {
		return p.fail(f, dst, err)
	}
	if IsWithin(src, root) {
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn("remove duplicate file", "path", src, "error", err)
		}
	}
	p.log.Info("duplicate dropped", "file_id", f.ID, "src", src, "dest", dst, "reason", reason)
	p.record(f, EventDuplicate, dst, map[string]any{"source": src, "reason": reason})
	return PlaceResult{Success: true, Duplicate: true, Path: dst}
}

// quarantine moves the occupant of dst out of the way. A record that owned
// the occupant follows it and is flagged conflicted.
func (p *Placer) quarantine(f *library.File, dst, root string) error {
	qpath, err := p.quarantinePath(dst, root)
	if err != nil {
		return err
	}
	if err := MoveFile(dst, qpath); err != nil {
		return fmt.Errorf("quarantine %s: %w", dst, err)
	}

	if occupant, err := p.files.GetFileByPath(dst); err == nil {
		occupant.Path = qpath
		occupant.Organized = false
		occupant.Conflicted = true
		occupant.ConflictMessage = fmt.Sprintf("displaced by file %d", f.ID)
		if err := p.files.UpdateFile(occupant); err != nil {
			p.log.Warn("update quarantined record", "file_id", occupant.ID, "error", err)
		}
	}

	p.log.Warn("destination occupied, quarantined", "dest", dst, "quarantine", qpath)
	p.record(f, EventQuarantined, qpath, map[string]any{"displaced": dst})
	return nil
}

func (p *Placer) quarantinePath(dst, root string) (string, error) {
	dir := filepath.Join(root, QuarantineDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine: %w", err)
	}
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(filepath.Base(dst), ext)
	stamp := p.now().Format("20060102-150405")

	candidate := filepath.Join(dir, stem+"."+stamp+ext)
	for i := 1; ; i++ {
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s.%s-%d%s", stem, stamp, i, ext))
	}
}

func (p *Placer) conflicted(f *library.File, dst string, cause error) PlaceResult {
	msg := fmt.Sprintf("%s is occupied and could not be quarantined: %v", dst, cause)
	f.Conflicted = true
	f.ConflictMessage = msg
	if err := p.files.UpdateFile(f); err != nil {
		p.log.Warn("mark file conflicted", "file_id", f.ID, "error", err)
	}
	p.log.Error("placement conflict", "file_id", f.ID, "dest", dst, "error", cause)
	p.record(f, EventConflicted, dst, map[string]any{"error": cause.Error()})
	return PlaceResult{Path: dst, Error: fmt.Errorf("%w: %s", ErrConflict, msg).Error()}
}

func (p *Placer) fail(f *library.File, dst string, err error) PlaceResult {
	p.log.Error("placement failed", "file_id", f.ID, "src", f.Path, "dest", dst, "error", err)
	p.record(f, EventFailed, dst, map[string]any{"error": err.Error()})
	return PlaceResult{Path: dst, Error: err.Error()}
}

func (p *Placer) record(f *library.File, event, path string, data map[string]any) {
	if p.history == nil {
		return
	}
	if err := p.history.Record(f, event, path, data); err != nil {
		p.log.Warn("record history", "event", event, "error", err)
	}
}
