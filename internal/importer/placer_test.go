// internal/importer/placer_test.go
package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmunix/librarr/internal/library"
)

const heatPath = "Heat (1995)/Heat (1995).mkv"

func TestPlace_Copy(t *testing.T) {
	f := setupPlacer(t)
	src := filepath.Join(f.downloads, "Heat.1995.1080p", "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Duplicate)

	dst := filepath.Join(f.lib.Root, heatPath)
	assert.Equal(t, dst, res.Path)
	assert.FileExists(t, dst)
	assert.FileExists(t, src, "copy keeps the source for seeding")

	stored, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.Equal(t, dst, stored.Path)
	assert.True(t, stored.Organized)

	hist, err := f.history.List(HistoryFilter{FileID: &file.ID})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, EventImported, hist[0].Event)
	assert.Equal(t, library.KindMovie, hist[0].TargetKind)
}

func TestPlace_Move(t *testing.T) {
	f := setupPlacer(t)
	src := filepath.Join(f.downloads, "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferMove, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.NoFileExists(t, src)
	assert.FileExists(t, res.Path)
}

func TestPlace_Hardlink(t *testing.T) {
	f := setupPlacer(t)
	src := filepath.Join(f.downloads, "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferHardlink, f.lib.Root)
	require.True(t, res.Success, res.Error)

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(res.Path)
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestPlace_AlreadyInPlace(t *testing.T) {
	f := setupPlacer(t)
	dst := filepath.Join(f.lib.Root, heatPath)
	file := f.addFile(t, dst, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, dst, res.Path)

	stored, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.True(t, stored.Organized)

	// Running again changes nothing
	res = f.placer.Place(context.Background(), stored, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success)
	assert.FileExists(t, dst)
}

func TestPlace_InsideLibraryIsMoved(t *testing.T) {
	f := setupPlacer(t)
	src := filepath.Join(f.lib.Root, "unsorted", "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.NoFileExists(t, src, "no second copy inside the library")
	assert.FileExists(t, res.Path)
}

func TestPlace_SameSizeOwnedByOtherRecord(t *testing.T) {
	f := setupPlacer(t)
	dst := filepath.Join(f.lib.Root, heatPath)
	owner := f.addFile(t, dst, "heat video")
	src := filepath.Join(f.downloads, "heat.mkv")
	dup := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), dup, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.Error)

	_, err := f.store.GetFile(dup.ID)
	assert.ErrorIs(t, err, library.ErrNotFound, "duplicate record deleted")
	_, err = f.store.GetFile(owner.ID)
	assert.NoError(t, err)
	assert.FileExists(t, src, "download copy outside the library survives")

	hist, err := f.history.List(HistoryFilter{Event: ptr(EventDuplicate)})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestPlace_SameSizeDuplicateInsideLibrary(t *testing.T) {
	f := setupPlacer(t)
	f.addFile(t, filepath.Join(f.lib.Root, heatPath), "heat video")
	src := filepath.Join(f.lib.Root, "stray", "heat.mkv")
	dup := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), dup, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Duplicate)
	assert.NoFileExists(t, src, "stray library copy is removed")
}

func TestPlace_SameSizeUnowned(t *testing.T) {
	f := setupPlacer(t)
	dst := filepath.Join(f.lib.Root, heatPath)
	writeFile(t, dst, "heat video")
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Duplicate)

	stored, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.Equal(t, dst, stored.Path, "record adopts the file already in place")
	assert.True(t, stored.Organized)
}

func TestPlace_ConflictQuarantines(t *testing.T) {
	f := setupPlacer(t)
	f.placer.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

	dst := filepath.Join(f.lib.Root, heatPath)
	occupant := f.addFile(t, dst, "an unrelated, longer file")
	src := filepath.Join(f.downloads, "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "heat video", string(got), "new file placed at the canonical path")

	qpath := filepath.Join(f.lib.Root, QuarantineDir, "Heat (1995).20240301-123000.mkv")
	got, err = os.ReadFile(qpath)
	require.NoError(t, err, "occupant moved to quarantine")
	assert.Equal(t, "an unrelated, longer file", string(got))

	moved, err := f.store.GetFile(occupant.ID)
	require.NoError(t, err)
	assert.Equal(t, qpath, moved.Path)
	assert.True(t, moved.Conflicted)
	assert.False(t, moved.Organized)

	placed, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.Equal(t, dst, placed.Path)
	assert.True(t, placed.Organized)
}

func TestPlace_QuarantineNameCollision(t *testing.T) {
	f := setupPlacer(t)
	f.placer.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }

	taken := filepath.Join(f.lib.Root, QuarantineDir, "Heat (1995).20240301-123000.mkv")
	writeFile(t, taken, "earlier quarantine")
	writeFile(t, filepath.Join(f.lib.Root, heatPath), "an unrelated, longer file")
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.FileExists(t, filepath.Join(f.lib.Root, QuarantineDir, "Heat (1995).20240301-123000-1.mkv"))

	got, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "earlier quarantine", string(got))
}

func TestPlace_QuarantineFailureMarksConflicted(t *testing.T) {
	f := setupPlacer(t)
	writeFile(t, filepath.Join(f.lib.Root, heatPath), "an unrelated, longer file")
	// A regular file where the quarantine folder should be.
	writeFile(t, filepath.Join(f.lib.Root, QuarantineDir), "blocker")
	src := filepath.Join(f.downloads, "heat.mkv")
	file := f.addFile(t, src, "heat video")

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferMove, f.lib.Root)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrConflict.Error())
	assert.FileExists(t, src, "source untouched")

	stored, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.True(t, stored.Conflicted)
	assert.NotEmpty(t, stored.ConflictMessage)
	assert.Equal(t, src, stored.Path)
}

func TestPlace_MissingSource(t *testing.T) {
	f := setupPlacer(t)
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")
	require.NoError(t, os.Remove(file.Path))

	res := f.placer.Place(context.Background(), file, heatPath, library.TransferCopy, f.lib.Root)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "stat source")

	stored, err := f.store.GetFile(file.ID)
	require.NoError(t, err)
	assert.False(t, stored.Organized)

	hist, err := f.history.List(HistoryFilter{Event: ptr(EventFailed)})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestPlace_Traversal(t *testing.T) {
	f := setupPlacer(t)
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")

	res := f.placer.Place(context.Background(), file, "../outside.mkv", library.TransferCopy, f.lib.Root)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, ErrPathTraversal.Error())
}

func TestPlace_AbsoluteTarget(t *testing.T) {
	f := setupPlacer(t)
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")
	dst := filepath.Join(f.lib.Root, "Heat [1995]", "Heat (1995).mkv")

	res := f.placer.Place(context.Background(), file, dst, library.TransferCopy, f.lib.Root)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, dst, res.Path)
}

func TestPlace_CanceledContext(t *testing.T) {
	f := setupPlacer(t)
	file := f.addFile(t, filepath.Join(f.downloads, "heat.mkv"), "heat video")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.placer.Place(ctx, file, heatPath, library.TransferCopy, f.lib.Root)
	assert.False(t, res.Success)
	assert.NoFileExists(t, filepath.Join(f.lib.Root, heatPath))
}
