// internal/importer/copy.go
package importer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CopyFile copies src to dst through a temporary file in the destination
// directory, so dst never holds a partial copy. Mode and modification time
// are preserved. Returns ErrDestinationExists if dst already exists.
func CopyFile(src, dst string) (int64, error) {
	if _, err := os.Lstat(dst); err == nil {
		return 0, ErrDestinationExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("%w: create directory: %v", ErrCopyFailed, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("%w: open source: %v", ErrCopyFailed, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat source: %v", ErrCopyFailed, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".librarr-*.part")
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %v", ErrCopyFailed, err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	size, err := io.Copy(tmp, in)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: copy content: %v", ErrCopyFailed, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: sync: %v", ErrCopyFailed, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: chmod: %v", ErrCopyFailed, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("%w: close: %v", ErrCopyFailed, err)
	}
	_ = os.Chtimes(tmp.Name(), info.ModTime(), info.ModTime())

	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("%w: rename into place: %v", ErrCopyFailed, err)
	}
	return size, nil
}

// MoveFile renames src to dst, falling back to copy and delete when the two
// are on different filesystems.
func MoveFile(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return ErrDestinationExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return fmt.Errorf("rename %s: %w", src, err)
	}

	if _, err := CopyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}

// LinkFile hardlinks src at dst. When the filesystem refuses the link it
// copies instead; linked reports which happened.
func LinkFile(src, dst string) (linked bool, err error) {
	if _, err := os.Lstat(dst); err == nil {
		return false, ErrDestinationExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}

	if err := os.Link(src, dst); err == nil {
		return true, nil
	}
	if _, err := CopyFile(src, dst); err != nil {
		return false, err
	}
	return false, nil
}
