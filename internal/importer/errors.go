// internal/importer/errors.go
package importer

import "errors"

var (
	// ErrPathTraversal indicates a planned path escapes the library root.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrDestinationExists indicates the destination file already exists.
	ErrDestinationExists = errors.New("destination file already exists")

	// ErrCopyFailed indicates a file transfer failed.
	ErrCopyFailed = errors.New("file copy failed")

	// ErrConflict indicates the destination is occupied by unrelated content
	// that could not be quarantined.
	ErrConflict = errors.New("path conflict")
)
