package download

import "errors"

// Sentinel errors for the download package.
var (
	// ErrNotFound is returned when a download or match record is not found in the database.
	ErrNotFound = errors.New("download not found")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDuplicateMatch is returned when a file of a download already has a match record.
	ErrDuplicateMatch = errors.New("file already matched")
)
