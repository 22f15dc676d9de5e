package maintenance

import "errors"

// ErrSweepInProgress is returned by Run when another sweep holds the lock.
var ErrSweepInProgress = errors.New("sweep already in progress")
