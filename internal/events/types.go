// internal/events/types.go
package events

// Entity types
const (
	EntityDownload = "download"
	EntityFile     = "file"
	EntityLibrary  = "library"
)

// Event type constants
const (
	EventDownloadCompleted     = "download.completed"
	EventDownloadStatusChanged = "download.status.changed"
	EventProcessingStarted     = "processing.started"
	EventProcessingFinished    = "processing.finished"
	EventFileOrganized         = "file.organized"
	EventFileFailed            = "file.failed"
	EventSweepRequested        = "sweep.requested"
	EventSweepCompleted        = "sweep.completed"
)

// DownloadCompleted is emitted when a download's files are ready to be
// matched, either by the poller or by hand.
type DownloadCompleted struct {
	BaseEvent
	DownloadID int64  `json:"download_id"`
	Path       string `json:"path"`
	Force      bool   `json:"force,omitempty"`
}

// DownloadStatusChanged mirrors a download status transition.
type DownloadStatusChanged struct {
	BaseEvent
	DownloadID int64  `json:"download_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
}

// ProcessingStarted is emitted when a processing run begins.
type ProcessingStarted struct {
	BaseEvent
	DownloadID int64  `json:"download_id"`
	RunID      string `json:"run_id"`
	Force      bool   `json:"force"`
}

// ProcessingFinished carries the aggregate result of a run.
type ProcessingFinished struct {
	BaseEvent
	DownloadID     int64    `json:"download_id"`
	RunID          string   `json:"run_id"`
	Status         string   `json:"status"`
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	FilesSkipped   int      `json:"files_skipped"`
	Matched        int      `json:"matched"`
	Organized      int      `json:"organized"`
	Messages       []string `json:"messages,omitempty"`
}

// Succeeded reports whether the run ended without per-file failures.
func (e *ProcessingFinished) Succeeded() bool {
	return e.FilesFailed == 0 && e.Status != "error"
}

// FileOrganized is emitted when a file lands in the library.
type FileOrganized struct {
	BaseEvent
	DownloadID int64  `json:"download_id"`
	FileID     int64  `json:"file_id"`
	Target     string `json:"target"`
	Path       string `json:"path"`
	Duplicate  bool   `json:"duplicate,omitempty"`
}

// FileFailed is emitted when a single file could not be processed.
type FileFailed struct {
	BaseEvent
	DownloadID int64  `json:"download_id"`
	FileIndex  int    `json:"file_index"`
	Path       string `json:"path"`
	Reason     string `json:"reason"`
}

// SweepRequested asks the maintenance sweeper to run. With no flag set,
// every sweep runs.
type SweepRequested struct {
	BaseEvent
	Dedup     bool `json:"dedup,omitempty"`
	Orphans   bool `json:"orphans,omitempty"`
	EmptyDirs bool `json:"empty_dirs,omitempty"`
}

// SweepCompleted reports what a maintenance run removed.
type SweepCompleted struct {
	BaseEvent
	DuplicatesRemoved int `json:"duplicates_removed"`
	OrphansRemoved    int `json:"orphans_removed"`
	OrphansKept       int `json:"orphans_kept"`
	DirsRemoved       int `json:"dirs_removed"`
}
