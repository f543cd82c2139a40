package types

import "time"

// Status is the lifecycle state of an install session.
type Status string

const (
	StatusCreated    Status = "created"
	StatusSimulating Status = "simulating"
	StatusCommitting Status = "committing"
	StatusFinalized  Status = "finalized"
	StatusFailed     Status = "failed"

	// StatusDone is carried by the terminal progress event and by every
	// Result whose install ran to an end, successful or not.
	StatusDone Status = "done"

	// StatusDeclined means the confirm hook stopped the install after the
	// simulate pass.
	StatusDeclined Status = "declined"
)

// Issue is a non-fatal finding the caller may want to confirm.
type Issue struct {
	Rel     string `json:"rel,omitempty"`
	Message string `json:"message"`
}

// ProgressSnapshot is delivered to the progress callback.
type ProgressSnapshot struct {
	Status  Status  `json:"status"`
	Rel     string  `json:"rel,omitempty"`
	Percent float64 `json:"percent"`

	// BytesDone and FilesDone count copies and deletions together; the
	// Deletes fields carry the deleted share on its own.
	BytesDone  int64 `json:"bytes_done"`
	BytesTotal int64 `json:"bytes_total"`
	FilesDone  int   `json:"files_done"`
	FilesTotal int   `json:"files_total"`

	DeletesDone      int64 `json:"deletes_done"`
	DeletesTotal     int64 `json:"deletes_total"`
	DeleteFilesDone  int   `json:"delete_files_done"`
	DeleteFilesTotal int   `json:"delete_files_total"`

	Err error `json:"-"`
}

// ProgressFunc receives progress snapshots. It may be called from a
// goroutine other than the caller's.
type ProgressFunc func(ProgressSnapshot)

// Result summarizes a finished install.
type Result struct {
	Status Status `json:"status"`
	Err    error  `json:"-"`

	InstallID string `json:"install_id"`
	RunID     string `json:"run_id"`

	// Final is the session state reached: finalized, failed or declined.
	Final Status `json:"final"`

	Plan     Plan     `json:"-"`
	Simulate RunState `json:"simulate"`
	Commit   RunState `json:"commit"`

	Issues   []Issue  `json:"issues,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	RecordPath     string `json:"record_path,omitempty"`
	UndoScriptPath string `json:"undo_script,omitempty"`
	RedoLogPath    string `json:"redo_log,omitempty"`
	ArchivePath    string `json:"archive,omitempty"`

	Duration time.Duration `json:"duration"`
}

// OK reports whether the install completed and was promoted.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil && r.Final == StatusFinalized
}
