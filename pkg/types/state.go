package types

// RunState accumulates totals during one pass. The simulate pass fills the
// planned counters and Matched; the commit pass receives a copy of Matched
// and fills the done counters.
type RunState struct {
	BytesPlanned int64 `json:"bytes_planned"`
	BytesDone    int64 `json:"bytes_done"`

	// DeletesPlanned and DeletesDone count bytes of removed destination
	// files.
	DeletesPlanned int64 `json:"deletes_planned"`
	DeletesDone    int64 `json:"deletes_done"`

	FilesPlanned int `json:"files_planned"`
	FilesAdded   int `json:"files_added"`

	DeleteFilesPlanned int `json:"delete_files_planned"`
	DeleteFilesDone    int `json:"delete_files_done"`

	FilesMatched int   `json:"files_matched"`
	BytesMatched int64 `json:"bytes_matched"`

	// Matched holds relative paths proven identical by the simulate pass.
	Matched PathSet `json:"-"`
}

// NewRunState returns an empty state with an allocated Matched set.
func NewRunState() *RunState {
	return &RunState{Matched: PathSet{}}
}

// Percent is the share of planned work already done, 0..100. Deleted bytes
// count as work alongside copied bytes. A pass with nothing planned is
// complete.
func (s *RunState) Percent(planned *RunState) float64 {
	total := planned.BytesPlanned + planned.DeletesPlanned
	if total <= 0 {
		if planned.FilesPlanned+planned.DeleteFilesPlanned == 0 {
			return 100
		}
		done := s.FilesAdded + s.DeleteFilesDone
		return clampPercent(100 * float64(done) / float64(planned.FilesPlanned+planned.DeleteFilesPlanned))
	}
	return clampPercent(100 * float64(s.BytesDone+s.DeletesDone) / float64(total))
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
