package types

import "fmt"

// Mode is the action chosen for one entry.
type Mode string

const (
	ModeAdd     Mode = "add"
	ModeSkip    Mode = "skip"
	ModeDelete  Mode = "delete"
	ModeRecurse Mode = "recurse"
	ModeError   Mode = "error"
)

// Kind is the filesystem type of the entry the decision acts on.
type Kind string

const (
	KindFile    Kind = "file"
	KindDir     Kind = "dir"
	KindSymlink Kind = "symlink"
)

// Skip reasons written next to commented-out script lines.
const (
	ReasonKept            = "kept"
	ReasonSymlinkMismatch = "symlink mismatch"
	ReasonIdentical       = "identical"
	ReasonReplaced        = "explicit replace"
	ReasonTypeConflict    = "type conflict"
	ReasonNew             = "new"
	ReasonChanged         = "changed"
)

// EntryDecision is the reconciler's verdict for one path. Decisions are
// collected into a plan and never persisted.
type EntryDecision struct {
	Rel    string `json:"rel"`
	Source string `json:"source,omitempty"`
	Dest   string `json:"dest"`
	Mode   Mode   `json:"mode"`
	Kind   Kind   `json:"kind"`

	// Reason is a short machine-friendly tag such as "kept" or "changed".
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
	Err     error  `json:"-"`

	// Hide marks skips not worth showing (identical files).
	Hide bool `json:"hide,omitempty"`

	// Bytes is the source size for adds and the destination size for
	// deletes.
	Bytes int64 `json:"bytes"`

	// ThenAdd marks a delete forced by a type conflict; the source entry is
	// added right after.
	ThenAdd bool `json:"then_add,omitempty"`

	// Overwrite marks an add that replaces an existing destination file.
	Overwrite bool `json:"overwrite,omitempty"`
}

func (d EntryDecision) String() string {
	s := fmt.Sprintf("%s %s %s", d.Mode, d.Kind, d.Rel)
	if d.Reason != "" {
		s += " (" + d.Reason + ")"
	}
	return s
}

// Plan is the ordered list of decisions produced by one pass.
type Plan []EntryDecision

// Warnings returns the decisions that carry a warning.
func (p Plan) Warnings() []EntryDecision {
	var out []EntryDecision
	for _, d := range p {
		if d.Warning != "" {
			out = append(out, d)
		}
	}
	return out
}

// Visible drops hidden skips.
func (p Plan) Visible() Plan {
	out := make(Plan, 0, len(p))
	for _, d := range p {
		if !d.Hide {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many decisions have the given mode.
func (p Plan) Count(mode Mode) int {
	n := 0
	for _, d := range p {
		if d.Mode == mode {
			n++
		}
	}
	return n
}
