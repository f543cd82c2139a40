// Package transaction persists one JSON record per install and keeps the
// records of earlier installs of the same package next to the transaction
// that replaced them.
package transaction

import (
	"encoding/json"
	"time"

	"github.com/Hierosoft/hierosoft/pkg/types"
)

// Record statuses
const (
	StatusPending     = "pending"
	StatusInstalled   = "installed"
	StatusFailed      = "failed"
	StatusUninstalled = "uninstalled"
)

// Record describes one install transaction. Extra carries caller metadata
// that is written at the top level of the JSON object verbatim.
type Record struct {
	InstallID       string    `json:"install_id"`
	InstallDate     time.Time `json:"install_date"`
	RunID           string    `json:"run_id,omitempty"`
	LUID            string    `json:"luid"`
	Name            string    `json:"name,omitempty"`
	Version         string    `json:"version,omitempty"`
	Organization    string    `json:"organization"`
	Size            int64     `json:"size"`
	Keeps           []string  `json:"keeps"`
	Replaces        []string  `json:"replaces"`
	SourceRoot      string    `json:"source_root,omitempty"`
	DestRoot        string    `json:"dest_root"`
	UninstallScript string    `json:"uninstall_script"`
	RedoLog         string    `json:"redo_log,omitempty"`
	Archive         string    `json:"archive,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`

	Extra map[string]interface{} `json:"-"`
}

// recordFields is the JSON view of Record without its methods.
type recordFields Record

var knownKeys = map[string]bool{
	"install_id": true, "install_date": true, "run_id": true, "luid": true,
	"name": true, "version": true, "organization": true, "size": true,
	"keeps": true, "replaces": true, "source_root": true, "dest_root": true,
	"uninstall_script": true, "redo_log": true, "archive": true,
	"status": true, "error": true,
}

// NewRecord starts a pending record for spec.
func NewRecord(spec types.InstallSpec, installID, runID string, date time.Time) *Record {
	extra := make(map[string]interface{}, len(spec.Meta.Extra))
	for k, v := range spec.Meta.Extra {
		extra[k] = v
	}
	keeps := spec.Keeps.Sorted()
	replaces := spec.Replaces.Sorted()
	return &Record{
		InstallID:    installID,
		InstallDate:  date.UTC(),
		RunID:        runID,
		LUID:         spec.Meta.LUID,
		Name:         spec.Meta.Name,
		Version:      spec.Meta.Version,
		Organization: spec.Meta.Organization,
		Keeps:        keeps,
		Replaces:     replaces,
		SourceRoot:   spec.SourceRoot,
		DestRoot:     spec.DestRoot,
		Status:       StatusPending,
		Extra:        extra,
	}
}

// MarshalJSON writes the known fields and merges Extra beside them. Known
// fields win over Extra keys of the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(recordFields(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if knownKeys[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the known fields and collects every other key into
// Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields recordFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*r = Record(fields)
	for k, v := range all {
		if knownKeys[k] {
			continue
		}
		if r.Extra == nil {
			r.Extra = map[string]interface{}{}
		}
		r.Extra[k] = v
	}
	return nil
}
