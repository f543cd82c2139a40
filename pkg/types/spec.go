package types

import (
	"path/filepath"

	"github.com/Hierosoft/hierosoft/pkg/errors"
	"github.com/Hierosoft/hierosoft/pkg/paths"
)

// PackageMeta identifies the package being installed. Extra holds caller
// fields that are copied verbatim into the transaction record.
type PackageMeta struct {
	LUID                string                 `json:"luid" toml:"luid" yaml:"luid"`
	Name                string                 `json:"name,omitempty" toml:"name" yaml:"name"`
	Version             string                 `json:"version,omitempty" toml:"version" yaml:"version"`
	Organization        string                 `json:"organization,omitempty" toml:"organization" yaml:"organization"`
	ShortcutExeRelPaths []string               `json:"shortcut_exe_relpaths,omitempty" toml:"shortcut_exe_relpaths" yaml:"shortcut_exe_relpaths"`
	Extra               map[string]interface{} `json:"-" toml:"extra" yaml:"extra"`
}

// InstallSpec is the immutable input of an install session.
type InstallSpec struct {
	SourceRoot string
	DestRoot   string

	// Keeps are source-relative paths never overwritten once present at
	// the destination.
	Keeps PathSet

	// Replaces are authoritative paths: destination entries below them
	// that the source lacks are deleted.
	Replaces PathSet

	Meta PackageMeta
}

// Validate checks the spec before any I/O happens. reserved lists folders
// neither root may equal or contain.
func (s InstallSpec) Validate(reserved []string) error {
	if err := paths.ValidateInstallRoot(s.SourceRoot, reserved); err != nil {
		return errors.Wrap(err, errors.ErrSpecInvalid, "invalid source root")
	}
	if err := paths.ValidateInstallRoot(s.DestRoot, reserved); err != nil {
		return errors.Wrap(err, errors.ErrSpecInvalid, "invalid destination root")
	}
	if filepath.Clean(s.SourceRoot) == filepath.Clean(s.DestRoot) {
		return errors.Newf(errors.ErrSpecInvalid, "source and destination are the same directory %s", s.DestRoot)
	}
	// either walk would otherwise visit the other pass's output
	if paths.IsWithin(s.SourceRoot, s.DestRoot) || paths.IsWithin(s.DestRoot, s.SourceRoot) {
		return errors.Newf(errors.ErrSpecInvalid, "source %s and destination %s are nested", s.SourceRoot, s.DestRoot).
			WithDetail("source", s.SourceRoot).
			WithDetail("dest", s.DestRoot)
	}
	if err := paths.ValidateLUID(s.Meta.LUID); err != nil {
		return errors.Wrap(err, errors.ErrSpecInvalid, "invalid package id")
	}
	for rel := range s.Keeps {
		if err := paths.ValidateRelative(rel); err != nil {
			return errors.Wrap(err, errors.ErrSpecInvalid, "invalid keeps entry")
		}
	}
	for rel := range s.Replaces {
		if err := paths.ValidateRelative(rel); err != nil {
			return errors.Wrap(err, errors.ErrSpecInvalid, "invalid replaces entry")
		}
	}
	for _, rel := range s.Meta.ShortcutExeRelPaths {
		if err := paths.ValidateRelative(rel); err != nil {
			return errors.Wrap(err, errors.ErrSpecInvalid, "invalid shortcut executable path")
		}
	}
	return nil
}

// Normalized returns a copy with cleaned roots and non-nil sets.
func (s InstallSpec) Normalized() InstallSpec {
	out := s
	out.SourceRoot = filepath.Clean(s.SourceRoot)
	out.DestRoot = filepath.Clean(s.DestRoot)
	out.Keeps = NewPathSet(s.Keeps.Sorted()...)
	out.Replaces = NewPathSet(s.Replaces.Sorted()...)
	return out
}
