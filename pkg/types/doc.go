// Package types defines the data model shared by the install engine: the
// immutable InstallSpec, per-pass RunState, the EntryDecision produced for
// every visited path, and the ProgressSnapshot and Result values delivered
// to callers.
package types
