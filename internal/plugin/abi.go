// Package plugin defines the plugin call contract from spec.md §4.8/§6:
// a `detect_changes(before, after) -> []EntityChange` export reconstructing
// the list of entity mutations between two versions of a file's bytes, and
// an `apply_changes(seed, changes) -> bytes` export reconstructing file
// content from an entity change set. Plugin authoring itself is out of
// scope (spec.md §1); this package specifies only the contract and a
// Go-native registry standing in for the wasm component runtime, since no
// such runtime exists anywhere in the retrieval pack.
package plugin

import "fmt"

// File is the plugin-visible shape of a file: its stable id, logical path,
// and byte content.
type File struct {
	ID   string
	Path string
	Data []byte
}

// EntityChange is one entity mutation a plugin reports from detect_changes,
// or accepts into apply_changes. SnapshotContent is nil for a tombstone.
type EntityChange struct {
	EntityID        string
	SchemaKey       string
	SchemaVersion   string
	SnapshotContent *string
}

// ErrorKind tags the two plugin error variants from spec.md §6's error
// taxonomy: InvalidInput (malformed file bytes, caller's fault) and
// Internal (plugin-side bug or unexpected state).
type ErrorKind int

const (
	ErrorInvalidInput ErrorKind = iota
	ErrorInternal
)

// Error is the tagged-union plugin error type. It implements the standard
// error interface so it composes with lixerr.Wrap at call sites while still
// exposing Kind for callers that need to distinguish caller-fault from
// plugin-fault (e.g. to decide whether to retry with different input).
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrorInvalidInput:
		return fmt.Sprintf("invalid input: %s", e.Message)
	default:
		return fmt.Sprintf("internal: %s", e.Message)
	}
}

// InvalidInput constructs an Error tagged ErrorInvalidInput.
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: ErrorInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Internal constructs an Error tagged ErrorInternal.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: ErrorInternal, Message: fmt.Sprintf(format, args...)}
}

// DetectChangesFunc is a plugin's detect_changes export. before is nil when
// the file did not previously exist.
type DetectChangesFunc func(before *File, after File) ([]EntityChange, error)

// ApplyChangesFunc is a plugin's apply_changes export: reconstruct a file's
// bytes from seed plus the full set of entity changes that describe it.
type ApplyChangesFunc func(seed File, changes []EntityChange) ([]byte, error)

// Plugin bundles a plugin's key with its two exports.
type Plugin struct {
	Key    string
	Detect DetectChangesFunc
	Apply  ApplyChangesFunc
}
