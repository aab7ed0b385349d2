// Package lixerr defines the sentinel error kinds shared across the engine.
//
// Every package wraps errors through Wrap/Wrapf so that the underlying
// sentinel survives errors.Is/As checks all the way up to the Engine API.
// Backend errors are the one exception: per spec they are propagated
// verbatim and never parsed (see backend.Backend).
package lixerr

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested row, schema, or commit does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID indicates an id was malformed or failed a format check.
	ErrInvalidID = errors.New("invalid id")

	// ErrConflict indicates a unique/primary-key constraint violation.
	ErrConflict = errors.New("conflict")

	// ErrCycle indicates a commit-parent or inheritance cycle would be created.
	ErrCycle = errors.New("cycle detected")

	// ErrSchemaNotStored indicates a stored schema lookup found no matching key/version.
	ErrSchemaNotStored = errors.New("schema is not stored")

	// ErrSchemaInvalid indicates snapshot content failed validation against its schema.
	ErrSchemaInvalid = errors.New("snapshot content does not match schema")

	// ErrImmutable indicates an UPDATE was attempted against an immutable schema.
	ErrImmutable = errors.New("schema is immutable")

	// ErrPlannerInvariant indicates a rewrite pass produced output that violates
	// one of the pipeline invariants (unresolved logical view, postprocess/mutation
	// coexistence, pass-count exceeded, etc).
	ErrPlannerInvariant = errors.New("planner invariant violated")

	// ErrVtableConstraint indicates a vtable-level write violated a required
	// column, illegal assignment, or duplicate-mutation constraint.
	ErrVtableConstraint = errors.New("vtable constraint violated")

	// ErrPlaceholder indicates a placeholder-binding failure (unknown format,
	// out-of-range index, malformed hex literal).
	ErrPlaceholder = errors.New("placeholder binding error")

	// ErrNestedTransaction indicates execute() was called with an explicit
	// BEGIN while already inside a transaction.
	ErrNestedTransaction = errors.New("nested transaction not supported")
)

// Wrap folds sql.ErrNoRows into ErrNotFound and otherwise wraps err with op context.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrapf is Wrap with a formatted operation label.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(fmt.Sprintf(format, args...), err)
}

// Is reports whether err wraps target, mirroring errors.Is for call-site brevity.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
