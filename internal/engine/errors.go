package engine

import "errors"

// errMultiStatement is returned when Execute is given more than one
// statement. A caller with a multi-statement script should split it with
// internal/sqlast.ParseSQL and run each statement through Execute (or
// Transaction) itself, per spec.md §2 step 1's "explicit transaction
// script vs single statement" distinction.
var errMultiStatement = errors.New("execute: expected exactly one SQL statement")
