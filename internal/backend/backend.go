// Package backend defines the thin key-value/row store abstraction the
// engine sits above. Two dialects are supported: sqlite-like and a second,
// networked dialect that stands in for the spec's "postgres-like" backend.
// All algorithmic work — parsing, rewriting, validation, materialization —
// lives above this interface; the backend only executes parameterized SQL
// and manages transactions against a single-writer store.
package backend

import (
	"context"

	"github.com/lixdb/lix/internal/types"
)

// Dialect names the SQL dialect a Backend speaks.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgresLike
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgresLike:
		return "postgres"
	default:
		return "unknown"
	}
}

// Backend executes parameterized SQL and manages transactions against a
// single-writer store. No statement is ever executed without going through
// the rewrite pipeline, except init DDL and explicit internal helpers.
//
// Failure model: any backend error is wrapped verbatim by callers; the
// planner never parses error strings.
type Backend interface {
	Dialect() Dialect
	Execute(ctx context.Context, sql string, params []types.Value) (*types.Rows, error)
	Begin(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction is a scoped handle for a single backend transaction. All
// operations within one Transaction run on a dedicated connection; no other
// operation may run against that connection until Commit/Rollback completes.
type Transaction interface {
	Execute(ctx context.Context, sql string, params []types.Value) (*types.Rows, error)
	Commit() error
	Rollback() error
}
