package engine

import (
	"context"
	"errors"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/checkpoint"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// errNestedTransaction is returned from the transaction-scoped backend's
// Begin — no backend here supports a second transaction nested inside the
// first, matching every backend's single dedicated connection per
// transaction.
var errNestedTransaction = errors.New("transaction: nested transactions are not supported")

// txBackend adapts a single backend.Transaction to the backend.Backend
// interface so the rest of the engine's machinery (vtable.Engine,
// checkpoint.Manager, the planner/writeplan pipelines) can run unmodified
// inside a transaction scope. Dialect is forwarded to the transaction's
// parent backend; Close is a no-op since the transaction's lifecycle is
// owned by Commit/Rollback, not Close.
type txBackend struct {
	parent backend.Backend
	tx     backend.Transaction
}

func (t *txBackend) Dialect() backend.Dialect { return t.parent.Dialect() }

func (t *txBackend) Execute(ctx context.Context, sql string, params []types.Value) (*types.Rows, error) {
	return t.tx.Execute(ctx, sql, params)
}

func (t *txBackend) Begin(context.Context) (backend.Transaction, error) {
	return nil, errNestedTransaction
}

func (t *txBackend) Close() error { return nil }

// TransactionOptions mirrors the original engine's transaction(options,
// callback) options shape; WriterKey backstops ExecuteOptions.WriterKey for
// every write fn makes through the scoped Engine it receives.
type TransactionOptions struct {
	WriterKey string
}

// Transaction runs fn against a scoped Engine whose every Execute call runs
// on one backend transaction, then commits. If fn returns an error (or
// panics), the transaction rolls back and nothing is published. Every write
// fn makes accumulates its commit events locally; they are published as a
// single batch only after Commit succeeds — spec.md §4.10's "at most one
// batch per commit/transaction, nothing on rollback" rule.
func (e *Engine) Transaction(ctx context.Context, opts TransactionOptions, fn func(ctx context.Context, txEngine *Engine) error) (err error) {
	tx, beginErr := e.DB.Begin(ctx)
	if beginErr != nil {
		return lixerr.Wrap("begin transaction", beginErr)
	}

	scoped := &txBackend{parent: e.DB, tx: tx}
	txVTable := *e.VTable
	txVTable.DB = scoped

	var collected []types.CommitEvent
	txEngine := &Engine{
		DB:               scoped,
		Dialect:          e.Dialect,
		Schemas:          e.Schemas,
		VTable:           &txVTable,
		Check:            &checkpoint.Manager{Engine: &txVTable},
		Plugins:          e.Plugins,
		Stream:           e.Stream,
		defaultWriterKey: opts.WriterKey,
		collect:          &collected,
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(ctx, txEngine); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return lixerr.Wrap("rollback transaction after callback error", rbErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return lixerr.Wrap("commit transaction", commitErr)
	}

	if len(collected) > 0 {
		e.Stream.Publish(ctx, types.CommitBatch{Changes: collected})
	}
	return nil
}
