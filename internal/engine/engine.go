// Package engine wires the read-rewrite pipeline (internal/planner), the
// write-rewrite pipeline (internal/writeplan), schema-validated mutation
// (internal/vtable), checkpoint/version management (internal/checkpoint),
// materialization (internal/materialize), plugin installation
// (internal/plugin), and the state-commit stream (internal/statestream)
// into the single entry point spec.md §4.1/§4.10 describes: one Engine per
// opened store, one execute() call per statement, one commit-event batch
// per execute()/transaction that produced tracked writes.
package engine

import (
	"context"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/checkpoint"
	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/materialize"
	"github.com/lixdb/lix/internal/planner"
	"github.com/lixdb/lix/internal/plugin"
	"github.com/lixdb/lix/internal/plugin/jsonplugin"
	"github.com/lixdb/lix/internal/schema"
	"github.com/lixdb/lix/internal/sqlast"
	"github.com/lixdb/lix/internal/statestream"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/validate"
	"github.com/lixdb/lix/internal/vtable"
	"github.com/lixdb/lix/internal/writeplan"
)

// Engine is one opened lix store: a backend connection, its schema catalog,
// and every subsystem needed to run execute()/transaction() against it.
type Engine struct {
	DB      backend.Backend
	Dialect planner.Dialect

	Schemas *schema.OverlaySchemaProvider
	VTable  *vtable.Engine
	Check   *checkpoint.Manager
	Plugins *plugin.Registry
	Stream  *statestream.Stream

	// defaultWriterKey, when set (only on a transaction-scoped Engine
	// returned by Transaction), backstops ExecuteOptions.WriterKey for every
	// write made through this Engine value.
	defaultWriterKey string

	// collect, when non-nil (only on a transaction-scoped Engine), redirects
	// every write's commit events here instead of publishing them
	// immediately — Transaction flushes the accumulated events as one batch
	// after a successful commit, and never on rollback.
	collect *[]types.CommitEvent
}

// Open initializes db's physical schema (idempotent) and returns a ready
// Engine. dialect must match db's own backend.Dialect(); callers pick
// planner.SQLite for a sqlitebackend.Backend and planner.Postgres for a
// doltbackend.Backend, per spec.md §4.4's dialect contract.
func Open(ctx context.Context, db backend.Backend, dialect planner.Dialect) (*Engine, error) {
	if err := InitForTest(ctx, db); err != nil {
		return nil, lixerr.Wrap("init physical schema", err)
	}

	base := schema.NewSqlStoredSchemaProvider(db)
	overlay := schema.NewOverlaySchemaProvider(base)
	det := deterministic.NewProvider(db)

	vtableEngine := &vtable.Engine{
		DB:      db,
		Schemas: overlay,
		Checker: validate.NewKeyChecker(db),
		Det:     det,
	}
	registry := plugin.NewRegistry(db)
	registry.Register(jsonplugin.Plugin())

	return &Engine{
		DB:      db,
		Dialect: dialect,
		Schemas: overlay,
		VTable:  vtableEngine,
		Check:   &checkpoint.Manager{Engine: vtableEngine},
		Plugins: registry,
		Stream:  statestream.New(),
	}, nil
}

// ExecuteResult is the outcome of one Execute call: the rows a read
// produced, or the change ids a write produced.
type ExecuteResult struct {
	Rows      *types.Rows
	ChangeIDs []string
}

// Execute runs one SQL statement through the appropriate pipeline: SELECT
// statements go through internal/planner's read-rewrite and straight to the
// backend; INSERT/UPDATE/DELETE against a logical state view go through
// internal/writeplan's write-rewrite and internal/vtable.Engine.Write. Per
// spec.md §4.10, a successful write publishes exactly one commit batch;
// a read never publishes anything.
func (e *Engine) Execute(ctx context.Context, sqlText string, params []types.Value, opts types.ExecuteOptions) (result ExecuteResult, err error) {
	defer func() {
		if flushErr := e.VTable.Det.Flush(ctx); flushErr != nil && err == nil {
			err = flushErr
		}
	}()

	stmts, err := sqlast.ParseSQL(sqlText)
	if err != nil {
		return ExecuteResult{}, lixerr.Wrap("parse statement", err)
	}
	if len(stmts) != 1 {
		return ExecuteResult{}, lixerr.Wrap("execute", errMultiStatement)
	}
	stmt := stmts[0].AST

	if isMutationStatement(stmt) {
		return e.executeWrite(ctx, stmt, params, opts)
	}
	return e.executeRead(ctx, stmt, params)
}

func (e *Engine) executeRead(ctx context.Context, stmt sqlparser.Statement, params []types.Value) (ExecuteResult, error) {
	schemas, err := e.knownSchemas(ctx)
	if err != nil {
		return ExecuteResult{}, err
	}
	planned, err := planner.Plan(stmt, schemas, e.Dialect)
	if err != nil {
		return ExecuteResult{}, lixerr.Wrap("plan read statement", err)
	}
	bound, err := sqlast.BindSQLWithState(planned.SQL, e.Dialect.Placeholder, sqlast.NewPlaceholderState())
	if err != nil {
		return ExecuteResult{}, lixerr.Wrap("bind placeholders", err)
	}
	rows, err := e.DB.Execute(ctx, bound, params)
	if err != nil {
		return ExecuteResult{}, lixerr.Wrap("execute planned read", err)
	}
	return ExecuteResult{Rows: rows}, nil
}

func (e *Engine) executeWrite(ctx context.Context, stmt sqlparser.Statement, params []types.Value, opts types.ExecuteOptions) (ExecuteResult, error) {
	out, err := writeplan.Preprocess(ctx, e.VTable, stmt, params)
	if err != nil {
		return ExecuteResult{}, lixerr.Wrap("preprocess write statement", err)
	}
	if err := out.Validate(); err != nil {
		return ExecuteResult{}, lixerr.Wrap("validate write plan", err)
	}
	writerKey := opts.WriterKey
	if writerKey == "" {
		writerKey = e.defaultWriterKey
	}
	for i := range out.MutationRows {
		if out.MutationRows[i].WriterKey == "" {
			out.MutationRows[i].WriterKey = writerKey
		}
	}

	ids, err := writeplan.Apply(ctx, e.VTable, e.Check, out)
	if err != nil {
		return ExecuteResult{}, err
	}

	batch := commitBatchFor(out.MutationRows)
	if e.collect != nil {
		*e.collect = append(*e.collect, batch.Changes...)
	} else {
		e.Stream.Publish(ctx, batch)
	}
	return ExecuteResult{ChangeIDs: ids}, nil
}

func commitBatchFor(rows []types.MutationRow) types.CommitBatch {
	batch := types.CommitBatch{}
	for _, r := range rows {
		batch.Changes = append(batch.Changes, types.CommitEvent{
			SchemaKey: r.SchemaKey, EntityID: r.EntityID, WriterKey: r.WriterKey,
			FileID: r.FileID, VersionID: r.VersionID,
		})
	}
	return batch
}

// StateCommitStream subscribes to this engine's commit batches, returning a
// channel of matching batches and an unsubscribe func. Implements
// spec.md §4.10's state_commit_stream(filter).
func (e *Engine) StateCommitStream(filter types.StreamFilter) (<-chan types.CommitBatch, func()) {
	return e.Stream.Subscribe(filter)
}

// CreateCheckpoint delegates to internal/checkpoint.Manager.
func (e *Engine) CreateCheckpoint(ctx context.Context) (checkpoint.CreateCheckpointResult, error) {
	return e.Check.CreateCheckpoint(ctx)
}

// CreateVersion delegates to internal/checkpoint.Manager.
func (e *Engine) CreateVersion(ctx context.Context, opts checkpoint.CreateVersionOptions) (checkpoint.CreateVersionResult, error) {
	return e.Check.CreateVersion(ctx, opts)
}

// Materialize delegates to internal/materialize.Materialize.
func (e *Engine) Materialize(ctx context.Context, req materialize.Request) (*materialize.Plan, *materialize.ApplyReport, error) {
	return materialize.Materialize(ctx, e.DB, req)
}

// InstallPlugin delegates to internal/plugin.Registry.InstallPlugin.
func (e *Engine) InstallPlugin(ctx context.Context, pluginKey, manifest string, wasmBytes []byte) error {
	return e.Plugins.InstallPlugin(ctx, pluginKey, manifest, wasmBytes)
}

// SetDeterministicMode toggles lix_uuid_v7()/lix_timestamp() determinism for
// every write made through this Engine, per spec.md §4.10/§5's
// lix_deterministic_mode switch.
func (e *Engine) SetDeterministicMode(s deterministic.Settings) {
	e.VTable.DetMode = s
}

// knownSchemas enumerates every schema key the backend has a materialized
// table for: the built-ins (always present after Open) plus any distinct
// schema_key ever written through lix_internal_change. Used to expand
// lix_state/lix_state_by_version's UNION ALL over every materialized table
// a query might actually need to read.
func (e *Engine) knownSchemas(ctx context.Context) (planner.KnownSchemas, error) {
	seen := map[string]bool{}
	var keys []string
	for _, k := range schema.BuiltinSchemaKeys {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	rows, err := e.DB.Execute(ctx, `SELECT DISTINCT schema_key FROM lix_internal_change`, nil)
	if err != nil {
		return planner.KnownSchemas{}, lixerr.Wrap("enumerate known schema keys", err)
	}
	for _, row := range rows.Data {
		key, _ := row[0].AsText()
		if key != "" && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return planner.KnownSchemas{Keys: keys}, nil
}

// isMutationStatement reports whether stmt is an INSERT/UPDATE/DELETE, as
// opposed to a SELECT (or anything else Execute leaves to the read path).
func isMutationStatement(stmt sqlparser.Statement) bool {
	switch stmt.(type) {
	case *sqlparser.Insert, *sqlparser.Update, *sqlparser.Delete:
		return true
	default:
		return false
	}
}
