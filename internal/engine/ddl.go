package engine

import (
	"context"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/schema"
)

// physicalTableDDL lists the fixed (non-materialized) tables every engine
// instance needs: the change log, snapshot store, untracked overlay,
// commit-ancestry index, and the various file caches named in spec.md §6.
// Statement order matters: later tables are independent of earlier ones so
// this list also doubles as a safe creation order.
var physicalTableDDL = []string{
	`CREATE TABLE IF NOT EXISTS lix_internal_change (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		schema_key TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		file_id TEXT NOT NULL,
		plugin_key TEXT NOT NULL,
		snapshot_id TEXT NOT NULL,
		metadata TEXT,
		created_at TEXT NOT NULL,
		writer_key TEXT,
		version_id TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_snapshot (
		id TEXT PRIMARY KEY,
		content TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_state_untracked (
		entity_id TEXT NOT NULL,
		schema_key TEXT NOT NULL,
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		plugin_key TEXT NOT NULL,
		snapshot_content TEXT,
		is_tombstone INTEGER NOT NULL DEFAULT 0,
		writer_key TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (entity_id, schema_key, file_id, version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_commit_ancestry (
		commit_id TEXT NOT NULL,
		ancestor_id TEXT NOT NULL,
		depth INTEGER NOT NULL,
		PRIMARY KEY (commit_id, ancestor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_file_data_cache (
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		data BLOB,
		stale INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (file_id, version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_file_history_data_cache (
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		data BLOB,
		PRIMARY KEY (file_id, version_id, commit_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_file_path_cache (
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		path TEXT NOT NULL,
		PRIMARY KEY (file_id, version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_file_lixcol_cache (
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		metadata TEXT,
		PRIMARY KEY (file_id, version_id)
	)`,
	`CREATE TABLE IF NOT EXISTS lix_internal_plugin (
		plugin_key TEXT PRIMARY KEY,
		manifest TEXT NOT NULL,
		wasm_bytes BLOB
	)`,
}

// materializedTableDDLFor returns the CREATE TABLE statement for a given
// schema key's materialized table (spec.md §4.8 step 2: "Register the
// schema (creates the materialized table if missing)"). The shape is
// uniform across every schema key: the materialization pipeline is the
// single place responsible for keeping the JSON content's structure
// consistent with its stored schema.
func materializedTableDDLFor(schemaKey string) string {
	return `CREATE TABLE IF NOT EXISTS ` + materializedTableName(schemaKey) + ` (
		entity_id TEXT NOT NULL,
		file_id TEXT NOT NULL,
		version_id TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		plugin_key TEXT NOT NULL,
		snapshot_content TEXT,
		change_id TEXT NOT NULL,
		is_tombstone INTEGER NOT NULL DEFAULT 0,
		inherited_from_version_id TEXT,
		metadata TEXT,
		writer_key TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (entity_id, file_id, version_id)
	)`
}

func materializedTableName(schemaKey string) string {
	return "lix_internal_state_materialized_v1_" + schemaKey
}

// InitForTest exposes the physical-schema bootstrap for other packages'
// tests that need a ready-made backend without spinning up a full Engine.
func InitForTest(ctx context.Context, db backend.Backend) error {
	return initPhysicalSchema(ctx, db)
}

// EnsureMaterializedTable creates the materialized table for schemaKey if it
// does not already exist. Exposed for internal/materialize's "register the
// schema" step (spec.md §4.8 step 2), which may touch user schema keys the
// built-in bootstrap in initPhysicalSchema never saw.
func EnsureMaterializedTable(ctx context.Context, db backend.Backend, schemaKey string) error {
	if _, err := db.Execute(ctx, materializedTableDDLFor(schemaKey), nil); err != nil {
		return lixerr.Wrapf(err, "create materialized table for %q", schemaKey)
	}
	return nil
}

// MaterializedTableName returns the physical table name backing schemaKey's
// materialized rows, shared with internal/materialize and internal/validate.
func MaterializedTableName(schemaKey string) string {
	return materializedTableName(schemaKey)
}

// initPhysicalSchema creates every fixed table and the materialized table
// for each built-in schema key. init() is idempotent: every statement uses
// CREATE TABLE IF NOT EXISTS.
func initPhysicalSchema(ctx context.Context, db backend.Backend) error {
	for _, stmt := range physicalTableDDL {
		if _, err := db.Execute(ctx, stmt, nil); err != nil {
			return lixerr.Wrap("create physical table", err)
		}
	}
	for _, key := range schema.BuiltinSchemaKeys {
		if _, err := db.Execute(ctx, materializedTableDDLFor(key), nil); err != nil {
			return lixerr.Wrapf(err, "create materialized table for %q", key)
		}
	}
	return nil
}
