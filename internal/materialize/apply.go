package materialize

import (
	"context"
	"sort"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// Apply implements spec.md §4.8 steps 2-3: register each touched schema's
// materialized table, clear the rows within scope, then write every planned
// row. Mirrors the original engine's clear-then-insert ordering. Only the
// schema keys that appear in plan.Writes are cleared; a schema key with no
// planned write keeps its existing rows.
func Apply(ctx context.Context, db backend.Backend, plan *Plan, scope Scope) (*ApplyReport, error) {
	schemaKeys := map[string]bool{}
	for _, w := range plan.Writes {
		schemaKeys[w.SchemaKey] = true
	}

	touchedTables := map[string]bool{}
	rowsDeleted, err := clearScopeRows(ctx, db, schemaKeys, scope, touchedTables)
	if err != nil {
		return nil, err
	}

	for _, w := range plan.Writes {
		table := engine.MaterializedTableName(w.SchemaKey)
		touchedTables[table] = true
		if err := upsertRow(ctx, db, table, w); err != nil {
			return nil, err
		}
	}

	tables := make([]string, 0, len(touchedTables))
	for t := range touchedTables {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	return &ApplyReport{
		RunID:         plan.RunID,
		RowsWritten:   len(plan.Writes),
		RowsDeleted:   rowsDeleted,
		TablesTouched: tables,
	}, nil
}

func clearScopeRows(ctx context.Context, db backend.Backend, schemaKeys map[string]bool, scope Scope, touched map[string]bool) (int, error) {
	if len(schemaKeys) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(schemaKeys))
	for k := range schemaKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var versionFilter string
	var versionArgs []types.Value
	if !scope.Full {
		if len(scope.VersionIDs) == 0 {
			return 0, nil
		}
		versionFilter = " WHERE version_id IN (" + placeholders(len(scope.VersionIDs)) + ")"
		for _, v := range scope.VersionIDs {
			versionArgs = append(versionArgs, types.Text(v))
		}
	}

	rowsDeleted := 0
	for _, schemaKey := range keys {
		if err := engine.EnsureMaterializedTable(ctx, db, schemaKey); err != nil {
			return 0, err
		}
		table := engine.MaterializedTableName(schemaKey)
		touched[table] = true

		countRows, err := db.Execute(ctx, "SELECT COUNT(*) FROM "+table+versionFilter, versionArgs)
		if err != nil {
			return 0, lixerr.Wrap("count materialized rows before clearing", err)
		}
		if countRows.Len() > 0 {
			n, _ := countRows.Data[0][0].AsInt64()
			rowsDeleted += int(n)
		}

		if _, err := db.Execute(ctx, "DELETE FROM "+table+versionFilter, versionArgs); err != nil {
			return 0, lixerr.Wrapf(err, "clear materialized table %q", table)
		}
	}
	return rowsDeleted, nil
}

func upsertRow(ctx context.Context, db backend.Backend, table string, w PlannedWrite) error {
	isTombstone := int64(0)
	if w.Op == OpTombstone {
		isTombstone = 1
	}

	var content, metadata types.Value
	if w.SnapshotContent != nil {
		content = types.Text(*w.SnapshotContent)
	} else {
		content = types.Null()
	}
	if w.Metadata != nil {
		metadata = types.Text(*w.Metadata)
	} else {
		metadata = types.Null()
	}

	_, err := db.Execute(ctx,
		`INSERT INTO `+table+`
			(entity_id, file_id, version_id, schema_version, plugin_key, snapshot_content, change_id, is_tombstone, inherited_from_version_id, metadata, writer_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, NULL, ?, ?)
		 ON CONFLICT (entity_id, file_id, version_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			plugin_key = excluded.plugin_key,
			snapshot_content = excluded.snapshot_content,
			change_id = excluded.change_id,
			is_tombstone = excluded.is_tombstone,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		[]types.Value{
			types.Text(w.EntityID), types.Text(w.FileID), types.Text(w.VersionID),
			types.Text(w.SchemaVersion), types.Text(w.PluginKey), content,
			types.Text(w.ChangeID), types.Int64(isTombstone), metadata,
			types.Text(w.CreatedAt), types.Text(w.UpdatedAt),
		})
	if err != nil {
		return lixerr.Wrapf(err, "upsert materialized row into %q", table)
	}
	return nil
}
