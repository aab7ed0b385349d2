package writeplan_test

import (
	"context"
	"testing"

	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/checkpoint"
	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/schema"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
	"github.com/lixdb/lix/internal/writeplan"
)

type openSchemaProvider struct{}

func (openSchemaProvider) LoadLatestSchema(ctx context.Context, key string) (types.StoredSchema, error) {
	return types.StoredSchema{SchemaKey: key, SchemaVersion: "1", Definition: `{"type":"object"}`}, nil
}

func newTestEngine(t *testing.T) (*vtable.Engine, backend.Backend) {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, engine.InitForTest(context.Background(), db))
	require.NoError(t, engine.EnsureMaterializedTable(context.Background(), db, "todo_item"))

	eng := &vtable.Engine{DB: db, Schemas: openSchemaProvider{}, Det: deterministic.NewProvider(db)}
	return eng, db
}

func seedActiveVersion(t *testing.T, eng *vtable.Engine) {
	t.Helper()
	ctx := context.Background()
	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "working-1", SchemaKey: "lix_commit", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"change_set_id":"cs-1","parent_commit_ids":[]}`),
	})
	require.NoError(t, err)
	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "v1", SchemaKey: "lix_version_pointer", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"commit_id":"working-1","working_commit_id":"working-1"}`),
	})
	require.NoError(t, err)
	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "active-version", SchemaKey: "lix_active_version", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"version_id":"v1"}`),
	})
	require.NoError(t, err)
}

func parseStmt(t *testing.T, sql string) sqlparser.Statement {
	t.Helper()
	stmt, err := sqlparser.Parse(sql)
	require.NoError(t, err)
	return stmt
}

func TestPreprocess_InsertTrackedRow(t *testing.T) {
	eng, _ := newTestEngine(t)
	stmt := parseStmt(t, `insert into lix_state_by_version
		(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
		values ('e1', 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`)

	out, err := writeplan.Preprocess(context.Background(), eng, stmt, []types.Value{types.Text(`{"title":"a"}`)})
	require.NoError(t, err)
	require.Len(t, out.MutationRows, 1)
	require.Equal(t, "e1", out.MutationRows[0].EntityID)
	require.False(t, out.MutationRows[0].Untracked)
	require.False(t, out.MutationRows[0].Tombstone)
}

func TestPreprocess_InsertUntrackedRow(t *testing.T) {
	eng, _ := newTestEngine(t)
	stmt := parseStmt(t, `insert into lix_state
		(entity_id, schema_key, file_id, version_id, snapshot_content, untracked)
		values ('e2', 'todo_item', 'f1', 'v1', ?, 1)`)

	out, err := writeplan.Preprocess(context.Background(), eng, stmt, []types.Value{types.Text(`{"title":"b"}`)})
	require.NoError(t, err)
	require.Len(t, out.MutationRows, 1)
	require.True(t, out.MutationRows[0].Untracked)
}

func TestApply_InsertThenDeleteRoundTrips(t *testing.T) {
	eng, db := newTestEngine(t)
	seedActiveVersion(t, eng)
	mgr := &checkpoint.Manager{Engine: eng}
	ctx := context.Background()

	insStmt := parseStmt(t, `insert into lix_state_by_version
		(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
		values ('e3', 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`)
	out, err := writeplan.Preprocess(ctx, eng, insStmt, []types.Value{types.Text(`{"title":"c"}`)})
	require.NoError(t, err)
	ids, err := writeplan.Apply(ctx, eng, mgr, out)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	row, found, err := vtable.ResolveEffective(ctx, db, "e3", "todo_item", "f1", "v1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"title":"c"}`, row.SnapshotContent)

	delStmt := parseStmt(t, `delete from lix_state_by_version
		where entity_id = 'e3' and schema_key = 'todo_item' and file_id = 'f1' and version_id = 'v1'`)
	out, err = writeplan.Preprocess(ctx, eng, delStmt, nil)
	require.NoError(t, err)
	_, err = writeplan.Apply(ctx, eng, mgr, out)
	require.NoError(t, err)

	_, found, err = vtable.ResolveEffective(ctx, db, "e3", "todo_item", "f1", "v1")
	require.NoError(t, err)
	require.False(t, found)
}
