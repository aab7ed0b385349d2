package materialize_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/materialize"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

type openSchemaProvider struct{}

func (openSchemaProvider) LoadLatestSchema(_ context.Context, key string) (types.StoredSchema, error) {
	return types.StoredSchema{SchemaKey: key, SchemaVersion: "1", Definition: `{"type":"object"}`}, nil
}

func newTestEngine(t *testing.T) (*vtable.Engine, backend.Backend) {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, engine.InitForTest(context.Background(), db))
	require.NoError(t, engine.EnsureMaterializedTable(context.Background(), db, "widget"))

	return &vtable.Engine{
		DB:      db,
		Schemas: openSchemaProvider{},
		Det:     deterministic.NewProvider(db),
		DetMode: deterministic.Settings{Enabled: true, UUIDv7: true, Timestamp: true},
	}, db
}

func TestMaterialize_LatestWriteWinsPerEntity(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-1", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`),
	})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-1", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":2}`),
	})
	require.NoError(t, err)

	plan, report, err := materialize.Materialize(ctx, db, materialize.Request{Scope: materialize.FullScope()})
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Len(t, plan.Writes, 1)
	require.Equal(t, `{"v":2}`, *plan.Writes[0].SnapshotContent)
	require.Equal(t, materialize.OpUpsert, plan.Writes[0].Op)

	rows, err := db.Execute(ctx, `SELECT snapshot_content FROM lix_internal_state_materialized_v1_widget WHERE entity_id = 'row-1'`, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())
	content, _ := rows.Data[0][0].AsText()
	require.Equal(t, `{"v":2}`, content)
}

func TestMaterialize_TombstoneWinsOverEarlierUpsert(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-2", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`),
	})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-2", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: nil, Tombstone: true,
	})
	require.NoError(t, err)

	plan, _, err := materialize.Materialize(ctx, db, materialize.Request{Scope: materialize.FullScope()})
	require.NoError(t, err)
	require.Len(t, plan.Writes, 1)
	require.Equal(t, materialize.OpTombstone, plan.Writes[0].Op)
	require.Nil(t, plan.Writes[0].SnapshotContent)
}

func TestMaterialize_DebugModeDoesNotApply(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-3", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`),
	})
	require.NoError(t, err)
	_, err = db.Execute(ctx, `DELETE FROM lix_internal_state_materialized_v1_widget`, nil)
	require.NoError(t, err)

	plan, report, err := materialize.Materialize(ctx, db, materialize.Request{Scope: materialize.FullScope(), Debug: true, DebugRowLimit: 10})
	require.NoError(t, err)
	require.Nil(t, report)
	require.Len(t, plan.Writes, 1)

	rows, err := db.Execute(ctx, `SELECT COUNT(*) FROM lix_internal_state_materialized_v1_widget`, nil)
	require.NoError(t, err)
	n, _ := rows.Data[0][0].AsInt64()
	require.Equal(t, int64(0), n)
}

func TestMaterialize_VersionsScopeLeavesOtherVersionsUntouched(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-4", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`),
	})
	require.NoError(t, err)
	_, _, err = materialize.Materialize(ctx, db, materialize.Request{Scope: materialize.FullScope()})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "row-5", SchemaKey: "widget", SchemaVersion: "1",
		FileID: "f1", VersionID: "child", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`),
	})
	require.NoError(t, err)

	_, report, err := materialize.Materialize(ctx, db, materialize.Request{Scope: materialize.VersionsScope("child")})
	require.NoError(t, err)
	require.Equal(t, 1, report.RowsWritten)

	rows, err := db.Execute(ctx, `SELECT COUNT(*) FROM lix_internal_state_materialized_v1_widget WHERE version_id = 'global'`, nil)
	require.NoError(t, err)
	n, _ := rows.Data[0][0].AsInt64()
	require.Equal(t, int64(1), n)
}
