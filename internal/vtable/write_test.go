package vtable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

type stubSchemaProvider struct {
	defs map[string]types.StoredSchema
}

func (s stubSchemaProvider) LoadLatestSchema(ctx context.Context, key string) (types.StoredSchema, error) {
	return s.defs[key], nil
}

func newTestEngine(t *testing.T, schemaDoc string) *vtable.Engine {
	t.Helper()
	db := newTestDB(t)
	require.NoError(t, engine.EnsureMaterializedTable(context.Background(), db, "test_schema"))
	stored :=types.StoredSchema{SchemaKey: "test_schema", SchemaVersion: "1", Definition: schemaDoc}
	return &vtable.Engine{
		DB:      db,
		Schemas: stubSchemaProvider{defs: map[string]types.StoredSchema{"test_schema": stored}},
		Det:     deterministic.NewProvider(db),
		DetMode: deterministic.Settings{},
	}
}

func versionDescriptor(t *testing.T, eng *vtable.Engine, id, inheritsFrom string) {
	t.Helper()
	insertVersionDescriptor(t, eng.DB, id, inheritsFrom)
}

func TestEngineWrite_InsertThenReadEffective(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, `{"type":"object"}`)

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "key0", SchemaKey: "test_schema", SchemaVersion: "1",
		FileID: "test-file", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"key":"key0","value":"v0"}`),
	})
	require.NoError(t, err)

	row, found, err := vtable.ResolveEffective(ctx, eng.DB, "key0", "test_schema", "test-file", "global")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"key":"key0","value":"v0"}`, row.SnapshotContent)
}

func TestEngineWrite_InheritanceFallsThroughToParent(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, `{"type":"object"}`)
	versionDescriptor(t, eng, "global", "")
	versionDescriptor(t, eng, "child", "global")

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: "entity-inherit", SchemaKey: "test_schema", SchemaVersion: "1",
		FileID: "test-file", VersionID: "global", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":"g"}`),
	})
	require.NoError(t, err)

	row, found, err := vtable.ResolveEffective(ctx, eng.DB, "entity-inherit", "test_schema", "test-file", "child")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"v":"g"}`, row.SnapshotContent)
	require.Equal(t, "global", row.InheritedFromVersionID)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "entity-inherit", SchemaKey: "test_schema", SchemaVersion: "1",
		FileID: "test-file", VersionID: "child", PluginKey: "lix",
		SnapshotContent: []byte(`{"v":"c"}`),
	})
	require.NoError(t, err)

	row, found, err = vtable.ResolveEffective(ctx, eng.DB, "entity-inherit", "test_schema", "test-file", "child")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `{"v":"c"}`, row.SnapshotContent)
	require.Empty(t, row.InheritedFromVersionID)
}
