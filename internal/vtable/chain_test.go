package vtable_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

func newTestDB(t *testing.T) backend.Backend {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, engine.InitForTest(context.Background(), db))
	return db
}

func insertVersionDescriptor(t *testing.T, db backend.Backend, id, inheritsFrom string) {
	t.Helper()
	content := `{"id":"` + id + `","name":"` + id + `"`
	if inheritsFrom != "" {
		content += `,"inherits_from_version_id":"` + inheritsFrom + `"`
	}
	content += `}`
	_, err := db.Execute(context.Background(),
		`INSERT INTO lix_internal_state_materialized_v1_lix_version_descriptor
			(entity_id, file_id, version_id, schema_version, plugin_key, snapshot_content, change_id, is_tombstone, created_at, updated_at)
		 VALUES (?, 'lix', 'global', '1', 'lix', ?, 'c0', 0, 't0', 't0')`,
		[]types.Value{types.Text(id), types.Text(content)})
	require.NoError(t, err)
}

func TestInheritanceChain_WalksParentsAndBreaksCycles(t *testing.T) {
	db := newTestDB(t)
	insertVersionDescriptor(t, db, "global", "")
	insertVersionDescriptor(t, db, "child", "global")
	insertVersionDescriptor(t, db, "grandchild", "child")

	chain, err := vtable.InheritanceChain(context.Background(), db, "grandchild")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, "grandchild", chain[0].VersionID)
	require.Equal(t, "child", chain[1].VersionID)
	require.Equal(t, "global", chain[2].VersionID)
	require.Equal(t, 0, chain[0].Depth)
	require.Equal(t, 2, chain[2].Depth)
}

func TestInheritanceChain_SelfInheritanceCycleTerminates(t *testing.T) {
	db := newTestDB(t)
	insertVersionDescriptor(t, db, "loopy", "loopy")

	chain, err := vtable.InheritanceChain(context.Background(), db, "loopy")
	require.NoError(t, err)
	require.Len(t, chain, 1)
}
