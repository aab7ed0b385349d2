package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/checkpoint"
	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

type openSchemaProvider struct{}

func (openSchemaProvider) LoadLatestSchema(_ context.Context, key string) (types.StoredSchema, error) {
	return types.StoredSchema{SchemaKey: key, SchemaVersion: "1", Definition: `{"type":"object"}`}, nil
}

func newTestManager(t *testing.T) (*checkpoint.Manager, backend.Backend) {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, engine.InitForTest(context.Background(), db))
	require.NoError(t, engine.EnsureMaterializedTable(context.Background(), db, "user_schema"))

	eng := &vtable.Engine{
		DB:      db,
		Schemas: openSchemaProvider{},
		Det:     deterministic.NewProvider(db),
		DetMode: deterministic.Settings{Enabled: true, UUIDv7: true, Timestamp: true},
	}
	return &checkpoint.Manager{Engine: eng}, db
}

// seedInitialState writes the minimal lix_commit / lix_version_pointer /
// lix_active_version rows a freshly initialized engine would already have:
// one global version pointing at an empty tip commit with its own working
// commit, and an active-version pointer selecting it.
func seedInitialState(t *testing.T, eng *vtable.Engine) (tipID, workingID string) {
	t.Helper()
	ctx := context.Background()
	tipID = "commit-tip-0"
	workingID = "commit-working-0"
	changeSetTip := "cs-tip-0"
	changeSetWorking := "cs-working-0"

	_, err := eng.Write(ctx, vtable.WriteRequest{
		EntityID: tipID, SchemaKey: "lix_commit", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"id":"` + tipID + `","change_set_id":"` + changeSetTip + `","parent_commit_ids":[]}`),
	})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: workingID, SchemaKey: "lix_commit", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"id":"` + workingID + `","change_set_id":"` + changeSetWorking + `","parent_commit_ids":["` + tipID + `"]}`),
	})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: types.GlobalVersionID, SchemaKey: "lix_version_pointer", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"id":"` + types.GlobalVersionID + `","commit_id":"` + tipID + `","working_commit_id":"` + workingID + `"}`),
	})
	require.NoError(t, err)

	_, err = eng.Write(ctx, vtable.WriteRequest{
		EntityID: "active-version", SchemaKey: "lix_active_version", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"id":"active-version","version_id":"` + types.GlobalVersionID + `"}`),
	})
	require.NoError(t, err)

	return tipID, workingID
}

func TestCreateCheckpoint_NoPendingElementsReturnsExistingTip(t *testing.T) {
	mgr, _ := newTestManager(t)
	tipID, _ := seedInitialState(t, mgr.Engine)

	result, err := mgr.CreateCheckpoint(context.Background())
	require.NoError(t, err)
	require.Equal(t, tipID, result.ID)
}

func TestCreateCheckpoint_PromotesWorkingCommitWhenCheckpointable(t *testing.T) {
	mgr, db := newTestManager(t)
	_, workingID := seedInitialState(t, mgr.Engine)
	ctx := context.Background()

	_, err := mgr.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: "row-1", SchemaKey: "user_schema", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(`{"v":1}`), WorkingChangeSetID: "cs-working-0",
	})
	require.NoError(t, err)

	result, err := mgr.CreateCheckpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, workingID, result.ID)

	rows, err := db.Execute(ctx, `SELECT json_extract(snapshot_content, '$.commit_id'), json_extract(snapshot_content, '$.working_commit_id') FROM lix_internal_state_materialized_v1_lix_version_pointer
		WHERE entity_id = ?`, []types.Value{types.Text(types.GlobalVersionID)})
	require.NoError(t, err)
	require.Equal(t, 1, rows.Len())
	newTip, _ := rows.Data[0][0].AsText()
	newWorking, _ := rows.Data[0][1].AsText()
	require.Equal(t, workingID, newTip)
	require.NotEqual(t, workingID, newWorking)
}

func TestCreateVersion_BranchesFromActiveVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	tipID, _ := seedInitialState(t, mgr.Engine)

	result, err := mgr.CreateVersion(context.Background(), checkpoint.CreateVersionOptions{Name: "feature-branch"})
	require.NoError(t, err)
	require.Equal(t, "feature-branch", result.Name)
	require.Equal(t, types.GlobalVersionID, result.InheritsFromVersionID)
	require.NotEmpty(t, result.ID)

	row, found, err := vtable.ResolveEffective(context.Background(), mgr.Engine.DB, result.ID, "lix_version_pointer", "lix", types.GlobalVersionID)
	require.NoError(t, err)
	require.True(t, found)
	require.Contains(t, row.SnapshotContent, tipID)
}
