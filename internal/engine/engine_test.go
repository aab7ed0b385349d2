package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/planner"
	"github.com/lixdb/lix/internal/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	eng, err := engine.Open(context.Background(), db, planner.SQLite)
	require.NoError(t, err)
	require.NoError(t, engine.EnsureMaterializedTable(context.Background(), db, "todo_item"))
	return eng
}

func seedActiveVersion(t *testing.T, eng *engine.Engine) {
	t.Helper()
	ctx := context.Background()
	_, err := eng.Execute(ctx,
		`insert into lix_state (entity_id, schema_key, file_id, version_id, snapshot_content)
		 values ('working-1', 'lix_commit', 'lix', 'global', ?)`,
		[]types.Value{types.Text(`{"change_set_id":"cs-1","parent_commit_ids":[]}`)},
		types.ExecuteOptions{})
	require.NoError(t, err)

	_, err = eng.Execute(ctx,
		`insert into lix_state (entity_id, schema_key, file_id, version_id, snapshot_content)
		 values ('v1', 'lix_version_pointer', 'lix', 'global', ?)`,
		[]types.Value{types.Text(`{"commit_id":"working-1","working_commit_id":"working-1"}`)},
		types.ExecuteOptions{})
	require.NoError(t, err)

	_, err = eng.Execute(ctx,
		`insert into lix_state (entity_id, schema_key, file_id, version_id, snapshot_content)
		 values ('active-version', 'lix_active_version', 'lix', 'global', ?)`,
		[]types.Value{types.Text(`{"version_id":"v1"}`)},
		types.ExecuteOptions{})
	require.NoError(t, err)
}

func TestExecute_WriteThenReadThroughStateByVersion(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedActiveVersion(t, eng)

	_, err := eng.Execute(ctx,
		`insert into lix_state_by_version
			(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
		 values ('t1', 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`,
		[]types.Value{types.Text(`{"title":"buy milk"}`)},
		types.ExecuteOptions{WriterKey: "tester"})
	require.NoError(t, err)

	result, err := eng.Execute(ctx,
		`select entity_id, snapshot_content from lix_state where entity_id = 't1' and version_id = 'v1'`,
		nil, types.ExecuteOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows.Len())
	entityID, _ := result.Rows.Data[0][0].AsText()
	require.Equal(t, "t1", entityID)
}

func TestExecute_WritePublishesCommitBatch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedActiveVersion(t, eng)

	ch, unsubscribe := eng.StateCommitStream(types.StreamFilter{SchemaKeys: []string{"todo_item"}})
	defer unsubscribe()

	_, err := eng.Execute(ctx,
		`insert into lix_state_by_version
			(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
		 values ('t2', 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`,
		[]types.Value{types.Text(`{"title":"walk dog"}`)},
		types.ExecuteOptions{WriterKey: "tester"})
	require.NoError(t, err)

	batch := <-ch
	require.Len(t, batch.Changes, 1)
	require.Equal(t, "t2", batch.Changes[0].EntityID)
	require.Equal(t, "tester", batch.Changes[0].WriterKey)
}

func TestTransaction_RollbackPublishesNothing(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedActiveVersion(t, eng)

	ch, unsubscribe := eng.StateCommitStream(types.StreamFilter{})
	defer unsubscribe()

	boom := errors.New("boom")
	err := eng.Transaction(ctx, engine.TransactionOptions{WriterKey: "tester"}, func(ctx context.Context, tx *engine.Engine) error {
		_, err := tx.Execute(ctx,
			`insert into lix_state_by_version
				(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
			 values ('t3', 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`,
			[]types.Value{types.Text(`{"title":"rolled back"}`)},
			types.ExecuteOptions{})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	select {
	case <-ch:
		t.Fatal("expected no commit batch after a rolled-back transaction")
	default:
	}

	result, err := eng.Execute(ctx,
		`select entity_id from lix_state where entity_id = 't3' and version_id = 'v1'`,
		nil, types.ExecuteOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, result.Rows.Len())
}

func TestTransaction_CommitPublishesOneBatch(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()
	seedActiveVersion(t, eng)

	ch, unsubscribe := eng.StateCommitStream(types.StreamFilter{})
	defer unsubscribe()

	err := eng.Transaction(ctx, engine.TransactionOptions{WriterKey: "tester"}, func(ctx context.Context, tx *engine.Engine) error {
		for _, id := range []string{"t4", "t5"} {
			if _, err := tx.Execute(ctx,
				`insert into lix_state_by_version
					(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content)
				 values (?, 'todo_item', 'f1', 'v1', '1', 'todo-plugin', ?)`,
				[]types.Value{types.Text(id), types.Text(`{"title":"x"}`)},
				types.ExecuteOptions{}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	batch := <-ch
	require.Len(t, batch.Changes, 2)
}
