package statestream_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/statestream"
	"github.com/lixdb/lix/internal/types"
)

func TestPublish_DeliversOnlyToMatchingFilter(t *testing.T) {
	s := statestream.New()

	allCh, unsubAll := s.Subscribe(types.StreamFilter{})
	defer unsubAll()
	todoCh, unsubTodo := s.Subscribe(types.StreamFilter{SchemaKeys: []string{"todo_item"}})
	defer unsubTodo()
	excludeCh, unsubExclude := s.Subscribe(types.StreamFilter{ExcludeWriterKeys: []string{"bot"}})
	defer unsubExclude()

	s.Publish(context.Background(), types.CommitBatch{Changes: []types.CommitEvent{
		{SchemaKey: "todo_item", EntityID: "e1", WriterKey: "human", FileID: "f1", VersionID: "v1"},
		{SchemaKey: "lix_key_value", EntityID: "e2", WriterKey: "bot", FileID: "lix", VersionID: "global"},
	}})

	all := <-allCh
	require.Len(t, all.Changes, 2)

	todo := <-todoCh
	require.Len(t, todo.Changes, 1)
	require.Equal(t, "todo_item", todo.Changes[0].SchemaKey)

	excluded := <-excludeCh
	require.Len(t, excluded.Changes, 1)
	require.Equal(t, "human", excluded.Changes[0].WriterKey)
}

func TestPublish_EmptyBatchIsNoop(t *testing.T) {
	s := statestream.New()
	ch, unsub := s.Subscribe(types.StreamFilter{})
	defer unsub()

	s.Publish(context.Background(), types.CommitBatch{})

	select {
	case <-ch:
		t.Fatal("expected no batch for an empty commit")
	default:
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	s := statestream.New()
	ch, unsub := s.Subscribe(types.StreamFilter{})
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}
