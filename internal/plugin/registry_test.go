package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/backend/sqlitebackend"
	"github.com/lixdb/lix/internal/engine"
	"github.com/lixdb/lix/internal/plugin"
)

func newTestRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	db, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, engine.InitForTest(context.Background(), db))
	return plugin.NewRegistry(db)
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	reg := newTestRegistry(t)
	called := false
	reg.Register(plugin.Plugin{
		Key: "noop",
		Detect: func(before *plugin.File, after plugin.File) ([]plugin.EntityChange, error) {
			called = true
			return nil, nil
		},
		Apply: func(seed plugin.File, changes []plugin.EntityChange) ([]byte, error) {
			return seed.Data, nil
		},
	})

	_, err := reg.DetectChanges("noop", nil, plugin.File{})
	require.NoError(t, err)
	require.True(t, called)

	_, err = reg.DetectChanges("missing", nil, plugin.File{})
	require.Error(t, err)
}

func TestRegistry_InstallPluginInvalidatesCache(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	list, err := reg.ListInstalled(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, reg.InstallPlugin(ctx, "markdown-v2", `{"name":"markdown-v2"}`, []byte{1, 2, 3}))

	list, err = reg.ListInstalled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "markdown-v2", list[0].PluginKey)
	require.Equal(t, []byte{1, 2, 3}, list[0].WasmBytes)
}
