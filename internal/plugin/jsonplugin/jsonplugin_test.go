package jsonplugin_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/plugin"
	"github.com/lixdb/lix/internal/plugin/jsonplugin"
)

func file(data string) plugin.File {
	return plugin.File{ID: "f1", Path: "/x.json", Data: []byte(data)}
}

// mergeLatest mirrors the reference test suite's merge_latest_state_rows:
// the last change recorded per entity id wins, which is what a real
// materialization pass would hand a plugin after collapsing the change log.
func mergeLatest(changesets ...[]plugin.EntityChange) []plugin.EntityChange {
	latest := map[string]plugin.EntityChange{}
	var order []string
	for _, set := range changesets {
		for _, c := range set {
			if _, ok := latest[c.EntityID]; !ok {
				order = append(order, c.EntityID)
			}
			latest[c.EntityID] = c
		}
	}
	out := make([]plugin.EntityChange, 0, len(order))
	for _, id := range order {
		out = append(out, latest[id])
	}
	return out
}

func roundtrip(t *testing.T, before, after string) {
	t.Helper()
	baseline, err := jsonplugin.DetectChanges(nil, file(before))
	require.NoError(t, err)
	delta, err := jsonplugin.DetectChanges(&plugin.File{ID: "f1", Path: "/x.json", Data: []byte(before)}, file(after))
	require.NoError(t, err)

	merged := mergeLatest(baseline, delta)
	reconstructed, err := jsonplugin.ApplyChanges(file(`{"stale":"cache"}`), merged)
	require.NoError(t, err)

	var got, want any
	require.NoError(t, json.Unmarshal(reconstructed, &got))
	require.NoError(t, json.Unmarshal([]byte(after), &want))
	require.Equal(t, want, got)
}

func TestRoundtrip_ReconstructsAfterDocument(t *testing.T) {
	roundtrip(t,
		`{"Name":"Samuel","address":{"city":"Berlin","zip":"10115"},"tags":["a","b","c"]}`,
		`{"Name":"Sam","address":{"city":"Berlin"},"tags":["a","x"],"active":true}`)
}

func TestRoundtrip_FileCreationFromEmptySeed(t *testing.T) {
	roundtrip(t, `{}`, `{"profile":{"name":"Anna"},"roles":["admin","editor"]}`)
}

func TestRoundtrip_MultiDeleteArrays(t *testing.T) {
	roundtrip(t, `{"list":["a","b","c","d"]}`, `{"list":["a"]}`)
}

func TestRoundtrip_DeletingNestedSubtreeRemovesDescendants(t *testing.T) {
	roundtrip(t, `{"a":{"b":{"c":1,"d":2},"e":3},"x":0}`, `{"a":{"e":3},"x":0}`)
}

func TestRoundtrip_ReplacingContainerWithScalarRemovesDescendants(t *testing.T) {
	roundtrip(t, `{"a":{"b":1}}`, `2`)
}

func TestRoundtrip_PointerEscapedKeys(t *testing.T) {
	roundtrip(t, `{"a/b":"old","tilde~key":"x"}`, `{"a/b":"new","tilde~key":"y"}`)
}

func TestRoundtrip_ChangeOrderPermutationInvariant(t *testing.T) {
	before := `{"list":["a","b","c","d"],"flags":{"active":false},"old":"x"}`
	after := `{"list":["a"],"flags":{"active":true},"team":[{"name":"Ada"}]}`

	baseline, err := jsonplugin.DetectChanges(nil, file(before))
	require.NoError(t, err)
	delta, err := jsonplugin.DetectChanges(&plugin.File{ID: "f1", Path: "/x.json", Data: []byte(before)}, file(after))
	require.NoError(t, err)
	projected := mergeLatest(baseline, delta)

	reversed := make([]plugin.EntityChange, len(projected))
	for i, c := range projected {
		reversed[len(projected)-1-i] = c
	}

	var want any
	require.NoError(t, json.Unmarshal([]byte(after), &want))

	for _, changes := range [][]plugin.EntityChange{projected, reversed} {
		reconstructed, err := jsonplugin.ApplyChanges(file(`{"stale":"cache"}`), changes)
		require.NoError(t, err)
		var got any
		require.NoError(t, json.Unmarshal(reconstructed, &got))
		require.Equal(t, want, got)
	}
}
