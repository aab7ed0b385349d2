// Package vtable implements the state vtable engine: the semantic heart of
// the system described in spec.md §4.6. Reads resolve a version's
// inheritance chain with tombstone-aware shadowing; writes append a
// change/snapshot pair, upsert the per-schema materialized row, and append
// a change-set-element to the current working commit.
package vtable

import (
	"context"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// ChainEntry is one version in an inheritance chain, along with its depth
// (0 for the starting version itself).
type ChainEntry struct {
	VersionID string
	Depth     int
}

// InheritanceChain walks inherits_from_version_id starting at versionID,
// returning the transitive closure ordered by increasing depth. Cycles are
// broken: a version already visited is never re-added, matching spec.md
// §4.6's "cycles are broken" rule.
func InheritanceChain(ctx context.Context, db backend.Backend, versionID string) ([]ChainEntry, error) {
	visited := map[string]bool{versionID: true}
	chain := []ChainEntry{{VersionID: versionID, Depth: 0}}
	current := versionID
	depth := 0
	for {
		parent, ok, err := inheritsFrom(ctx, db, current)
		if err != nil {
			return nil, err
		}
		if !ok || visited[parent] {
			break
		}
		depth++
		visited[parent] = true
		chain = append(chain, ChainEntry{VersionID: parent, Depth: depth})
		current = parent
	}
	return chain, nil
}

func inheritsFrom(ctx context.Context, db backend.Backend, versionID string) (string, bool, error) {
	rows, err := db.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_materialized_v1_lix_version_descriptor
		 WHERE entity_id = ? AND is_tombstone = 0 AND snapshot_content IS NOT NULL`,
		[]types.Value{types.Text(versionID)})
	if err != nil {
		return "", false, lixerr.Wrap("load version descriptor for inheritance walk", err)
	}
	if rows.Len() == 0 {
		return "", false, nil
	}
	content, _ := rows.Data[0][0].AsText()
	parent, ok := jsonStringField(content, "inherits_from_version_id")
	if !ok || parent == "" {
		return "", false, nil
	}
	return parent, true, nil
}
