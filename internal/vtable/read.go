package vtable

import (
	"context"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// EffectiveRow is the projected shape of a lix_state read: one entity's
// winning row after inheritance and tombstone resolution.
type EffectiveRow struct {
	EntityID               string
	SchemaKey               string
	FileID                  string
	VersionID               string
	SchemaVersion           string
	PluginKey               string
	SnapshotContent         string
	InheritedFromVersionID  string // empty when found in the requested version itself
	ChangeID                string
	Metadata                string
	WriterKey               string
	Untracked               bool
	CreatedAt               string
	UpdatedAt               string
}

// ResolveEffective implements spec.md §4.6's read algorithm for one
// (entity_id, schema_key, file_id, version_id) key: an untracked
// non-tombstone row wins outright; otherwise the inheritance chain is
// walked depth-first and the first non-tombstone hit wins, with any
// tombstone along the way shadowing every deeper ancestor for that entity.
func ResolveEffective(ctx context.Context, db backend.Backend, entityID, schemaKey, fileID, versionID string) (*EffectiveRow, bool, error) {
	untracked, found, err := loadUntracked(ctx, db, entityID, schemaKey, fileID, versionID)
	if err != nil {
		return nil, false, err
	}
	if found {
		return untracked, true, nil
	}

	chain, err := InheritanceChain(ctx, db, versionID)
	if err != nil {
		return nil, false, err
	}
	for _, entry := range chain {
		row, tombstone, found, err := loadMaterialized(ctx, db, entityID, schemaKey, fileID, entry.VersionID)
		if err != nil {
			return nil, false, err
		}
		if !found {
			continue
		}
		if tombstone {
			// Tombstone opacity: this entity is absent from here on down
			// the chain regardless of deeper ancestors.
			return nil, false, nil
		}
		if entry.Depth > 0 {
			row.InheritedFromVersionID = entry.VersionID
		}
		row.VersionID = versionID
		return row, true, nil
	}
	return nil, false, nil
}

func loadUntracked(ctx context.Context, db backend.Backend, entityID, schemaKey, fileID, versionID string) (*EffectiveRow, bool, error) {
	rows, err := db.Execute(ctx,
		`SELECT schema_version, plugin_key, snapshot_content, is_tombstone, writer_key, created_at, updated_at
		 FROM lix_internal_state_untracked
		 WHERE entity_id = ? AND schema_key = ? AND file_id = ? AND version_id = ?`,
		[]types.Value{types.Text(entityID), types.Text(schemaKey), types.Text(fileID), types.Text(versionID)})
	if err != nil {
		return nil, false, lixerr.Wrap("load untracked row", err)
	}
	if rows.Len() == 0 {
		return nil, false, nil
	}
	r := rows.Data[0]
	isTombstone := r[3].I != 0
	if isTombstone {
		return nil, false, nil
	}
	schemaVersion, _ := r[0].AsText()
	pluginKey, _ := r[1].AsText()
	content, _ := r[2].AsText()
	writerKey, _ := r[4].AsText()
	createdAt, _ := r[5].AsText()
	updatedAt, _ := r[6].AsText()
	return &EffectiveRow{
		EntityID: entityID, SchemaKey: schemaKey, FileID: fileID, VersionID: versionID,
		SchemaVersion: schemaVersion, PluginKey: pluginKey, SnapshotContent: content, WriterKey: writerKey,
		CreatedAt: createdAt, UpdatedAt: updatedAt, Untracked: true,
	}, true, nil
}

// loadMaterialized returns (row, isTombstone, found, error) for the given
// key at exactly one version in the chain (no inheritance inside this call).
func loadMaterialized(ctx context.Context, db backend.Backend, entityID, schemaKey, fileID, versionID string) (*EffectiveRow, bool, bool, error) {
	table := materializedTableName(schemaKey)
	rows, err := db.Execute(ctx,
		`SELECT schema_version, plugin_key, snapshot_content, is_tombstone, change_id, metadata, writer_key, created_at, updated_at
		 FROM `+table+`
		 WHERE entity_id = ? AND file_id = ? AND version_id = ?`,
		[]types.Value{types.Text(entityID), types.Text(fileID), types.Text(versionID)})
	if err != nil {
		return nil, false, false, lixerr.Wrap("load materialized row", err)
	}
	if rows.Len() == 0 {
		return nil, false, false, nil
	}
	r := rows.Data[0]
	isTombstone := r[3].I != 0
	if isTombstone {
		return nil, true, true, nil
	}
	schemaVersion, _ := r[0].AsText()
	pluginKey, _ := r[1].AsText()
	content, _ := r[2].AsText()
	changeID, _ := r[4].AsText()
	metadata, _ := r[5].AsText()
	writerKey, _ := r[6].AsText()
	createdAt, _ := r[7].AsText()
	updatedAt, _ := r[8].AsText()
	return &EffectiveRow{
		EntityID: entityID, SchemaKey: schemaKey, FileID: fileID, VersionID: versionID,
		SchemaVersion: schemaVersion, PluginKey: pluginKey, SnapshotContent: content, ChangeID: changeID,
		Metadata: metadata, WriterKey: writerKey, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, false, true, nil
}

// ResolveByVersion implements lix_state_by_version: no inheritance, just the
// physically-present row in versionID. A tombstoned row is reported as not
// found.
func ResolveByVersion(ctx context.Context, db backend.Backend, entityID, schemaKey, fileID, versionID string) (*EffectiveRow, bool, error) {
	row, tombstone, found, err := loadMaterialized(ctx, db, entityID, schemaKey, fileID, versionID)
	if err != nil {
		return nil, false, err
	}
	if !found || tombstone {
		return nil, false, nil
	}
	row.VersionID = versionID
	return row, true, nil
}

func materializedTableName(schemaKey string) string {
	return "lix_internal_state_materialized_v1_" + schemaKey
}
