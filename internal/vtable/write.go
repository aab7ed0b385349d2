package vtable

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/deterministic"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/schema"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/validate"
)

// WriteRequest is one logical write against the vtable: an upsert (non-nil
// SnapshotContent) or a tombstone (nil SnapshotContent / Tombstone true).
type WriteRequest struct {
	EntityID        string
	SchemaKey       string
	SchemaVersion   string
	FileID          string
	VersionID       string
	PluginKey       string
	SnapshotContent []byte // nil for a tombstone write
	Tombstone       bool
	Untracked       bool
	WriterKey       string
	WorkingChangeSetID string // the active version's working commit's change-set id
}

// Engine ties the vtable's read/write semantics to a schema provider and
// key checker so callers (the writeplan executor, direct engine API calls)
// never have to re-derive validation ordering themselves.
type Engine struct {
	DB       backend.Backend
	Schemas  schema.Provider
	Checker  *validate.KeyChecker
	Det      *deterministic.Provider
	DetMode  deterministic.Settings
}

// Write performs the full pre-write validation and emission sequence from
// spec.md §4.6: schema lookup, JSON-schema validation, primary/secondary
// uniqueness, foreign keys, immutability, then the change/snapshot/
// materialized-row/change-set-element emission, returning the new change id.
func (e *Engine) Write(ctx context.Context, req WriteRequest) (string, error) {
	storedSchema, err := e.Schemas.LoadLatestSchema(ctx, req.SchemaKey)
	if err != nil {
		return "", err
	}

	// Immutable schemas reject UPDATE but DELETE (tombstone) succeeds and
	// emits a tombstone, so validation — including the immutability check —
	// only runs for non-tombstone writes.
	if !req.Tombstone {
		if err := e.validateWrite(ctx, storedSchema, req); err != nil {
			return "", err
		}
	}

	changeID, err := e.Det.UUIDv7(ctx, e.DetMode)
	if err != nil {
		return "", err
	}
	now, err := e.Det.Timestamp(ctx, e.DetMode)
	if err != nil {
		return "", err
	}

	snapshotID, err := e.writeSnapshot(ctx, req.SnapshotContent)
	if err != nil {
		return "", err
	}

	if _, err := e.DB.Execute(ctx,
		`INSERT INTO lix_internal_change
			(id, entity_id, schema_key, schema_version, file_id, plugin_key, snapshot_id, metadata, created_at, writer_key, version_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		[]types.Value{
			types.Text(changeID), types.Text(req.EntityID), types.Text(req.SchemaKey), types.Text(req.SchemaVersion),
			types.Text(req.FileID), types.Text(req.PluginKey), types.Text(snapshotID), types.Text(now),
			textOrNull(req.WriterKey), types.Text(req.VersionID),
		}); err != nil {
		return "", lixerr.Wrap("insert change row", err)
	}

	if req.Untracked {
		if err := e.upsertUntracked(ctx, req, now); err != nil {
			return "", err
		}
	} else {
		if err := e.upsertMaterialized(ctx, materializedTableName(req.SchemaKey), req, changeID, now); err != nil {
			return "", err
		}
	}

	if !req.Untracked && req.WorkingChangeSetID != "" {
		if err := e.appendChangeSetElement(ctx, req.WorkingChangeSetID, changeID); err != nil {
			return "", err
		}
	}

	if !req.Untracked {
		if err := e.invalidateFileCache(ctx, req.FileID, req.VersionID); err != nil {
			return "", err
		}
	}

	return changeID, nil
}

func (e *Engine) validateWrite(ctx context.Context, s types.StoredSchema, req WriteRequest) error {
	if s.Immutable {
		_, tombstone, found, err := loadMaterialized(ctx, e.DB, req.EntityID, req.SchemaKey, req.FileID, req.VersionID)
		if err != nil {
			return err
		}
		if found && !tombstone {
			return fmt.Errorf("%w: schema %q is immutable", lixerr.ErrImmutable, req.SchemaKey)
		}
	}
	parsed, err := validate.ParseSchema([]byte(s.Definition))
	if err != nil {
		return err
	}
	if err := validate.ValidateContent(parsed, req.SnapshotContent); err != nil {
		return err
	}
	if e.Checker == nil {
		return nil
	}
	if len(s.PrimaryKey) > 0 {
		if err := e.Checker.CheckUniqueness(ctx, req.SchemaKey, req.VersionID, req.EntityID, s.PrimaryKey, req.SnapshotContent); err != nil {
			return err
		}
	}
	for _, group := range s.Unique {
		if err := e.Checker.CheckUniqueness(ctx, req.SchemaKey, req.VersionID, req.EntityID, group, req.SnapshotContent); err != nil {
			return err
		}
	}
	for _, fk := range s.ForeignKeys {
		if err := e.Checker.CheckForeignKey(ctx, fk, req.SnapshotContent); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) writeSnapshot(ctx context.Context, content []byte) (string, error) {
	if content == nil {
		return types.NoContentSnapshotID, nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", lixerr.Wrap("generate snapshot id", err)
	}
	if _, err := e.DB.Execute(ctx,
		`INSERT INTO lix_internal_snapshot (id, content) VALUES (?, ?)`,
		[]types.Value{types.Text(id.String()), types.Text(string(content))}); err != nil {
		return "", lixerr.Wrap("insert snapshot row", err)
	}
	return id.String(), nil
}

func (e *Engine) upsertMaterialized(ctx context.Context, table string, req WriteRequest, changeID, now string) error {
	var content types.Value
	if req.SnapshotContent == nil {
		content = types.Null()
	} else {
		content = types.Text(string(req.SnapshotContent))
	}
	isTombstone := int64(0)
	if req.Tombstone {
		isTombstone = 1
	}
	_, err := e.DB.Execute(ctx,
		`INSERT INTO `+table+`
			(entity_id, file_id, version_id, schema_version, plugin_key, snapshot_content, change_id, is_tombstone, inherited_from_version_id, metadata, writer_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?, ?)
		 ON CONFLICT (entity_id, file_id, version_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			plugin_key = excluded.plugin_key,
			snapshot_content = excluded.snapshot_content,
			change_id = excluded.change_id,
			is_tombstone = excluded.is_tombstone,
			inherited_from_version_id = NULL,
			writer_key = excluded.writer_key,
			updated_at = excluded.updated_at`,
		[]types.Value{
			types.Text(req.EntityID), types.Text(req.FileID), types.Text(req.VersionID), types.Text(req.SchemaVersion),
			types.Text(req.PluginKey), content, types.Text(changeID), types.Int64(isTombstone),
			textOrNull(req.WriterKey), types.Text(now), types.Text(now),
		})
	return lixerr.Wrap("upsert materialized row", err)
}

func (e *Engine) upsertUntracked(ctx context.Context, req WriteRequest, now string) error {
	var content types.Value
	if req.SnapshotContent == nil {
		content = types.Null()
	} else {
		content = types.Text(string(req.SnapshotContent))
	}
	_, err := e.DB.Execute(ctx,
		`INSERT INTO lix_internal_state_untracked
			(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content, is_tombstone, writer_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		 ON CONFLICT (entity_id, schema_key, file_id, version_id) DO UPDATE SET
			snapshot_content = excluded.snapshot_content,
			updated_at = excluded.updated_at`,
		[]types.Value{
			types.Text(req.EntityID), types.Text(req.SchemaKey), types.Text(req.FileID), types.Text(req.VersionID),
			types.Text(req.SchemaVersion), types.Text(req.PluginKey), content, textOrNull(req.WriterKey),
			types.Text(now), types.Text(now),
		})
	return lixerr.Wrap("upsert untracked row", err)
}

func (e *Engine) appendChangeSetElement(ctx context.Context, changeSetID, changeID string) error {
	elementID, err := uuid.NewV7()
	if err != nil {
		return lixerr.Wrap("generate change set element id", err)
	}
	content := fmt.Sprintf(`{"change_set_id":%q,"change_id":%q}`, changeSetID, changeID)
	_, err = e.Write(ctx, WriteRequest{
		EntityID: elementID.String(), SchemaKey: "lix_change_set_element", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(content),
	})
	return err
}

func (e *Engine) invalidateFileCache(ctx context.Context, fileID, versionID string) error {
	if fileID == "" {
		return nil
	}
	_, err := e.DB.Execute(ctx,
		`INSERT INTO lix_internal_file_data_cache (file_id, version_id, data, stale)
		 VALUES (?, ?, NULL, 1)
		 ON CONFLICT (file_id, version_id) DO UPDATE SET stale = 1`,
		[]types.Value{types.Text(fileID), types.Text(versionID)})
	return lixerr.Wrap("invalidate file data cache", err)
}

func textOrNull(s string) types.Value {
	if s == "" {
		return types.Null()
	}
	return types.Text(s)
}
