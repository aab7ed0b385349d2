// Package checkpoint implements the checkpoint and version manager
// described in spec.md §4.9: promoting a version's working commit to a
// tip and rotating a fresh working commit, and branching a new version
// off the active one.
package checkpoint

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/schema"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

// Manager creates checkpoints and versions against a vtable.Engine.
type Manager struct {
	Engine *vtable.Engine
}

// CreateCheckpointResult mirrors the original engine's return shape.
type CreateCheckpointResult struct {
	ID          string
	ChangeSetID string
}

// CreateCheckpoint implements spec.md §4.9's create_checkpoint().
func (m *Manager) CreateCheckpoint(ctx context.Context) (CreateCheckpointResult, error) {
	versionID, tipID, workingID, err := m.loadActiveVersionPointer(ctx)
	if err != nil {
		return CreateCheckpointResult{}, err
	}

	changeIDs, err := m.changeSetElementChangeIDs(ctx, workingID)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	checkpointable, err := m.hasCheckpointableElements(ctx, changeIDs)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	if !checkpointable {
		workingChangeSetID, err := m.workingChangeSetID(ctx, workingID)
		if err != nil {
			return CreateCheckpointResult{}, err
		}
		return CreateCheckpointResult{ID: tipID, ChangeSetID: workingChangeSetID}, nil
	}

	parentIDs, err := m.commitParentIDs(ctx, workingID)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	mergedParents := normalizeParents(append(parentIDs, tipID))
	if err := m.setCommitParents(ctx, workingID, mergedParents); err != nil {
		return CreateCheckpointResult{}, err
	}
	if err := m.ensureCommitEdge(ctx, tipID, workingID); err != nil {
		return CreateCheckpointResult{}, err
	}
	if err := m.recomputeAncestryForCommit(ctx, workingID, mergedParents); err != nil {
		return CreateCheckpointResult{}, err
	}

	newWorkingID, err := m.newID(ctx)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	newChangeSetID, err := m.newID(ctx)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	if err := m.insertCommit(ctx, newWorkingID, newChangeSetID, []string{workingID}); err != nil {
		return CreateCheckpointResult{}, err
	}
	if err := m.ensureCommitEdge(ctx, workingID, newWorkingID); err != nil {
		return CreateCheckpointResult{}, err
	}
	if err := m.recomputeAncestryForCommit(ctx, newWorkingID, []string{workingID}); err != nil {
		return CreateCheckpointResult{}, err
	}

	if err := m.updateVersionPointer(ctx, versionID, workingID, newWorkingID); err != nil {
		return CreateCheckpointResult{}, err
	}

	promotedChangeSetID, err := m.commitChangeSetID(ctx, workingID)
	if err != nil {
		return CreateCheckpointResult{}, err
	}
	return CreateCheckpointResult{ID: workingID, ChangeSetID: promotedChangeSetID}, nil
}

// CreateVersionOptions mirrors the original engine's options shape.
type CreateVersionOptions struct {
	Name     string
	Inherits string // empty means "inherit from the active version"
}

// CreateVersionResult mirrors the original engine's return shape.
type CreateVersionResult struct {
	ID                    string
	Name                  string
	InheritsFromVersionID string
}

// CreateVersion implements spec.md §4.9's create_version().
func (m *Manager) CreateVersion(ctx context.Context, opts CreateVersionOptions) (CreateVersionResult, error) {
	activeVersionID, activeTipID, _, err := m.loadActiveVersionPointer(ctx)
	if err != nil {
		return CreateVersionResult{}, err
	}

	newVersionID, err := m.newID(ctx)
	if err != nil {
		return CreateVersionResult{}, err
	}
	newWorkingID, err := m.newID(ctx)
	if err != nil {
		return CreateVersionResult{}, err
	}
	newChangeSetID, err := m.newID(ctx)
	if err != nil {
		return CreateVersionResult{}, err
	}

	if err := m.insertCommit(ctx, newWorkingID, newChangeSetID, []string{activeTipID}); err != nil {
		return CreateVersionResult{}, err
	}
	if err := m.ensureCommitEdge(ctx, activeTipID, newWorkingID); err != nil {
		return CreateVersionResult{}, err
	}
	if err := m.recomputeAncestryForCommit(ctx, newWorkingID, []string{activeTipID}); err != nil {
		return CreateVersionResult{}, err
	}

	inherits := opts.Inherits
	if inherits == "" {
		inherits = activeVersionID
	}
	name := opts.Name
	if name == "" {
		name = newVersionID
	}
	if err := m.insertVersion(ctx, newVersionID, name, inherits, activeTipID, newWorkingID); err != nil {
		return CreateVersionResult{}, err
	}

	return CreateVersionResult{ID: newVersionID, Name: name, InheritsFromVersionID: inherits}, nil
}

func (m *Manager) newID(ctx context.Context) (string, error) {
	return m.Engine.Det.UUIDv7(ctx, m.Engine.DetMode)
}

// normalizeParents drops empty ids, dedupes and sorts a parent-id list so
// the same logical set always serializes identically. It does not remove a
// commit's own id from its parent list.
func normalizeParents(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ActiveVersionAndWorkingChangeSet resolves the currently active version and
// the change set its working commit is accumulating into — the two pieces
// of context every tracked write needs (which version it targets, and which
// change set a new change row's lix_change_set_element entry belongs to).
// Exposed for internal/writeplan, which needs the same lookup vtable.Engine
// itself does not perform on its caller's behalf.
func (m *Manager) ActiveVersionAndWorkingChangeSet(ctx context.Context) (versionID, workingChangeSetID string, err error) {
	versionID, _, workingID, err := m.loadActiveVersionPointer(ctx)
	if err != nil {
		return "", "", err
	}
	workingChangeSetID, err = m.workingChangeSetID(ctx, workingID)
	if err != nil {
		return "", "", err
	}
	return versionID, workingChangeSetID, nil
}

func (m *Manager) loadActiveVersionPointer(ctx context.Context) (versionID, tipID, workingID string, err error) {
	row, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, "active-version", "lix_active_version", "lix", types.GlobalVersionID)
	if err != nil {
		return "", "", "", err
	}
	if !found {
		return "", "", "", fmt.Errorf("%w: lix_active_version has no row", lixerr.ErrNotFound)
	}
	versionID = gjson.Get(row.SnapshotContent, "version_id").String()

	ptr, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, versionID, "lix_version_pointer", "lix", types.GlobalVersionID)
	if err != nil {
		return "", "", "", err
	}
	if !found {
		return "", "", "", fmt.Errorf("%w: lix_version_pointer %q has no row", lixerr.ErrNotFound, versionID)
	}
	tipID = gjson.Get(ptr.SnapshotContent, "commit_id").String()
	workingID = gjson.Get(ptr.SnapshotContent, "working_commit_id").String()
	return versionID, tipID, workingID, nil
}

func (m *Manager) commitChangeSetID(ctx context.Context, commitID string) (string, error) {
	row, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, commitID, "lix_commit", "lix", types.GlobalVersionID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: lix_commit %q has no row", lixerr.ErrNotFound, commitID)
	}
	return gjson.Get(row.SnapshotContent, "change_set_id").String(), nil
}

func (m *Manager) workingChangeSetID(ctx context.Context, workingCommitID string) (string, error) {
	return m.commitChangeSetID(ctx, workingCommitID)
}

func (m *Manager) commitParentIDs(ctx context.Context, commitID string) ([]string, error) {
	row, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, commitID, "lix_commit", "lix", types.GlobalVersionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	var ids []string
	for _, v := range gjson.Get(row.SnapshotContent, "parent_commit_ids").Array() {
		ids = append(ids, v.String())
	}
	return ids, nil
}

func (m *Manager) setCommitParents(ctx context.Context, commitID string, parents []string) error {
	row, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, commitID, "lix_commit", "lix", types.GlobalVersionID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: lix_commit %q has no row", lixerr.ErrNotFound, commitID)
	}
	updated, err := sjson.Set(row.SnapshotContent, "parent_commit_ids", parents)
	if err != nil {
		return lixerr.Wrap("set parent_commit_ids", err)
	}
	_, err = m.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: commitID, SchemaKey: "lix_commit", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(updated),
	})
	return err
}

func (m *Manager) insertCommit(ctx context.Context, commitID, changeSetID string, parents []string) error {
	content := fmt.Sprintf(`{"id":%q,"change_set_id":%q,"parent_commit_ids":%s}`, commitID, changeSetID, jsonStringArray(parents))
	_, err := m.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: commitID, SchemaKey: "lix_commit", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(content),
	})
	return err
}

func (m *Manager) ensureCommitEdge(ctx context.Context, parentID, childID string) error {
	entityID := parentID + "~" + childID
	_, found, err := vtable.ResolveEffective(ctx, m.Engine.DB, entityID, "lix_commit_edge", "lix", types.GlobalVersionID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	content := fmt.Sprintf(`{"parent_id":%q,"child_id":%q}`, parentID, childID)
	_, err = m.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: entityID, SchemaKey: "lix_commit_edge", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(content),
	})
	return err
}

func (m *Manager) updateVersionPointer(ctx context.Context, versionID, commitID, workingCommitID string) error {
	content := fmt.Sprintf(`{"id":%q,"commit_id":%q,"working_commit_id":%q}`, versionID, commitID, workingCommitID)
	_, err := m.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: versionID, SchemaKey: "lix_version_pointer", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(content),
	})
	return err
}

func (m *Manager) insertVersion(ctx context.Context, versionID, name, inheritsFrom, commitID, workingCommitID string) error {
	descriptor := fmt.Sprintf(`{"id":%q,"name":%q,"inherits_from_version_id":%q,"hidden":false}`, versionID, name, inheritsFrom)
	if _, err := m.Engine.Write(ctx, vtable.WriteRequest{
		EntityID: versionID, SchemaKey: "lix_version_descriptor", SchemaVersion: "1",
		FileID: "lix", VersionID: types.GlobalVersionID, PluginKey: "lix",
		SnapshotContent: []byte(descriptor),
	}); err != nil {
		return err
	}
	return m.updateVersionPointer(ctx, versionID, commitID, workingCommitID)
}

// changeSetElementChangeIDs scans the lix_change_set_element materialized
// table for rows belonging to changeSetID. Grounded on the working commit's
// own change-set id looked up through commitChangeSetID.
func (m *Manager) changeSetElementChangeIDs(ctx context.Context, workingCommitID string) ([]string, error) {
	changeSetID, err := m.workingChangeSetID(ctx, workingCommitID)
	if err != nil {
		return nil, err
	}
	rows, err := m.Engine.DB.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_materialized_v1_lix_change_set_element
		 WHERE is_tombstone = 0 AND snapshot_content IS NOT NULL`, nil)
	if err != nil {
		return nil, lixerr.Wrap("scan change set elements", err)
	}
	var changeIDs []string
	for _, row := range rows.Data {
		content, _ := row[0].AsText()
		if gjson.Get(content, "change_set_id").String() != changeSetID {
			continue
		}
		changeIDs = append(changeIDs, gjson.Get(content, "change_id").String())
	}
	return changeIDs, nil
}

// hasCheckpointableElements reports whether any of changeIDs belongs to a
// schema outside schema.CheckpointBlacklist.
func (m *Manager) hasCheckpointableElements(ctx context.Context, changeIDs []string) (bool, error) {
	for _, changeID := range changeIDs {
		rows, err := m.Engine.DB.Execute(ctx,
			`SELECT schema_key FROM lix_internal_change WHERE id = ?`,
			[]types.Value{types.Text(changeID)})
		if err != nil {
			return false, lixerr.Wrap("load change schema key", err)
		}
		if rows.Len() == 0 {
			continue
		}
		key, _ := rows.Data[0][0].AsText()
		if !schema.CheckpointBlacklist[key] {
			return true, nil
		}
	}
	return false, nil
}

func jsonStringArray(ids []string) string {
	out := "["
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", id)
	}
	return out + "]"
}

// recomputeAncestryForCommit implements spec.md §4.9 step 3's ancestry
// formula: {self@0} ∪ {a@(d+1) | a@d ∈ ancestry(parent)} for each parent,
// taking MIN(depth) on conflict across parents.
func (m *Manager) recomputeAncestryForCommit(ctx context.Context, commitID string, parents []string) error {
	depths := map[string]int{commitID: 0}
	for _, parent := range parents {
		ancestry, err := m.loadAncestry(ctx, parent)
		if err != nil {
			return err
		}
		ancestry[parent] = 0
		for ancestor, depth := range ancestry {
			newDepth := depth + 1
			if existing, ok := depths[ancestor]; !ok || newDepth < existing {
				depths[ancestor] = newDepth
			}
		}
	}
	for ancestor, depth := range depths {
		if _, err := m.Engine.DB.Execute(ctx,
			`INSERT INTO lix_internal_commit_ancestry (commit_id, ancestor_id, depth)
			 VALUES (?, ?, ?)
			 ON CONFLICT (commit_id, ancestor_id) DO UPDATE SET depth = MIN(depth, excluded.depth)`,
			[]types.Value{types.Text(commitID), types.Text(ancestor), types.Int64(int64(depth))}); err != nil {
			return lixerr.Wrap("upsert commit ancestry", err)
		}
	}
	return nil
}

func (m *Manager) loadAncestry(ctx context.Context, commitID string) (map[string]int, error) {
	rows, err := m.Engine.DB.Execute(ctx,
		`SELECT ancestor_id, depth FROM lix_internal_commit_ancestry WHERE commit_id = ?`,
		[]types.Value{types.Text(commitID)})
	if err != nil {
		return nil, lixerr.Wrap("load commit ancestry", err)
	}
	out := map[string]int{}
	for _, row := range rows.Data {
		id, _ := row[0].AsText()
		out[id] = int(row[1].I)
	}
	return out, nil
}
