package writeplan

import (
	"context"

	"github.com/lixdb/lix/internal/checkpoint"
	"github.com/lixdb/lix/internal/types"
	"github.com/lixdb/lix/internal/vtable"
)

// Apply runs every resolved mutation row in out through the vtable engine,
// returning the change ids minted in order. Tracked (non-untracked) writes
// are stamped with the active version's working change set so they show up
// in the next create_checkpoint() the way spec.md §4.6/§4.9 expect;
// untracked writes never touch a change set at all.
//
// Apply re-runs out.Validate() before writing anything, so a
// PreprocessOutput assembled by hand (rather than returned by Preprocess)
// is checked too.
func Apply(ctx context.Context, eng *vtable.Engine, mgr *checkpoint.Manager, out types.PreprocessOutput) ([]string, error) {
	if err := out.Validate(); err != nil {
		return nil, err
	}

	var workingChangeSetID string
	needsChangeSet := false
	for _, mr := range out.MutationRows {
		if !mr.Untracked {
			needsChangeSet = true
			break
		}
	}
	if needsChangeSet {
		_, csID, err := mgr.ActiveVersionAndWorkingChangeSet(ctx)
		if err != nil {
			return nil, err
		}
		workingChangeSetID = csID
	}

	changeIDs := make([]string, 0, len(out.MutationRows))
	for _, mr := range out.MutationRows {
		req := vtable.WriteRequest{
			EntityID:      mr.EntityID,
			SchemaKey:     mr.SchemaKey,
			SchemaVersion: mr.SchemaVersion,
			FileID:        mr.FileID,
			VersionID:     mr.VersionID,
			PluginKey:     mr.PluginKey,
			Tombstone:     mr.Tombstone,
			Untracked:     mr.Untracked,
			WriterKey:     mr.WriterKey,
		}
		if !mr.Tombstone {
			req.SnapshotContent = []byte(mr.SnapshotJSON)
		}
		if !mr.Untracked {
			req.WorkingChangeSetID = workingChangeSetID
		}
		changeID, err := eng.Write(ctx, req)
		if err != nil {
			return nil, err
		}
		changeIDs = append(changeIDs, changeID)
	}
	return changeIDs, nil
}
