package materialize

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

type rowKey struct {
	entityID  string
	fileID    string
	versionID string
}

// candidateRow is one row read off lix_internal_change (joined with its
// snapshot), before winner selection.
type candidateRow struct {
	id              string
	entityID        string
	schemaKey       string
	schemaVersion   string
	fileID          string
	versionID       string
	pluginKey       string
	snapshotContent *string
	metadata        *string
	createdAt       string
}

// isNewerThan mirrors the original loader's HasOrder tiebreak: later
// created_at wins, and on a tie the lexicographically greater id wins
// (both are time-ordered UUIDv7 strings, so this is a stable total order).
func (c candidateRow) isNewerThan(other candidateRow) bool {
	if c.createdAt != other.createdAt {
		return c.createdAt > other.createdAt
	}
	return c.id > other.id
}

// discoverSchemaKeys lists every distinct schema_key present in the change
// log (optionally restricted to the version ids named in scope), which is
// what a Full materialize(request) iterates over.
func discoverSchemaKeys(ctx context.Context, db backend.Backend, scope Scope) ([]string, error) {
	sql := "SELECT DISTINCT schema_key FROM lix_internal_change"
	var args []types.Value
	if !scope.Full {
		if len(scope.VersionIDs) == 0 {
			return nil, nil
		}
		sql += " WHERE version_id IN (" + placeholders(len(scope.VersionIDs)) + ")"
		for _, v := range scope.VersionIDs {
			args = append(args, types.Text(v))
		}
	}
	rows, err := db.Execute(ctx, sql, args)
	if err != nil {
		return nil, lixerr.Wrap("discover materializable schema keys", err)
	}
	var keys []string
	for _, row := range rows.Data {
		key, _ := row[0].AsText()
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// BuildPlan implements spec.md §4.8 step 1: for each schema key, collect
// every live change and select the winner per (entity_id, file_id,
// version_id), emitting an Upsert or Tombstone write per key.
func BuildPlan(ctx context.Context, db backend.Backend, schemaKeys []string, scope Scope) (*Plan, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, lixerr.Wrap("generate materialization run id", err)
	}
	plan := &Plan{RunID: runID.String()}

	for _, schemaKey := range schemaKeys {
		candidates, err := loadCandidates(ctx, db, schemaKey, scope)
		if err != nil {
			return nil, err
		}

		winners := map[rowKey]candidateRow{}
		for _, c := range candidates {
			key := rowKey{entityID: c.entityID, fileID: c.fileID, versionID: c.versionID}
			existing, ok := winners[key]
			if !ok || c.isNewerThan(existing) {
				winners[key] = c
			}
		}

		keys := make([]rowKey, 0, len(winners))
		for k := range winners {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].entityID != keys[j].entityID {
				return keys[i].entityID < keys[j].entityID
			}
			if keys[i].fileID != keys[j].fileID {
				return keys[i].fileID < keys[j].fileID
			}
			return keys[i].versionID < keys[j].versionID
		})

		for _, k := range keys {
			winner := winners[k]
			op := OpUpsert
			if winner.snapshotContent == nil {
				op = OpTombstone
			}
			plan.Writes = append(plan.Writes, PlannedWrite{
				EntityID:        winner.entityID,
				SchemaKey:       winner.schemaKey,
				SchemaVersion:   winner.schemaVersion,
				FileID:          winner.fileID,
				VersionID:       winner.versionID,
				PluginKey:       winner.pluginKey,
				SnapshotContent: winner.snapshotContent,
				ChangeID:        winner.id,
				Metadata:        winner.metadata,
				Op:              op,
				CreatedAt:       winner.createdAt,
				UpdatedAt:       winner.createdAt,
			})
		}
	}

	return plan, nil
}

func loadCandidates(ctx context.Context, db backend.Backend, schemaKey string, scope Scope) ([]candidateRow, error) {
	sql := `SELECT c.id, c.entity_id, c.schema_key, c.schema_version, c.file_id, c.plugin_key,
				s.content, c.metadata, c.created_at, c.version_id
			FROM lix_internal_change c
			LEFT JOIN lix_internal_snapshot s ON s.id = c.snapshot_id
			WHERE c.schema_key = ?`
	args := []types.Value{types.Text(schemaKey)}
	if !scope.Full {
		if len(scope.VersionIDs) == 0 {
			return nil, nil
		}
		sql += " AND c.version_id IN (" + placeholders(len(scope.VersionIDs)) + ")"
		for _, v := range scope.VersionIDs {
			args = append(args, types.Text(v))
		}
	}

	rows, err := db.Execute(ctx, sql, args)
	if err != nil {
		return nil, lixerr.Wrap("load materialization candidates", err)
	}

	out := make([]candidateRow, 0, rows.Len())
	for _, row := range rows.Data {
		id, _ := row[0].AsText()
		entityID, _ := row[1].AsText()
		key, _ := row[2].AsText()
		schemaVersion, _ := row[3].AsText()
		fileID, _ := row[4].AsText()
		pluginKey, _ := row[5].AsText()
		createdAt, _ := row[8].AsText()
		versionID, _ := row[9].AsText()

		var snapshotContent *string
		if !row[6].IsNull() {
			text, _ := row[6].AsText()
			snapshotContent = &text
		}
		var metadata *string
		if !row[7].IsNull() {
			text, _ := row[7].AsText()
			metadata = &text
		}

		out = append(out, candidateRow{
			id: id, entityID: entityID, schemaKey: key, schemaVersion: schemaVersion,
			fileID: fileID, versionID: versionID, pluginKey: pluginKey,
			snapshotContent: snapshotContent, metadata: metadata, createdAt: createdAt,
		})
	}
	return out, nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

// Run discovers every schema key touched by scope and builds a plan across
// all of them in one pass — the shape engine.materialize(request) calls
// when it isn't given an explicit schema key list.
func Run(ctx context.Context, db backend.Backend, scope Scope) (*Plan, error) {
	keys, err := discoverSchemaKeys(ctx, db, scope)
	if err != nil {
		return nil, err
	}
	return BuildPlan(ctx, db, keys, scope)
}
