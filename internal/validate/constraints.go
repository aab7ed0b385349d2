package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// KeyChecker enforces primary-key, secondary-unique, and foreign-key
// constraints across the effective version chain before a vtable write is
// allowed to proceed, per spec.md §4.6's pre-write validation list.
type KeyChecker struct {
	db backend.Backend
}

// NewKeyChecker builds a checker reading through db.
func NewKeyChecker(db backend.Backend) *KeyChecker {
	return &KeyChecker{db: db}
}

// CheckUniqueness verifies that writing content under entityID would not
// duplicate an existing effective primary or secondary unique key within
// versionID's inheritance chain. keyPaths is one JSON-Pointer tuple (the
// primary key or one x-lix-unique group); excludeEntityID lets an UPDATE
// of the same row pass without colliding with itself.
func (c *KeyChecker) CheckUniqueness(ctx context.Context, schemaKey, versionID, excludeEntityID string, keyPaths []string, content []byte) error {
	if len(keyPaths) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return lixerr.Wrap("decode snapshot content for key check", err)
	}
	keyValue, err := extractKeyTuple(keyPaths, decoded)
	if err != nil {
		return err
	}

	tableName := materializedTableName(schemaKey)
	rows, err := c.db.Execute(ctx,
		fmt.Sprintf(`SELECT entity_id, snapshot_content FROM %s WHERE is_tombstone = 0 AND snapshot_content IS NOT NULL`, tableName),
		nil)
	if err != nil {
		return lixerr.Wrap("scan materialized table for uniqueness check", err)
	}
	for _, row := range rows.Data {
		otherID, _ := row[0].AsText()
		if otherID == excludeEntityID {
			continue
		}
		otherContent, _ := row[1].AsText()
		var otherDecoded any
		if err := json.Unmarshal([]byte(otherContent), &otherDecoded); err != nil {
			continue
		}
		otherKey, err := extractKeyTuple(keyPaths, otherDecoded)
		if err != nil {
			continue
		}
		if otherKey == keyValue {
			return fmt.Errorf("%w: duplicate key %s for schema %q (existing entity %q)", lixerr.ErrConflict, strings.Join(keyPaths, ","), schemaKey, otherID)
		}
	}
	return nil
}

// CheckForeignKey verifies that the value(s) at fk.Properties resolve to an
// existing primary or declared-unique key row in fk.ReferencesKey's
// materialized table.
func (c *KeyChecker) CheckForeignKey(ctx context.Context, fk types.ForeignKey, content []byte) error {
	var decoded any
	if err := json.Unmarshal(content, &decoded); err != nil {
		return lixerr.Wrap("decode snapshot content for foreign key check", err)
	}
	keyValue, err := extractKeyTuple(fk.Properties, decoded)
	if err != nil {
		// A NULL/missing FK value is permitted; FK enforcement only applies
		// when every referencing property is present.
		return nil
	}

	tableName := materializedTableName(fk.ReferencesKey)
	rows, err := c.db.Execute(ctx,
		fmt.Sprintf(`SELECT snapshot_content FROM %s WHERE is_tombstone = 0 AND snapshot_content IS NOT NULL`, tableName),
		nil)
	if err != nil {
		return lixerr.Wrap("scan referenced table for foreign key check", err)
	}
	for _, row := range rows.Data {
		referencedContent, _ := row[0].AsText()
		var referencedDecoded any
		if err := json.Unmarshal([]byte(referencedContent), &referencedDecoded); err != nil {
			continue
		}
		referencedKey, err := extractKeyTuple(fk.ReferencesProp, referencedDecoded)
		if err != nil {
			continue
		}
		if referencedKey == keyValue {
			return nil
		}
	}
	return fmt.Errorf("%w: foreign key constraint violation: %s references missing %s.%s",
		lixerr.ErrVtableConstraint, strings.Join(fk.Properties, ","), fk.ReferencesKey, strings.Join(fk.ReferencesProp, ","))
}

func extractKeyTuple(pointers []string, decoded any) (string, error) {
	parts := make([]string, 0, len(pointers))
	for _, p := range pointers {
		v, ok := JSONPointerGet(decoded, p)
		if !ok {
			return "", fmt.Errorf("%w: key path %q not present in snapshot content", lixerr.ErrSchemaInvalid, p)
		}
		encoded, _ := json.Marshal(v)
		parts = append(parts, string(encoded))
	}
	return strings.Join(parts, "\x1f"), nil
}

func materializedTableName(schemaKey string) string {
	return "lix_internal_state_materialized_v1_" + schemaKey
}
