package planner

import (
	"fmt"
	"strings"
)

// KnownSchemas is the set of schema keys the planner expands
// lix_state/lix_state_by_version into a UNION ALL over — one branch per
// materialized table. The engine populates this with the built-in schema
// keys plus every schema key in its change log; tests can pass a fixed list.
type KnownSchemas struct {
	Keys []string
}

// viewTemplate renders a logical view's canonical derived-subquery body.
// dialect is threaded through so a view's own body can already contain
// dialect-lowered function calls rather than relying solely on a later
// textual Lower pass over the whole statement.
type viewTemplate func(schemas KnownSchemas, dialect Dialect) string

var viewCatalog = map[string]viewTemplate{
	"lix_active_version": func(_ KnownSchemas, d Dialect) string {
		return fmt.Sprintf(
			`SELECT entity_id AS id, %s AS version_id
			 FROM lix_internal_state_untracked
			 WHERE schema_key = 'lix_active_version' AND is_tombstone = 0`,
			jsonExtractText(d, "snapshot_content", "/version_id"))
	},
	"lix_active_account": func(_ KnownSchemas, d Dialect) string {
		return fmt.Sprintf(
			`SELECT entity_id AS id, %s AS account_id
			 FROM lix_internal_state_untracked
			 WHERE schema_key = 'lix_active_account' AND is_tombstone = 0`,
			jsonExtractText(d, "snapshot_content", "/account_id"))
	},
	"lix_version": func(_ KnownSchemas, d Dialect) string {
		descriptor := "lix_internal_state_materialized_v1_lix_version_descriptor"
		pointer := "lix_internal_state_materialized_v1_lix_version_pointer"
		return fmt.Sprintf(
			`SELECT d.entity_id AS id, %s AS name, %s AS inherits_from_version_id,
					%s AS hidden, p.entity_id IS NOT NULL AS has_pointer,
					%s AS commit_id, %s AS working_commit_id,
					COALESCE(p.updated_at, d.updated_at) AS updated_at
			 FROM %s d
			 LEFT OUTER JOIN %s p ON p.entity_id = d.entity_id
			 WHERE d.is_tombstone = 0`,
			jsonExtractText(d, "d.snapshot_content", "/name"),
			jsonExtractText(d, "d.snapshot_content", "/inherits_from_version_id"),
			jsonExtractText(d, "d.snapshot_content", "/hidden"),
			jsonExtractText(d, "p.snapshot_content", "/commit_id"),
			jsonExtractText(d, "p.snapshot_content", "/working_commit_id"),
			descriptor, pointer)
	},
	"lix_state_by_version": func(s KnownSchemas, d Dialect) string {
		return stateByVersionUnion(s, d)
	},
}

// Expand returns the canonical subquery body for a logical view name, or
// ("", false) if name is not a known logical view.
func Expand(name string, schemas KnownSchemas, dialect Dialect) (string, bool) {
	tmpl, ok := viewCatalog[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return tmpl(schemas, dialect), true
}

// stateByVersionUnion builds the "no inheritance" state view from spec.md
// §4.7: every physically-present row (tombstone or not) across every known
// schema's materialized table, tagged with its schema_key.
func stateByVersionUnion(schemas KnownSchemas, _ Dialect) string {
	if len(schemas.Keys) == 0 {
		return `SELECT NULL AS entity_id, NULL AS schema_key, NULL AS file_id, NULL AS version_id,
						NULL AS schema_version, NULL AS plugin_key, NULL AS snapshot_content,
						NULL AS change_id, NULL AS inherited_from_version_id, NULL AS metadata,
						NULL AS writer_key, NULL AS is_tombstone, NULL AS created_at, NULL AS updated_at
				 WHERE 1 = 0`
	}
	branches := make([]string, len(schemas.Keys))
	for i, key := range schemas.Keys {
		branches[i] = fmt.Sprintf(
			`SELECT entity_id, '%s' AS schema_key, file_id, version_id, schema_version, plugin_key,
					snapshot_content, change_id, inherited_from_version_id, metadata, writer_key,
					is_tombstone, created_at, updated_at
			 FROM lix_internal_state_materialized_v1_%s`,
			escapeSQLLiteral(key), key)
	}
	return strings.Join(branches, "\nUNION ALL\n")
}

func escapeSQLLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
