package planner

import "strings"

// jsonExtractText lowers a single-field JSON-Pointer-style access (e.g.
// "/version_id") against column into the dialect's native JSON text
// extraction expression. It backs both the view templates in views.go and
// the lix_json_extract lowering in lower.go so the two stay in sync.
func jsonExtractText(d Dialect, column, pointer string) string {
	field := strings.TrimPrefix(pointer, "/")
	switch d.Name {
	case "postgres":
		return column + "::jsonb->>'" + escapeSQLLiteral(field) + "'"
	default:
		return "json_extract(" + column + ", '$." + escapeSQLLiteral(field) + "')"
	}
}
