// Package schema provides schema lookup for the engine: the built-in
// schema registry plus the two composable providers described in
// spec.md §4.3 (SqlStoredSchemaProvider backed by the materialized
// lix_stored_schema table, and an OverlaySchemaProvider layering
// in-flight "pending" schemas over it).
package schema

// BuiltinSchemaKeys lists every schema key the engine ships with a
// definition for, ported from original_source's builtin_schema module.
var BuiltinSchemaKeys = []string{
	"lix_stored_schema",
	"lix_key_value",
	"lix_account",
	"lix_active_account",
	"lix_change",
	"lix_change_author",
	"lix_change_set",
	"lix_commit",
	"lix_version_descriptor",
	"lix_version_pointer",
	"lix_active_version",
	"lix_change_set_element",
	"lix_commit_edge",
	"lix_file_descriptor",
	"lix_directory_descriptor",
}

// IsBuiltin reports whether key names a built-in schema.
func IsBuiltin(key string) bool {
	for _, k := range BuiltinSchemaKeys {
		if k == key {
			return true
		}
	}
	return false
}

// CheckpointBlacklist lists schema keys whose elements alone never make a
// working change-set "checkpointable" (spec.md §4.9 step 2).
var CheckpointBlacklist = map[string]bool{
	"lix_version_pointer": true,
	"lix_commit_edge":     true,
	"lix_change_author":   true,
}
