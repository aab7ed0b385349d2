// Package planner implements the four-phase read rewrite pipeline from
// spec.md §4.4: Analyze → Canonicalize → Optimize → Lower, turning a query
// written against logical views (lix_state*, lix_version, lix_file*,
// lix_active_version, lix_active_account, user entity views) into a query
// whose only table references are physical (materialized/untracked/
// ancestry tables).
package planner

import "github.com/lixdb/lix/internal/sqlast"

// Dialect names the two backend families the engine supports and the
// per-dialect substitutions the Lower phase needs: the placeholder style
// and the JSON-extraction function family.
type Dialect struct {
	Name        string
	Placeholder sqlast.PlaceholderDialect
}

// SQLite is the sqlitebackend dialect: '?' placeholders, json1 functions.
var SQLite = Dialect{Name: "sqlite", Placeholder: sqlast.PlaceholderQuestion}

// Postgres is the doltbackend-standin dialect: '$n' placeholders, jsonb
// functions. Named after the wire protocol the engine targets (spec.md's
// "Postgres-like dialect"), even though the concrete backend behind it is
// an embedded Dolt/MySQL engine (see internal/backend/doltbackend's
// $n-to-? shim) — the planner's Lower phase output is generated assuming a
// genuine Postgres-style jsonb target, since that is the dialect contract
// spec.md §4.4 describes and any real Postgres driver would expect.
var Postgres = Dialect{Name: "postgres", Placeholder: sqlast.PlaceholderDollar}
