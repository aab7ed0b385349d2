package planner_test

import (
	"strings"
	"testing"

	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/planner"
)

func schemas() planner.KnownSchemas {
	return planner.KnownSchemas{Keys: []string{"lix_version_descriptor", "lix_version_pointer", "todo_item"}}
}

func TestAnalyze_AgreesOnSimpleSelect(t *testing.T) {
	stmt, err := sqlparser.Parse("select id from lix_state where schema_key = 'todo_item'")
	require.NoError(t, err)
	require.NoError(t, planner.Analyze(stmt))
}

func TestCanonicalize_ExpandsActiveVersionView(t *testing.T) {
	stmt, err := sqlparser.Parse("select version_id from lix_active_version")
	require.NoError(t, err)

	passes, err := planner.Canonicalize(stmt, schemas(), planner.SQLite)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, passes, 1)

	out := sqlparser.String(stmt)
	assert.Contains(t, out, "lix_internal_state_untracked")
	assert.NotContains(t, strings.ToLower(out), "from lix_active_version")
}

func TestCanonicalize_ExpandsStateByVersionUnion(t *testing.T) {
	stmt, err := sqlparser.Parse("select entity_id from lix_state_by_version where version_id = 'v1'")
	require.NoError(t, err)

	_, err = planner.Canonicalize(stmt, schemas(), planner.SQLite)
	require.NoError(t, err)

	out := sqlparser.String(stmt)
	assert.Contains(t, out, "lix_internal_state_materialized_v1_todo_item")
	assert.Contains(t, out, "union all")
}

func TestPlan_FullPipelineLowersJSONExtractAndLixState(t *testing.T) {
	result, err := planner.PlanText(
		"select lix_json_extract(snapshot_content, '/title') from lix_state where schema_key = 'todo_item'",
		schemas(), planner.SQLite)
	require.NoError(t, err)

	assert.Contains(t, result.SQL, "json_extract(snapshot_content, '$.title')")
	assert.Contains(t, result.SQL, "version_chain")
	assert.NotContains(t, result.SQL, "lix_json_extract")
}

func TestPlan_PostgresDialectLowersJSONExtract(t *testing.T) {
	result, err := planner.PlanText(
		"select lix_json_extract(snapshot_content, '/title') from lix_active_version",
		schemas(), planner.Postgres)
	require.NoError(t, err)
	assert.Contains(t, result.SQL, "::jsonb->>'title'")
}

func TestOptimize_DropsSelfReferentialAlias(t *testing.T) {
	stmt, err := sqlparser.Parse("select entity_id as entity_id, schema_key as sk from t")
	require.NoError(t, err)

	_, err = planner.Optimize(stmt)
	require.NoError(t, err)

	out := sqlparser.String(stmt)
	assert.NotContains(t, out, "entity_id as entity_id")
	assert.Contains(t, out, "sk")
}
