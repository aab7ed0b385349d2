package sqlast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/sqlast"
	"github.com/lixdb/lix/internal/types"
)

func parseInsert(t *testing.T, sql string) *sqlast.Statement {
	t.Helper()
	stmts, err := sqlast.ParseSQL(sql)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	return &stmts[0]
}

func TestResolveInsertRows_LiteralsAndPlaceholders(t *testing.T) {
	stmt := parseInsert(t, "insert into t (a, b, c) values (1, 'x', :v1)")
	rows, err := sqlast.ResolveInsertRows(stmt.AST)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 3)

	assert.False(t, rows[0][0].IsParam)
	assert.Equal(t, int64(1), rows[0][0].Literal.I)

	assert.False(t, rows[0][1].IsParam)
	s, ok := rows[0][1].Literal.AsText()
	require.True(t, ok)
	assert.Equal(t, "x", s)

	assert.True(t, rows[0][2].IsParam)
	assert.Equal(t, 1, rows[0][2].Param)
}

func TestResolveInsertRows_HexLiteralDecodesToBlob(t *testing.T) {
	stmt := parseInsert(t, "insert into t (a) values (x'68656c6c6f')")
	rows, err := sqlast.ResolveInsertRows(stmt.AST)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.KindBlob, rows[0][0].Literal.Kind)
	assert.Equal(t, "hello", string(rows[0][0].Literal.B))
}

func TestResolveInsertRows_OddLengthHexIsAnError(t *testing.T) {
	stmt := parseInsert(t, "insert into t (a) values (x'abc')")
	_, err := sqlast.ResolveInsertRows(stmt.AST)
	assert.Error(t, err)
}

func TestResolveInsertRows_RejectsFunctionCallCell(t *testing.T) {
	stmt := parseInsert(t, "insert into t (a) values (lower('X'))")
	_, err := sqlast.ResolveInsertRows(stmt.AST)
	assert.Error(t, err)
}

func TestResolveInsertRows_MultipleRows(t *testing.T) {
	stmt := parseInsert(t, "insert into t (a) values (1), (2), (3)")
	rows, err := sqlast.ResolveInsertRows(stmt.AST)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(2), rows[1][0].Literal.I)
}

func TestCollectTableNames_FindsJoinedAndSubqueryTables(t *testing.T) {
	stmt := parseInsert(t, "select * from a join b on a.id = b.a_id where a.id in (select id from c)")
	names, err := sqlast.CollectTableNames(stmt.AST)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, names)
}
