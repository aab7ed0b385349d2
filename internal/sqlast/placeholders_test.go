package sqlast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/sqlast"
)

func TestBindSQLWithState_QuestionMarksDenseRenumber(t *testing.T) {
	state := sqlast.NewPlaceholderState()
	out, err := sqlast.BindSQLWithState("select * from t where a = ? and b = ?", sqlast.PlaceholderDollar, state)
	require.NoError(t, err)
	assert.Equal(t, "select * from t where a = $1 and b = $2", out)
}

func TestBindSQLWithState_DollarRepeatedReferenceDedups(t *testing.T) {
	state := sqlast.NewPlaceholderState()
	out, err := sqlast.BindSQLWithState("select * from t where a = $1 or b = $1", sqlast.PlaceholderQuestion, state)
	require.NoError(t, err)
	assert.Equal(t, "select * from t where a = ? or b = ?", out)
}

func TestBindSQLWithState_IgnoresPlaceholderLookingTextInStringLiteral(t *testing.T) {
	state := sqlast.NewPlaceholderState()
	out, err := sqlast.BindSQLWithState("select '?' from t where a = ?", sqlast.PlaceholderQuestion, state)
	require.NoError(t, err)
	assert.Equal(t, "select '?' from t where a = ?", out)
}

func TestBindSQLWithState_SharedStateAcrossStatementsStaysDense(t *testing.T) {
	state := sqlast.NewPlaceholderState()
	first, err := sqlast.BindSQLWithState("select * from t where a = ?", sqlast.PlaceholderDollar, state)
	require.NoError(t, err)
	second, err := sqlast.BindSQLWithState("select * from t where b = ?", sqlast.PlaceholderDollar, state)
	require.NoError(t, err)
	assert.Equal(t, "select * from t where a = $1", first)
	assert.Equal(t, "select * from t where b = $2", second)
}

func TestBindSQLWithState_UnterminatedStringIsAnError(t *testing.T) {
	state := sqlast.NewPlaceholderState()
	_, err := sqlast.BindSQLWithState("select 'oops from t", sqlast.PlaceholderQuestion, state)
	assert.Error(t, err)
}
