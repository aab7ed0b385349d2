package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/schema"
)

func TestParseStoredSchema_ExtractsLixExtensions(t *testing.T) {
	doc := []byte(`{
		"x-lix-key": "users",
		"x-lix-version": "2",
		"x-lix-primary-key": ["/id"],
		"x-lix-unique": [["/email"]],
		"x-lix-foreign-keys": [{"properties": ["/team_id"], "references-key": "teams", "references-properties": ["/id"]}],
		"x-lix-immutable": true
	}`)
	s, err := schema.ParseStoredSchema(doc)
	require.NoError(t, err)
	assert.Equal(t, "users", s.SchemaKey)
	assert.Equal(t, "2", s.SchemaVersion)
	assert.Equal(t, []string{"/id"}, s.PrimaryKey)
	assert.True(t, s.Immutable)
	require.Len(t, s.ForeignKeys, 1)
	assert.Equal(t, "teams", s.ForeignKeys[0].ReferencesKey)
}

func TestParseStoredSchema_RejectsMissingKey(t *testing.T) {
	_, err := schema.ParseStoredSchema([]byte(`{"x-lix-version": "1"}`))
	assert.Error(t, err)
}

func TestCompareVersions_NumericThenLexicographic(t *testing.T) {
	assert.Equal(t, 1, compareSign(schema.CompareVersions("10", "9")))
	assert.Equal(t, -1, compareSign(schema.CompareVersions("2", "10")))
	assert.Equal(t, -1, compareSign(schema.CompareVersions("a", "b")))
}

func compareSign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}
