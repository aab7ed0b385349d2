package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixdb/lix/internal/validate"
)

func mustSchema(t *testing.T, doc string) *validate.Schema {
	t.Helper()
	s, err := validate.ParseSchema([]byte(doc))
	require.NoError(t, err)
	return s
}

func TestValidateContent_RequiredPropertyMissing(t *testing.T) {
	s := mustSchema(t, `{"type":"object","required":["key","value"],"properties":{"key":{"type":"string"},"value":{"type":"string"}}}`)
	err := validate.ValidateContent(s, []byte(`{"key":"k0"}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/value")
}

func TestValidateContent_TypeMismatchNamesPath(t *testing.T) {
	s := mustSchema(t, `{"type":"object","properties":{"count":{"type":"integer"}}}`)
	err := validate.ValidateContent(s, []byte(`{"count":"not-a-number"}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/count")
}

func TestValidateContent_AdditionalPropertiesRejected(t *testing.T) {
	no := false
	s := &validate.Schema{
		Type:                 "object",
		Properties:           map[string]*validate.Schema{"key": {Type: "string"}},
		AdditionalProperties: &no,
	}
	err := validate.ValidateContent(s, []byte(`{"key":"k0","extra":"nope"}`))
	assert.Error(t, err)
}

func TestValidateContent_ValidDocumentPasses(t *testing.T) {
	s := mustSchema(t, `{"type":"object","required":["key","value"],"properties":{"key":{"type":"string"},"value":{"type":"string"}}}`)
	err := validate.ValidateContent(s, []byte(`{"key":"k0","value":"v0"}`))
	assert.NoError(t, err)
}

func TestJSONPointerGet_NestedAndArray(t *testing.T) {
	var doc any = map[string]any{
		"nested": map[string]any{"prop": "hit"},
		"list":   []any{"a", "b", "c"},
	}
	v, ok := validate.JSONPointerGet(doc, "/nested/prop")
	require.True(t, ok)
	assert.Equal(t, "hit", v)

	v, ok = validate.JSONPointerGet(doc, "/list/1")
	require.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = validate.JSONPointerGet(doc, "/missing")
	assert.False(t, ok)
}
