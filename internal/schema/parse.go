package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// rawSchema mirrors the JSON Schema extensions listed in spec.md §6:
// x-lix-primary-key, x-lix-unique, x-lix-foreign-keys,
// x-lix-override-lixcols, plus "x-lix-immutable" and "x-lix-entity-view"
// flags used internally. Decoding is plain encoding/json — there is no
// JSON-schema library anywhere in the retrieval pack, and the shape here
// is a handful of known top-level keys, not a general validator (that
// lives in internal/validate and is justified there).
type rawSchema struct {
	Key             string              `json:"x-lix-key"`
	Version         string              `json:"x-lix-version"`
	PrimaryKey      []string            `json:"x-lix-primary-key"`
	Unique          [][]string          `json:"x-lix-unique"`
	ForeignKeys     []rawForeignKey     `json:"x-lix-foreign-keys"`
	OverrideLixcols map[string]string   `json:"x-lix-override-lixcols"`
	Immutable       bool              `json:"x-lix-immutable"`
	EntityView      bool              `json:"x-lix-entity-view"`
}

type rawForeignKey struct {
	Properties     []string `json:"properties"`
	ReferencesKey  string   `json:"references-key"`
	ReferencesProp []string `json:"references-properties"`
}

// ParseStoredSchema decodes a stored schema JSON document (the value of a
// lix_stored_schema entity) into the engine's StoredSchema shape.
func ParseStoredSchema(definition []byte) (types.StoredSchema, error) {
	var raw rawSchema
	if err := json.Unmarshal(definition, &raw); err != nil {
		return types.StoredSchema{}, lixerr.Wrap("parse stored schema json", err)
	}
	if raw.Key == "" || raw.Version == "" {
		return types.StoredSchema{}, fmt.Errorf("%w: stored schema missing x-lix-key/x-lix-version", lixerr.ErrSchemaInvalid)
	}
	fks := make([]types.ForeignKey, 0, len(raw.ForeignKeys))
	for _, fk := range raw.ForeignKeys {
		fks = append(fks, types.ForeignKey{
			Properties:     fk.Properties,
			ReferencesKey:  fk.ReferencesKey,
			ReferencesProp: fk.ReferencesProp,
		})
	}
	return types.StoredSchema{
		SchemaKey:       raw.Key,
		SchemaVersion:   raw.Version,
		Definition:      string(definition),
		PrimaryKey:      raw.PrimaryKey,
		Unique:          raw.Unique,
		ForeignKeys:     fks,
		Immutable:       raw.Immutable,
		OverrideLixcols: raw.OverrideLixcols,
		IsEntityView:    raw.EntityView,
	}, nil
}

// CompareVersions orders schema version strings numerically when both sides
// parse as integers, falling back to lexicographic comparison otherwise —
// spec.md §4.3's load_latest_schema tie-break rule. Returns <0, 0, >0 like
// strings.Compare.
func CompareVersions(a, b string) int {
	an, aok := parseUint(a)
	bn, bok := parseUint(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + uint64(r-'0')
	}
	return n, true
}
