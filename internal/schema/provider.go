package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// Provider resolves the latest stored schema for a schema key.
type Provider interface {
	LoadLatestSchema(ctx context.Context, key string) (types.StoredSchema, error)
}

// SqlStoredSchemaProvider reads schema definitions from the materialized
// lix_stored_schema table and caches them by (schema_key, schema_version).
type SqlStoredSchemaProvider struct {
	db    backend.Backend
	cache map[cacheKey]types.StoredSchema
}

type cacheKey struct {
	key     string
	version string
}

// NewSqlStoredSchemaProvider constructs a provider reading through db.
func NewSqlStoredSchemaProvider(db backend.Backend) *SqlStoredSchemaProvider {
	return &SqlStoredSchemaProvider{db: db, cache: map[cacheKey]types.StoredSchema{}}
}

// LoadLatestSchema returns the numerically (else lexicographically)
// greatest version of key stored in the materialized table.
func (p *SqlStoredSchemaProvider) LoadLatestSchema(ctx context.Context, key string) (types.StoredSchema, error) {
	rows, err := p.db.Execute(ctx,
		`SELECT schema_version, snapshot_content FROM lix_internal_state_materialized_v1_lix_stored_schema
		 WHERE entity_id LIKE ? AND is_tombstone = 0 AND snapshot_content IS NOT NULL`,
		[]types.Value{types.Text(key + "~%")})
	if err != nil {
		return types.StoredSchema{}, lixerr.Wrap("load stored schema rows", err)
	}
	if rows.Len() == 0 {
		return types.StoredSchema{}, fmt.Errorf("%w: schema %q is not stored", lixerr.ErrSchemaNotStored, key)
	}

	var best *types.StoredSchema
	var bestVersion string
	for _, row := range rows.Data {
		version, _ := row[0].AsText()
		raw, _ := row[1].AsText()

		var wrapper struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
			return types.StoredSchema{}, lixerr.Wrap("unwrap stored schema envelope", err)
		}
		parsed, err := ParseStoredSchema(wrapper.Value)
		if err != nil {
			return types.StoredSchema{}, err
		}
		if best == nil || CompareVersions(version, bestVersion) > 0 {
			v := parsed
			best = &v
			bestVersion = version
		}
	}
	p.cache[cacheKey{key, bestVersion}] = *best
	return *best, nil
}

// OverlaySchemaProvider layers pending (in-flight, not-yet-committed)
// schema definitions over a base provider so that validation running
// inside the same transaction that stores a new schema can see it
// immediately.
type OverlaySchemaProvider struct {
	base    Provider
	pending map[string]types.StoredSchema // keyed by schema key; overlay tracks only the latest pending version per key
}

// NewOverlaySchemaProvider wraps base with an empty pending overlay.
func NewOverlaySchemaProvider(base Provider) *OverlaySchemaProvider {
	return &OverlaySchemaProvider{base: base, pending: map[string]types.StoredSchema{}}
}

// RememberPending records s as visible to subsequent LoadLatestSchema calls
// for s.SchemaKey within this overlay's lifetime (a single transaction).
func (o *OverlaySchemaProvider) RememberPending(s types.StoredSchema) {
	existing, ok := o.pending[s.SchemaKey]
	if !ok || CompareVersions(s.SchemaVersion, existing.SchemaVersion) > 0 {
		o.pending[s.SchemaKey] = s
	}
}

// LoadLatestSchema returns whichever of the pending or stored schema for
// key has the higher version, per spec.md §4.3.
func (o *OverlaySchemaProvider) LoadLatestSchema(ctx context.Context, key string) (types.StoredSchema, error) {
	pending, hasPending := o.pending[key]
	stored, err := o.base.LoadLatestSchema(ctx, key)
	if err != nil {
		if hasPending && lixerr.Is(err, lixerr.ErrSchemaNotStored) {
			return pending, nil
		}
		return types.StoredSchema{}, err
	}
	if hasPending && CompareVersions(pending.SchemaVersion, stored.SchemaVersion) > 0 {
		return pending, nil
	}
	return stored, nil
}
