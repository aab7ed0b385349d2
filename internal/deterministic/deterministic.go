// Package deterministic implements the lix_uuid_v7()/lix_timestamp() runtime
// function overrides used by deterministic-mode tests and benchmarks,
// ported behavior-for-behavior from the original engine's
// deterministic_mode module.
package deterministic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

const sequenceEntityID = "lix_deterministic_sequence_number"

// Settings mirrors the lix_deterministic_mode key-value row's sub-flags.
type Settings struct {
	Enabled          bool
	UUIDv7           bool
	Timestamp        bool
	TimestampShuffle bool
}

// Provider is the runtime function provider: it owns the monotonically
// increasing per-process counter and decides, per call, whether to hand out
// a deterministic value or fall back to the real-mode generator.
//
// Per spec.md §5, this is owned by a single engine instance and never a
// process-level global; callers share one Provider per Engine.
type Provider struct {
	db      backend.Backend
	counter uint64
	loaded  bool
}

// NewProvider constructs a provider bound to db. The counter is lazily
// loaded from the untracked table on first use.
func NewProvider(db backend.Backend) *Provider {
	return &Provider{db: db}
}

// UUIDv7 returns a real UUIDv7 in real mode, or the deterministic sentinel
// form "01920000-0000-7000-8000-{counter:012x}" when settings.Enabled &&
// settings.UUIDv7.
func (p *Provider) UUIDv7(ctx context.Context, settings Settings) (string, error) {
	if !settings.Enabled || !settings.UUIDv7 {
		id, err := uuid.NewV7()
		if err != nil {
			return "", lixerr.Wrap("generate uuidv7", err)
		}
		return id.String(), nil
	}
	n, err := p.next(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("01920000-0000-7000-8000-%012x", n), nil
}

// Timestamp returns the real current time in real mode, or the
// deterministic millisecond-counter timestamp (optionally shuffled within a
// 1000ms window) when enabled.
func (p *Provider) Timestamp(ctx context.Context, settings Settings) (string, error) {
	if !settings.Enabled || !settings.Timestamp {
		return time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), nil
	}
	n, err := p.next(ctx)
	if err != nil {
		return "", err
	}
	millis := n
	if settings.TimestampShuffle {
		within := n % 1000
		shuffled := (within*733 + 271) % 1000
		millis = (n/1000)*1000 + shuffled
	}
	t := time.UnixMilli(int64(millis)).UTC()
	return t.Format("2006-01-02T15:04:05.000Z"), nil
}

// next returns the next counter value and advances the in-memory counter.
// Persistence to the untracked table happens via Flush, called once per
// execute() per spec.md §4.10.
func (p *Provider) next(ctx context.Context) (uint64, error) {
	if !p.loaded {
		if err := p.load(ctx); err != nil {
			return 0, err
		}
	}
	n := p.counter
	p.counter++
	return n, nil
}

// load reads the persisted highest_seen value from the untracked table. If
// the untracked table does not exist yet (pre-init), it returns 0 and marks
// the provider loaded without erroring — spec.md §4.10's graceful
// pre-init behavior.
func (p *Provider) load(ctx context.Context) error {
	rows, err := p.db.Execute(ctx,
		`SELECT snapshot_content FROM lix_internal_state_untracked WHERE entity_id = ? AND schema_key = 'lix_key_value'`,
		[]types.Value{types.Text(sequenceEntityID)})
	if err != nil {
		// Table doesn't exist yet, or any other read failure: start at 0.
		p.loaded = true
		p.counter = 0
		return nil
	}
	if rows.Len() == 0 {
		p.loaded = true
		p.counter = 0
		return nil
	}
	content, _ := rows.Data[0][0].AsText()
	var highest uint64
	if _, scanErr := fmt.Sscanf(content, `{"highest_seen":%d}`, &highest); scanErr == nil {
		p.counter = highest + 1
	}
	p.loaded = true
	return nil
}

// Flush persists the highest counter value handed out so far into the
// untracked table, called after each execute() completes.
func (p *Provider) Flush(ctx context.Context) error {
	if !p.loaded || p.counter == 0 {
		return nil
	}
	// Before init the untracked table does not exist; persistence is skipped.
	if _, err := p.db.Execute(ctx, `SELECT 1 FROM lix_internal_state_untracked LIMIT 0`, nil); err != nil {
		return nil
	}
	highest := p.counter - 1
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	content := fmt.Sprintf(`{"highest_seen":%d}`, highest)
	_, err := p.db.Execute(ctx,
		`INSERT INTO lix_internal_state_untracked
			(entity_id, schema_key, file_id, version_id, schema_version, plugin_key, snapshot_content, is_tombstone, writer_key, created_at, updated_at)
		 VALUES (?, 'lix_key_value', 'lix', 'global', '1', 'lix', ?, 0, NULL, ?, ?)
		 ON CONFLICT (entity_id, schema_key, file_id, version_id) DO UPDATE SET
			snapshot_content = excluded.snapshot_content,
			updated_at = excluded.updated_at`,
		[]types.Value{types.Text(sequenceEntityID), types.Text(content), types.Text(now), types.Text(now)})
	return lixerr.Wrap("persist deterministic sequence", err)
}
