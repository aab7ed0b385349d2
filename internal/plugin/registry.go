package plugin

import (
	"context"
	"sync"

	"github.com/lixdb/lix/internal/backend"
	"github.com/lixdb/lix/internal/lixerr"
	"github.com/lixdb/lix/internal/types"
)

// Manifest is one row of the installed-plugin table: a plugin's key, its
// declared manifest document, and (when the caller supplies one) the wasm
// component bytes spec.md §6 reserves a column for. No wasm runtime exists
// in this implementation, so wasm_bytes is stored and returned verbatim but
// never executed — invocation always goes through a natively registered
// Plugin keyed by the same plugin key (see Register/Get below).
type Manifest struct {
	PluginKey string
	Manifest  string
	WasmBytes []byte
}

// Registry is the engine-instance-owned plugin cache from spec.md §4.9/§6:
// "Installed-plugin cache ... guarded by a read-write lock. Readers clone
// the cached vector; writers hold the write lock only to replace it." It
// owns both the persisted manifest cache (install_plugin/ListInstalled) and
// the in-process native function table plugin calls actually dispatch
// through (Register/Get/DetectChanges/ApplyChanges).
type Registry struct {
	db backend.Backend

	mu        sync.RWMutex
	manifests []Manifest // nil until first load; loaded lazily and invalidated on install

	fnMu    sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry constructs a Registry backed by db's lix_internal_plugin
// table.
func NewRegistry(db backend.Backend) *Registry {
	return &Registry{db: db, plugins: map[string]Plugin{}}
}

// Register adds (or replaces) the native implementation for pluginKey. This
// is the registration surface built-in plugins like jsonplugin use; it does
// not touch the persisted manifest table.
func (r *Registry) Register(p Plugin) {
	r.fnMu.Lock()
	defer r.fnMu.Unlock()
	r.plugins[p.Key] = p
}

// Get returns the natively registered Plugin for key, if any.
func (r *Registry) Get(key string) (Plugin, bool) {
	r.fnMu.RLock()
	defer r.fnMu.RUnlock()
	p, ok := r.plugins[key]
	return p, ok
}

// DetectChanges dispatches to the registered plugin's detect_changes export.
func (r *Registry) DetectChanges(key string, before *File, after File) ([]EntityChange, error) {
	p, ok := r.Get(key)
	if !ok {
		return nil, Internal("no plugin registered for key %q", key)
	}
	return p.Detect(before, after)
}

// ApplyChanges dispatches to the registered plugin's apply_changes export.
func (r *Registry) ApplyChanges(key string, seed File, changes []EntityChange) ([]byte, error) {
	p, ok := r.Get(key)
	if !ok {
		return nil, Internal("no plugin registered for key %q", key)
	}
	return p.Apply(seed, changes)
}

// InstallPlugin implements spec.md §6's install_plugin(manifest, wasm_bytes)
// — stores the plugin manifest in lix_internal_plugin and invalidates the
// cached manifest list so the next ListInstalled reload sees it.
func (r *Registry) InstallPlugin(ctx context.Context, pluginKey, manifest string, wasmBytes []byte) error {
	var wasm types.Value
	if wasmBytes == nil {
		wasm = types.Null()
	} else {
		wasm = types.Blob(wasmBytes)
	}
	_, err := r.db.Execute(ctx,
		`INSERT INTO lix_internal_plugin (plugin_key, manifest, wasm_bytes) VALUES (?, ?, ?)
		 ON CONFLICT (plugin_key) DO UPDATE SET manifest = excluded.manifest, wasm_bytes = excluded.wasm_bytes`,
		[]types.Value{types.Text(pluginKey), types.Text(manifest), wasm})
	if err != nil {
		return lixerr.Wrap("install plugin", err)
	}

	r.mu.Lock()
	r.manifests = nil
	r.mu.Unlock()
	return nil
}

// ListInstalled returns a clone of the cached manifest list, loading it from
// the backend on first use or after InstallPlugin invalidates it.
func (r *Registry) ListInstalled(ctx context.Context) ([]Manifest, error) {
	r.mu.RLock()
	if r.manifests != nil {
		cloned := append([]Manifest(nil), r.manifests...)
		r.mu.RUnlock()
		return cloned, nil
	}
	r.mu.RUnlock()

	rows, err := r.db.Execute(ctx, `SELECT plugin_key, manifest, wasm_bytes FROM lix_internal_plugin`, nil)
	if err != nil {
		return nil, lixerr.Wrap("list installed plugins", err)
	}
	loaded := make([]Manifest, 0, rows.Len())
	for _, row := range rows.Data {
		key, _ := row[0].AsText()
		manifest, _ := row[1].AsText()
		loaded = append(loaded, Manifest{PluginKey: key, Manifest: manifest, WasmBytes: row[2].B})
	}

	r.mu.Lock()
	r.manifests = loaded
	cloned := append([]Manifest(nil), loaded...)
	r.mu.Unlock()
	return cloned, nil
}
