package plugin

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

type entry struct {
	plugin Plugin
	info   Info
}

// Registry holds plugins keyed by ID. It is safe for concurrent use; chain
// runs only ever see copies returned by [Registry.Snapshot].
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	loading map[string]struct{} // IDs whose OnLoad is running
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		loading: make(map[string]struct{}),
	}
}

// Register calls p.OnLoad and then adds p under p.ID() with the given chain
// position. The plugin is not visible to Get, Enable, or Snapshot until
// OnLoad has returned. A plugin whose OnLoad fails is still registered, in
// StateFailed, and the error is returned as a [*Error]. A successfully
// loaded plugin starts in StateLoaded; call Enable to include it in chain
// runs.
//
// An empty m.ID is filled from p.ID(); a different non-empty ID is rejected.
func (r *Registry) Register(ctx context.Context, m Manifest, p Plugin, ordinal int) error {
	id := p.ID()
	if id == "" {
		return fmt.Errorf("plugin: register: empty id")
	}
	if m.ID == "" {
		m.ID = id
	} else if m.ID != id {
		return fmt.Errorf("plugin: register: manifest id %q does not match plugin id %q", m.ID, id)
	}

	r.mu.Lock()
	_, exists := r.entries[id]
	_, pending := r.loading[id]
	if exists || pending {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDuplicate, id)
	}
	r.loading[id] = struct{}{}
	r.mu.Unlock()

	e := &entry{plugin: p, info: Info{Manifest: m, Ordinal: ordinal, State: StateLoaded}}
	var perr *Error
	if err := p.OnLoad(ctx); err != nil {
		perr = &Error{PluginID: id, Hook: "on_load", Err: err}
		e.info.State, e.info.Err = StateFailed, perr
	}

	r.mu.Lock()
	delete(r.loading, id)
	r.entries[id] = e
	r.mu.Unlock()

	if perr != nil {
		slog.Warn("plugin failed to load", "plugin_id", id, "err", perr.Err)
		return perr
	}
	slog.Info("plugin loaded", "plugin_id", id, "ordinal", ordinal, "permissions", m.Permissions)
	return nil
}

// Enable includes the plugin in subsequent chain runs. Failed plugins cannot
// be enabled.
func (r *Registry) Enable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if e.info.State == StateFailed {
		return fmt.Errorf("%w: %q: %v", ErrFailed, id, e.info.Err)
	}
	e.info.State = StateEnabled
	return nil
}

// Disable excludes the plugin from subsequent chain runs. In-flight runs are
// unaffected.
func (r *Registry) Disable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if e.info.State != StateFailed {
		e.info.State = StateDisabled
	}
	return nil
}

// MarkFailed moves the plugin to StateFailed with cause err.
func (r *Registry) MarkFailed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		e.info.State, e.info.Err = StateFailed, err
	}
}

// Unregister removes the plugin and calls its OnUnload. The plugin is removed
// even when OnUnload fails.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err := e.plugin.OnUnload(ctx); err != nil {
		return &Error{PluginID: id, Hook: "on_unload", Err: err}
	}
	return nil
}

// Close unregisters every plugin and returns the first unload error.
func (r *Registry) Close(ctx context.Context) error {
	var first error
	for _, info := range r.List() {
		if err := r.Unregister(ctx, info.Manifest.ID); err != nil {
			slog.Warn("plugin unload failed", "plugin_id", info.Manifest.ID, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Get returns the current info for id.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// List returns all registered plugins ordered by ordinal, then ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Info) int {
		return cmp.Or(cmp.Compare(a.Ordinal, b.Ordinal), cmp.Compare(a.Manifest.ID, b.Manifest.ID))
	})
	return out
}

// Snapshot returns the enabled plugins in chain order. The returned slice is
// a private copy.
func (r *Registry) Snapshot() []Plugin {
	r.mu.RLock()
	enabled := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.info.State == StateEnabled {
			cp := *e
			enabled = append(enabled, &cp)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(enabled, func(a, b *entry) int {
		return cmp.Or(cmp.Compare(a.info.Ordinal, b.info.Ordinal), cmp.Compare(a.info.Manifest.ID, b.info.Manifest.ID))
	})
	out := make([]Plugin, len(enabled))
	for i, e := range enabled {
		out[i] = e.plugin
	}
	return out
}
