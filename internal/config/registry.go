package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/sink"
	"github.com/MrWong99/voiceflow/pkg/audio"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: component not registered")

// PluginFactory builds a plugin from its config entry.
type PluginFactory struct {
	Manifest plugin.Manifest
	New      func(PluginEntry) (plugin.Plugin, error)
}

// Registry maps component names to their constructor functions. It is safe
// for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PluginFactory
	sinks   map[string]func(SinkConfig) (sink.Sink, error)
	capture map[string]func(AudioConfig) (audio.Capture, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]PluginFactory),
		sinks:   make(map[string]func(SinkConfig) (sink.Sink, error)),
		capture: make(map[string]func(AudioConfig) (audio.Capture, error)),
	}
}

// RegisterPlugin registers a plugin factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterPlugin(name string, f PluginFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = f
}

// RegisterSink registers a sink factory under name.
func (r *Registry) RegisterSink(name string, factory func(SinkConfig) (sink.Sink, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// RegisterCapture registers an audio source factory under name.
func (r *Registry) RegisterCapture(name string, factory func(AudioConfig) (audio.Capture, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// CreatePlugin instantiates the plugin registered under entry.Name and
// returns it with its manifest.
// Returns [ErrNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreatePlugin(entry PluginEntry) (plugin.Manifest, plugin.Plugin, error) {
	r.mu.RLock()
	f, ok := r.plugins[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return plugin.Manifest{}, nil, fmt.Errorf("%w: plugin/%q", ErrNotRegistered, entry.Name)
	}
	p, err := f.New(entry)
	if err != nil {
		return plugin.Manifest{}, nil, err
	}
	return f.Manifest, p, nil
}

// CreateSink instantiates the sink registered under cfg.Name.
func (r *Registry) CreateSink(cfg SinkConfig) (sink.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[cfg.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink/%q", ErrNotRegistered, cfg.Name)
	}
	return factory(cfg)
}

// CreateCapture instantiates the audio source registered under cfg.Source.
func (r *Registry) CreateCapture(cfg AudioConfig) (audio.Capture, error) {
	r.mu.RLock()
	factory, ok := r.capture[cfg.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrNotRegistered, cfg.Source)
	}
	return factory(cfg)
}

// PluginNames returns the registered plugin names, sorted.
func (r *Registry) PluginNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for n := range r.plugins {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
