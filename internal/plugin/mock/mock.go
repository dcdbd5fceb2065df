// Package mock provides a test double for the plugin.Plugin interface.
//
// Plugin records every hook invocation. Set TransformFn to control the
// transcription result; when nil the input is returned unchanged.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceflow/internal/plugin"
)

// Plugin is a mock implementation of plugin.Plugin.
type Plugin struct {
	mu sync.Mutex

	// PluginID is returned by ID.
	PluginID string

	// TransformFn, if non-nil, computes the OnTranscription result.
	TransformFn func(text string) (string, error)

	// LoadErr, if non-nil, is returned by OnLoad.
	LoadErr error

	// LoadFn, if non-nil, runs inside OnLoad and its result replaces LoadErr.
	LoadFn func(ctx context.Context) error

	// UnloadErr, if non-nil, is returned by OnUnload.
	UnloadErr error

	// --- Call records ---

	// Inputs records the text passed to every OnTranscription call.
	Inputs []string

	// LoadCalls and UnloadCalls count lifecycle invocations.
	LoadCalls   int
	UnloadCalls int
}

// ID returns PluginID.
func (p *Plugin) ID() string { return p.PluginID }

// OnLoad records the call and returns LoadErr, or the result of LoadFn.
func (p *Plugin) OnLoad(ctx context.Context) error {
	p.mu.Lock()
	p.LoadCalls++
	fn, err := p.LoadFn, p.LoadErr
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return err
}

// OnTranscription records the input and applies TransformFn.
func (p *Plugin) OnTranscription(_ context.Context, text string) (string, error) {
	p.mu.Lock()
	p.Inputs = append(p.Inputs, text)
	fn := p.TransformFn
	p.mu.Unlock()
	if fn == nil {
		return text, nil
	}
	return fn(text)
}

// OnUnload records the call and returns UnloadErr.
func (p *Plugin) OnUnload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.UnloadCalls++
	return p.UnloadErr
}

// Calls returns a copy of Inputs. Thread-safe.
func (p *Plugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Inputs...)
}

// Ensure Plugin implements plugin.Plugin at compile time.
var _ plugin.Plugin = (*Plugin)(nil)
