// Package plugin implements the text post-processing pipeline applied to
// final transcripts.
//
// Plugins implement a fixed capability interface and are held by a
// [Registry] keyed by their stable ID. A [Chain] applies the enabled plugins
// in ordinal order to one transcript at a time, always working on a snapshot
// copied from the registry when the run starts. The chain is fail-open: a
// plugin that returns an error or panics is logged and skipped, and its
// input is passed on unchanged.
package plugin

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no plugin is registered under an ID.
	ErrNotFound = errors.New("plugin: not found")

	// ErrDuplicate is returned by Register when the ID is already taken.
	ErrDuplicate = errors.New("plugin: already registered")

	// ErrFailed is returned by Enable for a plugin in the Failed state.
	ErrFailed = errors.New("plugin: plugin has failed")
)

// Plugin is a text transformer with lifecycle hooks.
//
// OnTranscription receives the output of the previous stage and returns the
// input for the next. Implementations must be safe for use by concurrent
// chain runs.
type Plugin interface {
	// ID returns the stable identifier the plugin is registered under.
	ID() string

	// OnLoad is called once by Registry.Register.
	OnLoad(ctx context.Context) error

	// OnTranscription transforms text.
	OnTranscription(ctx context.Context, text string) (string, error)

	// OnUnload is called once by Registry.Unregister or Registry.Close.
	OnUnload(ctx context.Context) error
}

// Manifest describes a plugin. Permissions are informational only; nothing
// restricts what a plugin does at runtime.
type Manifest struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author"`
	Permissions []string `yaml:"permissions"`
}

// State is the lifecycle state of a registered plugin.
type State int

const (
	// StateLoaded means OnLoad succeeded and the plugin is not yet enabled.
	StateLoaded State = iota

	// StateEnabled plugins take part in chain runs.
	StateEnabled

	// StateDisabled plugins are registered but skipped.
	StateDisabled

	// StateFailed plugins failed to load, or failed during a run with
	// disable-on-failure set. Info.Err holds the cause.
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Info is a point-in-time view of a registered plugin.
type Info struct {
	Manifest Manifest
	Ordinal  int
	State    State
	Err      error
}

// Error reports a failure inside a plugin hook.
type Error struct {
	PluginID string
	Hook     string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("plugin %s: %s: %v", e.PluginID, e.Hook, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Func adapts a transform function to [Plugin] with no-op lifecycle hooks.
type Func struct {
	Name      string
	Transform func(ctx context.Context, text string) (string, error)
}

var _ Plugin = Func{}

func (f Func) ID() string                     { return f.Name }
func (f Func) OnLoad(context.Context) error   { return nil }
func (f Func) OnUnload(context.Context) error { return nil }

func (f Func) OnTranscription(ctx context.Context, text string) (string, error) {
	return f.Transform(ctx, text)
}
