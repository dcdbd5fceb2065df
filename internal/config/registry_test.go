package config_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voiceflow/internal/config"
	"github.com/MrWong99/voiceflow/internal/plugin"
	pluginmock "github.com/MrWong99/voiceflow/internal/plugin/mock"
	"github.com/MrWong99/voiceflow/internal/sink"
	sinkmock "github.com/MrWong99/voiceflow/internal/sink/mock"
	"github.com/MrWong99/voiceflow/pkg/audio"
	audiomock "github.com/MrWong99/voiceflow/pkg/audio/mock"
)

func TestRegistry_CreatePlugin(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterPlugin("upper", config.PluginFactory{
		Manifest: plugin.Manifest{ID: "upper", Name: "Upper"},
		New: func(e config.PluginEntry) (plugin.Plugin, error) {
			var opts struct {
				Suffix string `yaml:"suffix"`
			}
			if err := e.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			return &pluginmock.Plugin{
				PluginID:    "upper",
				TransformFn: func(s string) (string, error) { return s + opts.Suffix, nil },
			}, nil
		},
	})

	m, p, err := reg.CreatePlugin(config.PluginEntry{Name: "upper", Options: map[string]any{"suffix": "!"}})
	if err != nil {
		t.Fatalf("CreatePlugin: %v", err)
	}
	if m.Name != "Upper" {
		t.Errorf("manifest name = %q", m.Name)
	}
	if got, _ := p.OnTranscription(context.Background(), "hi"); got != "hi!" {
		t.Errorf("plugin output = %q, want hi!", got)
	}

	_, _, err = reg.CreatePlugin(config.PluginEntry{Name: "upper", Options: map[string]any{"sufix": "!"}})
	if err == nil {
		t.Error("expected options error to propagate")
	}

	if got := reg.PluginNames(); !slices.Equal(got, []string{"upper"}) {
		t.Errorf("PluginNames = %v", got)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, _, err := reg.CreatePlugin(config.PluginEntry{Name: "nope"}); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreatePlugin err = %v", err)
	}
	if _, err := reg.CreateSink(config.SinkConfig{Name: "nope"}); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateSink err = %v", err)
	}
	if _, err := reg.CreateCapture(config.AudioConfig{Source: "nope"}); !errors.Is(err, config.ErrNotRegistered) {
		t.Errorf("CreateCapture err = %v", err)
	}
}

func TestRegistry_SinkAndCapture(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	want := &sinkmock.Sink{}
	reg.RegisterSink("memory", func(config.SinkConfig) (sink.Sink, error) { return want, nil })
	capture := &audiomock.Capture{}
	reg.RegisterCapture("fake", func(config.AudioConfig) (audio.Capture, error) { return capture, nil })

	s, err := reg.CreateSink(config.SinkConfig{Name: "memory"})
	if err != nil || s != want {
		t.Errorf("CreateSink = (%v, %v)", s, err)
	}
	c, err := reg.CreateCapture(config.AudioConfig{Source: "fake"})
	if err != nil || c != capture {
		t.Errorf("CreateCapture = (%v, %v)", c, err)
	}
}
