package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/MrWong99/voiceflow/internal/config"
	"github.com/MrWong99/voiceflow/internal/dictionary"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/plugin/filler"
	"github.com/MrWong99/voiceflow/internal/plugin/hints"
	"github.com/MrWong99/voiceflow/internal/plugin/llmpolish"
	"github.com/MrWong99/voiceflow/internal/plugin/punctuation"
	"github.com/MrWong99/voiceflow/internal/sink"
	"github.com/MrWong99/voiceflow/pkg/audio"
	"github.com/MrWong99/voiceflow/pkg/audio/wavfile"
)

// registerBuiltins wires the plugins, sinks and audio sources that ship with
// voiceflow into reg. onEOF is called when a file source is exhausted.
func registerBuiltins(reg *config.Registry, dict *dictionary.Context, onEOF func()) {
	// ── Plugins ───────────────────────────────────────────────────────────────

	reg.RegisterPlugin(punctuation.ID, config.PluginFactory{
		Manifest: punctuation.Manifest(),
		New: func(entry config.PluginEntry) (plugin.Plugin, error) {
			opts := punctuation.DefaultOptions()
			if err := entry.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			return punctuation.New(opts), nil
		},
	})

	reg.RegisterPlugin(filler.ID, config.PluginFactory{
		Manifest: filler.Manifest(),
		New: func(entry config.PluginEntry) (plugin.Plugin, error) {
			opts := filler.DefaultOptions()
			if err := entry.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			return filler.New(opts), nil
		},
	})

	// hints reads the live dictionary, so hot-reloaded words apply at once.
	reg.RegisterPlugin(hints.ID, config.PluginFactory{
		Manifest: hints.Manifest(),
		New: func(entry config.PluginEntry) (plugin.Plugin, error) {
			var opts hints.Options
			if err := entry.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			return hints.New(dict, opts), nil
		},
	})

	reg.RegisterPlugin(llmpolish.ID, config.PluginFactory{
		Manifest: llmpolish.Manifest(),
		New: func(entry config.PluginEntry) (plugin.Plugin, error) {
			opts := llmpolish.Options{APIKeyEnv: "OPENAI_API_KEY"}
			if err := entry.DecodeOptions(&opts); err != nil {
				return nil, err
			}
			p, err := llmpolish.New(opts)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
	})

	// ── Sinks ─────────────────────────────────────────────────────────────────

	reg.RegisterSink("stdout", func(config.SinkConfig) (sink.Sink, error) {
		return sink.NewWriter("stdout", os.Stdout), nil
	})
	reg.RegisterSink("clipboard", func(config.SinkConfig) (sink.Sink, error) {
		c, err := sink.NewClipboard()
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	// ── Audio sources ─────────────────────────────────────────────────────────

	reg.RegisterCapture("wav", func(cfg config.AudioConfig) (audio.Capture, error) {
		if cfg.Path == "" {
			return nil, errors.New("audio.path is required for the wav source")
		}
		return wavfile.New(cfg.Path,
			wavfile.WithFrameDuration(cfg.FrameDuration),
			wavfile.WithRealtime(cfg.Realtime),
			wavfile.WithOnEOF(onEOF),
		), nil
	})

	slog.Debug("registered builtins", "plugins", reg.PluginNames())
}
