package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voiceflow/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
service:
  url: wss://stt.example.com/v1/stream
  headers:
    Authorization: Bearer abc
  dial_timeout: 2s
  reconnect_interval: 1s
  finalize_timeout: 8s
  max_buffered: 3s
audio:
  source: wav
  path: /tmp/input.wav
  frame_duration: 50ms
  realtime: true
  frame_queue: 16
dictionary:
  words: [Kubernetes, Postgres]
plugins:
  disable_on_failure: true
  entries:
    - name: filler
      enabled: true
      ordinal: 10
    - name: punctuation
      enabled: true
      ordinal: 20
      options:
        add_periods: false
sink:
  name: clipboard
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Service.URL != "wss://stt.example.com/v1/stream" {
		t.Errorf("service.url = %q", cfg.Service.URL)
	}
	if cfg.Service.Headers["Authorization"] != "Bearer abc" {
		t.Errorf("service.headers = %v", cfg.Service.Headers)
	}
	if cfg.Service.DialTimeout != 2*time.Second || cfg.Service.FinalizeTimeout != 8*time.Second {
		t.Errorf("service durations = %+v", cfg.Service)
	}
	if cfg.Audio.FrameDuration != 50*time.Millisecond || !cfg.Audio.Realtime || cfg.Audio.FrameQueue != 16 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if len(cfg.Dictionary.Words) != 2 {
		t.Errorf("dictionary.words = %v", cfg.Dictionary.Words)
	}
	if !cfg.Plugins.DisableOnFailure || len(cfg.Plugins.Entries) != 2 {
		t.Fatalf("plugins = %+v", cfg.Plugins)
	}
	if cfg.Plugins.Entries[1].Options["add_periods"] != false {
		t.Errorf("punctuation options = %v", cfg.Plugins.Entries[1].Options)
	}
	if cfg.Sink.Name != "clipboard" {
		t.Errorf("sink.name = %q", cfg.Sink.Name)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Service.URL != config.DefaultServiceURL {
		t.Errorf("service.url = %q, want %q", cfg.Service.URL, config.DefaultServiceURL)
	}
	if cfg.Service.ReconnectInterval != config.DefaultReconnectInterval {
		t.Errorf("reconnect_interval = %v", cfg.Service.ReconnectInterval)
	}
	if cfg.Service.FinalizeTimeout != config.DefaultFinalizeTimeout {
		t.Errorf("finalize_timeout = %v", cfg.Service.FinalizeTimeout)
	}
	if cfg.Audio.FrameQueue != config.DefaultFrameQueue || cfg.Audio.Source != "wav" {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Sink.Name != "stdout" {
		t.Errorf("sink.name = %q, want stdout", cfg.Sink.Name)
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantSub []string
	}{
		{
			name:    "unknown key",
			yaml:    "service:\n  uri: ws://x\n",
			wantSub: []string{"uri"},
		},
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantSub: []string{"log_level"},
		},
		{
			name:    "http scheme",
			yaml:    "service:\n  url: http://localhost:9876\n",
			wantSub: []string{"ws or wss"},
		},
		{
			name:    "negative durations",
			yaml:    "service:\n  finalize_timeout: -1s\naudio:\n  frame_duration: -5ms\n",
			wantSub: []string{"service.finalize_timeout", "audio.frame_duration"},
		},
		{
			name:    "duplicate plugin",
			yaml:    "plugins:\n  entries:\n    - name: filler\n    - name: filler\n",
			wantSub: []string{"duplicate"},
		},
		{
			name:    "unnamed plugin",
			yaml:    "plugins:\n  entries:\n    - enabled: true\n",
			wantSub: []string{"name is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, sub := range tt.wantSub {
				if !strings.Contains(err.Error(), sub) {
					t.Errorf("error %q should mention %q", err, sub)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "voiceflow.yaml")
	writeFile(t, path, fullYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sink.Name != "clipboard" {
		t.Errorf("sink.name = %q", cfg.Sink.Name)
	}

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v, want os.ErrNotExist", err)
	}
}

func TestPluginEntry_DecodeOptions(t *testing.T) {
	t.Parallel()

	type opts struct {
		AddPeriods bool          `yaml:"add_periods"`
		Capitalize bool          `yaml:"capitalize"`
		Timeout    time.Duration `yaml:"timeout"`
	}

	t.Run("overlays defaults", func(t *testing.T) {
		t.Parallel()
		e := config.PluginEntry{Name: "p", Options: map[string]any{"add_periods": false, "timeout": "3s"}}
		got := opts{AddPeriods: true, Capitalize: true}
		if err := e.DecodeOptions(&got); err != nil {
			t.Fatalf("DecodeOptions: %v", err)
		}
		want := opts{AddPeriods: false, Capitalize: true, Timeout: 3 * time.Second}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("no options", func(t *testing.T) {
		t.Parallel()
		got := opts{Capitalize: true}
		if err := (config.PluginEntry{Name: "p"}).DecodeOptions(&got); err != nil {
			t.Fatalf("DecodeOptions: %v", err)
		}
		if !got.Capitalize {
			t.Error("defaults were overwritten")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		e := config.PluginEntry{Name: "p", Options: map[string]any{"add_period": true}}
		var got opts
		err := e.DecodeOptions(&got)
		if err == nil || !strings.Contains(err.Error(), `plugin "p"`) {
			t.Errorf("err = %v, want error naming the plugin", err)
		}
	})
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error(`"trace" should be invalid`)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.in.Slog(); got != tt.want {
			t.Errorf("LogLevel(%q).Slog() = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Service.ReconnectInterval != 3*time.Second {
		t.Errorf("reconnect_interval = %v, want 3s", cfg.Service.ReconnectInterval)
	}
	if n := len(cfg.Plugins.Entries); n != 4 {
		t.Errorf("plugin entries = %d, want 4", n)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}
