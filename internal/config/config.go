// Package config provides the configuration schema, loader, hot-reload
// watcher and component registry for the voiceflow dictation client.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultServiceURL        = "ws://127.0.0.1:9876"
	DefaultDialTimeout       = 5 * time.Second
	DefaultReconnectInterval = 3 * time.Second
	DefaultFinalizeTimeout   = 10 * time.Second
	DefaultMaxBuffered       = 5 * time.Second
	DefaultFrameDuration     = 100 * time.Millisecond
	DefaultFrameQueue        = 64
	DefaultSink              = "stdout"
	DefaultAudioSource       = "wav"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Service    ServiceConfig    `yaml:"service"`
	Audio      AudioConfig      `yaml:"audio"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Plugins    PluginsConfig    `yaml:"plugins"`
	Sink       SinkConfig       `yaml:"sink"`
}

// ServerConfig holds the admin HTTP endpoint and logging settings.
type ServerConfig struct {
	// ListenAddr is the address of the /metrics and health endpoints
	// (e.g., ":9090"). Empty disables the admin server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// ServiceConfig describes the speech recognition service connection.
type ServiceConfig struct {
	// URL is the WebSocket endpoint (ws:// or wss://).
	URL string `yaml:"url"`

	// Headers are sent with every handshake, e.g. an Authorization header.
	Headers map[string]string `yaml:"headers"`

	DialTimeout       time.Duration `yaml:"dial_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	FinalizeTimeout   time.Duration `yaml:"finalize_timeout"`

	// MaxBuffered bounds the audio held back while the connection is slow.
	MaxBuffered time.Duration `yaml:"max_buffered"`
}

// AudioConfig selects and tunes the audio source.
type AudioConfig struct {
	// Source names a registered capture factory. Default: "wav".
	Source string `yaml:"source"`

	// Path is the input file for file-based sources.
	Path string `yaml:"path"`

	// FrameDuration is the length of each captured frame.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// Realtime paces file playback at the recording's own speed.
	Realtime bool `yaml:"realtime"`

	// FrameQueue is the capacity of the hand-off between the capture
	// callback and the normalizer. Frames beyond it are dropped.
	FrameQueue int `yaml:"frame_queue"`
}

// DictionaryConfig seeds the recognition vocabulary. Hot-reloadable.
type DictionaryConfig struct {
	Words []string `yaml:"words"`
}

// PluginsConfig lists the post-processing plugins.
type PluginsConfig struct {
	// DisableOnFailure moves a plugin that fails during a run to the failed
	// state so later runs skip it.
	DisableOnFailure bool `yaml:"disable_on_failure"`

	Entries []PluginEntry `yaml:"entries"`
}

// PluginEntry configures one plugin instance. The Name field is used to look
// up the constructor in the [Registry].
type PluginEntry struct {
	// Name selects the registered plugin (e.g., "punctuation", "llmpolish").
	Name string `yaml:"name"`

	// Enabled controls whether the chain runs the plugin. Hot-reloadable.
	Enabled bool `yaml:"enabled"`

	// Ordinal orders the chain; lower runs first.
	Ordinal int `yaml:"ordinal"`

	// Options holds plugin-specific settings, decoded with [PluginEntry.DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// SinkConfig selects where finished transcripts are delivered.
type SinkConfig struct {
	// Name is "stdout" or "clipboard". Default: "stdout".
	Name string `yaml:"name"`
}
