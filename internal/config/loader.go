package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// KnownSinks lists the sink names the CLI ships with.
var KnownSinks = []string{"stdout", "clipboard"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	s := &cfg.Service
	if s.URL == "" {
		s.URL = DefaultServiceURL
	}
	if s.DialTimeout == 0 {
		s.DialTimeout = DefaultDialTimeout
	}
	if s.ReconnectInterval == 0 {
		s.ReconnectInterval = DefaultReconnectInterval
	}
	if s.FinalizeTimeout == 0 {
		s.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if s.MaxBuffered == 0 {
		s.MaxBuffered = DefaultMaxBuffered
	}
	a := &cfg.Audio
	if a.Source == "" {
		a.Source = DefaultAudioSource
	}
	if a.FrameDuration == 0 {
		a.FrameDuration = DefaultFrameDuration
	}
	if a.FrameQueue == 0 {
		a.FrameQueue = DefaultFrameQueue
	}
	if cfg.Sink.Name == "" {
		cfg.Sink.Name = DefaultSink
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Service
	if u, err := url.Parse(cfg.Service.URL); err != nil {
		errs = append(errs, fmt.Errorf("service.url %q: %w", cfg.Service.URL, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("service.url %q must use the ws or wss scheme", cfg.Service.URL))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"service.dial_timeout", cfg.Service.DialTimeout},
		{"service.reconnect_interval", cfg.Service.ReconnectInterval},
		{"service.finalize_timeout", cfg.Service.FinalizeTimeout},
		{"service.max_buffered", cfg.Service.MaxBuffered},
		{"audio.frame_duration", cfg.Audio.FrameDuration},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", d.name, d.value))
		}
	}

	// Audio
	if cfg.Audio.FrameQueue < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_queue %d must not be negative", cfg.Audio.FrameQueue))
	}

	// Dictionary
	for i, w := range cfg.Dictionary.Words {
		if strings.TrimSpace(w) == "" {
			slog.Warn("dictionary word is blank and will be ignored", "index", i)
		}
	}

	// Plugins
	seen := make(map[string]int, len(cfg.Plugins.Entries))
	for i, p := range cfg.Plugins.Entries {
		prefix := fmt.Sprintf("plugins.entries[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of plugins.entries[%d]", prefix, p.Name, prev))
		}
		seen[p.Name] = i
	}

	// Sink
	if !slices.Contains(KnownSinks, cfg.Sink.Name) {
		slog.Warn("unknown sink name, may be a typo or a custom sink",
			"name", cfg.Sink.Name,
			"known", KnownSinks,
		)
	}

	return errors.Join(errs...)
}

// DecodeOptions decodes the entry's Options into v, which should be a
// pointer to a struct with yaml tags. Fields of v that the options do not
// mention keep their current values. Unknown keys are rejected.
func (e PluginEntry) DecodeOptions(v any) error {
	if len(e.Options) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(e.Options)
	if err != nil {
		return fmt.Errorf("config: plugin %q options: %w", e.Name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("config: plugin %q options: %w", e.Name, err)
	}
	return nil
}
