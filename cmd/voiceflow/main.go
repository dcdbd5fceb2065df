// Command voiceflow is a streaming dictation client. It captures audio,
// streams it to a speech recognition service over WebSocket, runs the
// transcript through the post-processing plugins and delivers the result to
// stdout or the clipboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MrWong99/voiceflow/internal/app"
	"github.com/MrWong99/voiceflow/internal/config"
	"github.com/MrWong99/voiceflow/internal/dictionary"
	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/session"
	"github.com/MrWong99/voiceflow/internal/trigger"
	"github.com/MrWong99/voiceflow/pkg/provider/stt/voiceflow"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voiceflow.yaml", "path to the YAML configuration file")
	once := flag.Bool("once", false, "exit after the first transcript has been delivered")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voiceflow: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voiceflow: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(newLogger(os.Stderr, level))

	slog.Info("voiceflow starting",
		"version", version,
		"config", *configPath,
		"service_url", cfg.Service.URL,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voiceflow",
		ServiceVersion: version,
		ServiceURL:     cfg.Service.URL,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Components ────────────────────────────────────────────────────────────
	dict := dictionary.New(cfg.Dictionary.Words...)

	// eof is closed when a file source runs out of audio.
	eof := make(chan struct{})
	var eofOnce sync.Once
	onEOF := func() { eofOnce.Do(func() { close(eof) }) }

	reg := config.NewRegistry()
	registerBuiltins(reg, dict, onEOF)

	capture, err := reg.CreateCapture(cfg.Audio)
	if err != nil {
		slog.Error("failed to create audio source", "source", cfg.Audio.Source, "err", err)
		return 1
	}
	out, err := reg.CreateSink(cfg.Sink)
	if err != nil {
		slog.Error("failed to create sink", "sink", cfg.Sink.Name, "err", err)
		return 1
	}

	dialer, err := newDialer(cfg.Service)
	if err != nil {
		slog.Error("failed to create service dialer", "err", err)
		return 1
	}
	client := session.New(dialer,
		session.WithDictionary(dict),
		session.WithReconnectInterval(cfg.Service.ReconnectInterval),
		session.WithFinalizeTimeout(cfg.Service.FinalizeTimeout),
		session.WithMaxBuffered(cfg.Service.MaxBuffered),
		session.WithMetrics(metrics),
	)
	dict.SetNotifier(client)

	plugins := plugin.NewRegistry()
	loadPlugins(ctx, reg, plugins, cfg.Plugins.Entries)
	chain := plugin.NewChain(plugins,
		plugin.WithDisableOnFailure(cfg.Plugins.DisableOnFailure),
		plugin.WithChainMetrics(metrics),
	)

	var trig app.Trigger
	if *once && cfg.Audio.Source == "wav" {
		trig = trigger.NewAuto(eof)
	} else {
		trig = trigger.NewLines(os.Stdin)
		fmt.Fprintln(os.Stderr, "press Enter to start or stop recording, type q to quit")
	}

	printStartupSummary(os.Stderr, cfg, plugins.List())

	// ── Application ───────────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyConfig(config.Diff(old, new))
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}

	opts := []app.Option{
		app.WithFrameQueue(cfg.Audio.FrameQueue),
		app.WithOnce(*once),
		app.WithMetrics(metrics),
		app.WithLogLevel(level),
		app.WithRunner("config watcher", watcher.Run),
	}
	if cfg.Server.ListenAddr != "" {
		opts = append(opts, app.WithRunner("admin server",
			serveAdmin(cfg.Server.ListenAddr, adminHandler(metrics, client, plugins))))
	}

	application, err = app.New(app.Components{
		Client:     client,
		Capture:    capture,
		Registry:   plugins,
		Chain:      chain,
		Dictionary: dict,
		Sink:       out,
		Trigger:    trig,
	}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

func newDialer(cfg config.ServiceConfig) (*voiceflow.Dialer, error) {
	opts := []voiceflow.Option{voiceflow.WithDialTimeout(cfg.DialTimeout)}
	for k, v := range cfg.Headers {
		opts = append(opts, voiceflow.WithHeader(k, v))
	}
	return voiceflow.New(cfg.URL, opts...)
}

// loadPlugins instantiates, registers and enables the configured plugins. A
// plugin that cannot be built or loaded is logged and left out; the rest of
// the chain still runs.
func loadPlugins(ctx context.Context, reg *config.Registry, plugins *plugin.Registry, entries []config.PluginEntry) {
	for _, entry := range entries {
		m, p, err := reg.CreatePlugin(entry)
		if err != nil {
			slog.Warn("plugin not created", "plugin_id", entry.Name, "err", err)
			continue
		}
		if err := plugins.Register(ctx, m, p, entry.Ordinal); err != nil {
			continue
		}
		if !entry.Enabled {
			if err := plugins.Disable(entry.Name); err != nil {
				slog.Warn("plugin disable failed", "plugin_id", entry.Name, "err", err)
			}
			continue
		}
		if err := plugins.Enable(entry.Name); err != nil {
			slog.Warn("plugin enable failed", "plugin_id", entry.Name, "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config, plugins []plugin.Info) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voiceflow, startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Service", cfg.Service.URL)
	printRow(w, "Audio", cfg.Audio.Source)
	printRow(w, "Sink", cfg.Sink.Name)
	printRow(w, "Dictionary", fmt.Sprintf("%d words", len(cfg.Dictionary.Words)))
	for _, info := range plugins {
		printRow(w, "Plugin", info.Manifest.ID+" ("+info.State.String()+")")
	}
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
