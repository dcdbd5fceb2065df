// Package app wires capture, the session client, the plugin chain and the
// output sink into a running dictation application.
//
// The App owns the lifecycle: New checks the components, Run connects to the
// service and processes trigger requests until the context ends, and
// Shutdown tears everything down in order.
//
// Audio flows from the capture callback through a bounded channel to a
// single normalizer goroutine and on to [session.Client.Feed]. The callback
// never blocks; when the channel is full the frame is dropped and counted.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voiceflow/internal/config"
	"github.com/MrWong99/voiceflow/internal/dictionary"
	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/internal/plugin"
	"github.com/MrWong99/voiceflow/internal/session"
	"github.com/MrWong99/voiceflow/internal/sink"
	"github.com/MrWong99/voiceflow/pkg/audio"
)

// defaultFrameQueue is the capture hand-off capacity when none is set.
const defaultFrameQueue = 64

// Handler receives start and stop requests from a [Trigger].
type Handler interface {
	OnStartRequested(ctx context.Context)
	OnStopRequested(ctx context.Context)
}

// Trigger decides when recording starts and stops, e.g. a hotkey or a
// terminal prompt. Run blocks until ctx is done or the trigger is exhausted;
// either way the App shuts down when it returns.
type Trigger interface {
	Run(ctx context.Context, h Handler) error
}

// Components holds the collaborators the App drives. Client, Capture, Chain
// and Sink are required. Populated by main.go via the config registry.
type Components struct {
	Client     *session.Client
	Capture    audio.Capture
	Registry   *plugin.Registry
	Chain      *plugin.Chain
	Dictionary *dictionary.Context
	Sink       sink.Sink
	Trigger    Trigger
}

// Option is a functional option for New.
type Option func(*App)

// WithFrameQueue sets the capture hand-off capacity. Default: 64 frames.
func WithFrameQueue(n int) Option {
	return func(a *App) {
		if n > 0 {
			a.frameQueue = n
		}
	}
}

// WithOnce makes Run return after the first transcript is delivered.
func WithOnce(once bool) Option {
	return func(a *App) { a.once = once }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithErrorHandler receives the errors the user must see: capture failures
// and connection losses during recording. Default: logged at error level.
func WithErrorHandler(fn func(error)) Option {
	return func(a *App) { a.onError = fn }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithRunner adds a background task, such as a config watcher or the admin
// HTTP server, to the group started by Run. A runner returning a non-nil
// error stops the App.
func WithRunner(name string, fn func(ctx context.Context) error) Option {
	return func(a *App) { a.runners = append(a.runners, runner{name: name, run: fn}) }
}

type runner struct {
	name string
	run  func(ctx context.Context) error
}

type capturedFrame struct {
	gen uint64
	raw audio.RawFrame
}

// App owns all component lifetimes and orchestrates the dictation pipeline.
type App struct {
	Components

	normalizer audio.Normalizer
	frameQueue int
	once       bool
	metrics    *observe.Metrics
	onError    func(error)
	level      *slog.LevelVar
	runners    []runner

	frames chan capturedFrame
	gen    atomic.Uint64

	// feedMu serializes feeding with the drain in OnStopRequested, so every
	// captured frame reaches the session before Stop.
	feedMu sync.Mutex

	// runCancel ends Run; once mode calls it after the first delivery.
	runCtx    context.Context
	runCancel context.CancelFunc

	mu        sync.Mutex
	recording bool
	current   *session.Session

	deliveries sync.WaitGroup
	stopOnce   sync.Once
}

// New creates an App from c.
func New(c Components, opts ...Option) (*App, error) {
	var missing []error
	if c.Client == nil {
		missing = append(missing, errors.New("client"))
	}
	if c.Capture == nil {
		missing = append(missing, errors.New("capture"))
	}
	if c.Chain == nil {
		missing = append(missing, errors.New("chain"))
	}
	if c.Sink == nil {
		missing = append(missing, errors.New("sink"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("app: missing components: %w", err)
	}

	a := &App{Components: c, frameQueue: defaultFrameQueue}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.onError == nil {
		a.onError = func(err error) { slog.Error("dictation error", "err", err) }
	}
	a.frames = make(chan capturedFrame, a.frameQueue)
	a.runCtx, a.runCancel = context.WithCancel(context.Background())
	return a, nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run connects to the service and serves trigger requests until ctx is
// cancelled, the trigger returns, a runner fails, or (with [WithOnce]) the
// first transcript has been delivered. A failed initial dial is not fatal;
// the client keeps reconnecting in the background.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.runCtx, a.runCancel = ctx, cancel
	a.mu.Unlock()

	if err := a.Client.Connect(ctx); err != nil {
		var cerr *session.ConnectionError
		if !errors.As(err, &cerr) {
			return fmt.Errorf("app: connect: %w", err)
		}
		slog.Warn("speech service unavailable, retrying in background", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.normalizeLoop(gctx)
		return nil
	})
	if a.Trigger != nil {
		g.Go(func() error {
			defer cancel()
			if err := a.Trigger.Run(gctx, a); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: trigger: %w", err)
			}
			return nil
		})
	}
	for _, r := range a.runners {
		g.Go(func() error {
			if err := r.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("app: %s: %w", r.name, err)
			}
			return nil
		})
	}

	slog.Info("app running", "frame_queue", a.frameQueue, "once", a.once)
	return g.Wait()
}

// OnStartRequested starts a session and the capture device. It is a no-op
// while already recording. When the client is not ready (e.g. still
// reconnecting) the request is logged and dropped.
func (a *App) OnStartRequested(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recording {
		slog.Debug("start requested while recording, ignoring")
		return
	}

	sess, err := a.Client.Start()
	if err != nil {
		slog.Warn("cannot start recording", "state", a.Client.State(), "err", err)
		return
	}

	gen := a.gen.Add(1)
	if err := a.Capture.Start(func(f audio.RawFrame) { a.onFrame(gen, f) }); err != nil {
		var cerr *audio.CaptureError
		if !errors.As(err, &cerr) {
			err = &audio.CaptureError{Device: "unknown", Err: err}
		}
		a.onError(err)
		if _, serr := a.Client.Stop(); serr != nil {
			slog.Warn("stop after capture failure", "session_id", sess.ID, "err", serr)
		}
		return
	}

	a.recording = true
	a.current = sess
	go a.watchRecording(sess)
	slog.Info("recording", "session_id", sess.ID)
}

// OnStopRequested stops capture and the session, then delivers the result
// in the background. It is a no-op when not recording.
func (a *App) OnStopRequested(ctx context.Context) {
	a.mu.Lock()
	if !a.recording {
		a.mu.Unlock()
		slog.Debug("stop requested while not recording, ignoring")
		return
	}
	a.recording = false
	a.current = nil
	if err := a.Capture.Stop(); err != nil {
		slog.Warn("capture stop failed", "err", err)
	}
	a.feedMu.Lock()
	a.drain(ctx)
	a.gen.Add(1)
	sess, err := a.Client.Stop()
	a.feedMu.Unlock()
	// A transcript already requested is delivered even when the run ends.
	dctx := context.WithoutCancel(a.runCtx)
	a.mu.Unlock()

	if err != nil {
		slog.Warn("stop failed", "err", err)
		return
	}
	if sess == nil {
		return
	}
	a.deliveries.Add(1)
	go func() {
		defer a.deliveries.Done()
		a.deliver(dctx, sess)
	}()
}

// ApplyConfig applies the hot-reloadable parts of a config change.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.DictionaryChanged && a.Dictionary != nil {
		if err := a.Dictionary.Update(d.Words); err != nil {
			slog.Warn("dictionary update not sent to service", "err", err)
		}
	}
	if a.Registry != nil {
		for _, pd := range d.PluginChanges {
			if !pd.EnabledChanged || pd.Added || pd.Removed {
				continue
			}
			var err error
			if pd.Enabled {
				err = a.Registry.Enable(pd.Name)
			} else {
				err = a.Registry.Disable(pd.Name)
			}
			if err != nil {
				slog.Warn("plugin toggle failed", "plugin_id", pd.Name, "err", err)
			}
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes take effect after restart", "sections", d.RestartRequired)
	}
}

// ─── Pipeline ────────────────────────────────────────────────────────────────

func (a *App) onFrame(gen uint64, f audio.RawFrame) {
	select {
	case a.frames <- capturedFrame{gen: gen, raw: f}:
	default:
		a.metrics.RecordFrameDropped(context.Background(), observe.StageCapture)
		slog.Debug("capture queue full, frame dropped")
	}
}

func (a *App) normalizeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cf := <-a.frames:
			a.feedMu.Lock()
			a.feed(ctx, cf)
			a.feedMu.Unlock()
		}
	}
}

// drain feeds the frames still queued. Callers hold feedMu.
func (a *App) drain(ctx context.Context) {
	for {
		select {
		case cf := <-a.frames:
			a.feed(ctx, cf)
		default:
			return
		}
	}
}

// feed normalizes cf and passes it to the client. Callers hold feedMu.
func (a *App) feed(ctx context.Context, cf capturedFrame) {
	if cf.gen != a.gen.Load() {
		// Captured during an earlier recording.
		return
	}
	frame, err := a.normalizer.Normalize(cf.raw)
	if err != nil {
		a.metrics.RecordFrameDropped(ctx, observe.StageNormalize)
		slog.Warn("frame dropped", "err", err)
		return
	}
	if len(frame.Samples) == 0 {
		return
	}
	if err := a.Client.Feed(frame); err != nil {
		slog.Debug("frame not fed", "err", err)
	}
}

// watchRecording reports a session that ends while the App still considers
// it recording, which only happens when the connection drops.
func (a *App) watchRecording(sess *session.Session) {
	<-sess.Done()

	a.mu.Lock()
	if !a.recording || a.current != sess {
		a.mu.Unlock()
		return
	}
	a.recording = false
	a.current = nil
	a.gen.Add(1)
	if err := a.Capture.Stop(); err != nil {
		slog.Warn("capture stop failed", "err", err)
	}
	a.mu.Unlock()

	_, err := sess.Wait(context.Background())
	var cerr *session.ConnectionError
	if errors.As(err, &cerr) {
		a.onError(err)
		return
	}
	slog.Warn("session ended while recording", "session_id", sess.ID, "err", err)
}

func (a *App) deliver(ctx context.Context, sess *session.Session) {
	ctx = observe.WithSession(ctx, sess.ID)
	text, err := sess.Wait(ctx)
	log := observe.Logger(ctx)

	var (
		terr *session.TimeoutError
		serr *session.ServiceError
	)
	switch {
	case err == nil:
	case errors.As(err, &terr), errors.As(err, &serr):
		if text == "" {
			text = sess.Partial()
		}
		log.Warn("using partial transcript", "err", err)
	default:
		log.Warn("session produced no transcript", "err", err)
		a.finishOnce()
		return
	}

	if text == "" {
		log.Info("empty transcript, nothing to deliver")
		a.finishOnce()
		return
	}

	out := a.Chain.Run(ctx, text)
	if err := a.Sink.Inject(ctx, out); err != nil {
		log.Warn("delivery failed", "err", err)
	} else {
		log.Info("transcript delivered", "chars", len(out))
	}
	a.finishOnce()
}

func (a *App) finishOnce() {
	if !a.once {
		return
	}
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	cancel()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops capture, waits for pending deliveries, closes the client
// and unloads plugins. Only the first call has any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.mu.Lock()
		if a.recording {
			a.recording = false
			a.current = nil
			if err := a.Capture.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("app: stop capture: %w", err))
			}
		}
		a.mu.Unlock()

		done := make(chan struct{})
		go func() {
			a.deliveries.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded with deliveries pending")
			errs = append(errs, ctx.Err())
		}

		if err := a.Client.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: close client: %w", err))
		}
		if a.Registry != nil {
			if err := a.Registry.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("app: close plugins: %w", err))
			}
		}
		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}
