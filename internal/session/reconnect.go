package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voiceflow/pkg/provider/stt"
)

// defaultReconnectInterval is the fixed delay between reconnection attempts.
const defaultReconnectInterval = 3 * time.Second

// Reconnector re-establishes a lost service connection.
//
// It retries at a fixed interval with no attempt limit until a connection is
// accepted by OnReconnect or [Reconnector.Stop] is called. Each Reconnector
// serves one outage; the owning [Client] creates a fresh one per outage.
//
// All methods are safe for concurrent use.
type Reconnector struct {
	dialer      stt.Dialer
	interval    time.Duration
	onReconnect func(stt.Conn) bool
	onAttempt   func(attempt int, err error)

	done     chan struct{}
	stopOnce sync.Once
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Dialer opens new connections.
	Dialer stt.Dialer

	// Interval is the fixed delay before each attempt. Defaults to 3s if zero.
	Interval time.Duration

	// OnReconnect is offered every new connection. Returning false means the
	// connection is no longer wanted; the Reconnector closes it and exits.
	OnReconnect func(stt.Conn) bool

	// OnAttempt is called after every attempt with its outcome. May be nil.
	OnAttempt func(attempt int, err error)
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultReconnectInterval
	}
	return &Reconnector{
		dialer:      cfg.Dialer,
		interval:    interval,
		onReconnect: cfg.OnReconnect,
		onAttempt:   cfg.OnAttempt,
		done:        make(chan struct{}),
	}
}

// Run executes the retry loop and blocks until a connection is handed off,
// Stop is called, or ctx is cancelled. A pending dial is aborted by Stop.
func (r *Reconnector) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		slog.Info("attempting reconnection", "attempt", attempt, "interval", r.interval)

		conn, err := r.dialer.Dial(ctx)
		if r.onAttempt != nil {
			r.onAttempt(attempt, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reconnection attempt failed", "attempt", attempt, "err", err)
			continue
		}

		if r.stopped() || r.onReconnect == nil || !r.onReconnect(conn) {
			// Stop won the race against this attempt.
			_ = conn.Close()
			slog.Debug("discarded reconnected connection", "attempt", attempt)
			return
		}
		slog.Info("reconnection successful", "attempt", attempt)
		return
	}
}

// Stop halts the loop and aborts any pending dial. Safe to call multiple
// times. It does not wait for Run to return.
func (r *Reconnector) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}

func (r *Reconnector) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
