// Package resilience guards calls to remote text services with a circuit
// breaker.
//
// A [Breaker] starts closed and forwards every call. After MaxFailures
// consecutive failures it opens and rejects calls with [ErrOpen] until
// Cooldown has passed. It then lets up to Trials calls through (half-open);
// that many successes close it again, and any failure re-opens it.
//
// Cancellation of the caller's own context does not count as a failure.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a limited number of trial calls.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the tuning knobs of a [Breaker]. Zero values take defaults.
type Config struct {
	// Name labels log records, usually the guarded plugin's ID.
	Name string

	// MaxFailures is the consecutive failure count that opens the breaker.
	// Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Trials is the number of calls admitted while half-open, and the number
	// of successes needed to close. Default: 1.
	Trials int

	// OnStateChange, if set, is called after every transition with the
	// breaker lock released.
	OnStateChange func(name string, from, to State)

	// Now overrides the clock. Tests only.
	Now func() time.Time
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// New creates a closed [Breaker].
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Do calls fn unless the breaker is open. The returned error is fn's error
// or [ErrOpen].
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	// The caller gave up; that says nothing about the remote side.
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(trial)
		return err
	}
	b.record(trial, err == nil)
	return err
}

// State reports the current state. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// call to Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures, b.inFlight, b.successes = 0, 0, 0
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.inFlight, b.successes = 0, 0
		fallthrough
	case StateHalfOpen:
		if b.inFlight+b.successes >= b.cfg.Trials {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.inFlight++
		trial = true
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return trial, nil
}

func (b *Breaker) release(trial bool) {
	if !trial {
		return
	}
	b.mu.Lock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(trial, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case trial && b.state != StateHalfOpen:
		// A concurrent trial already decided the outcome.
	case trial && ok:
		b.inFlight--
		b.successes++
		if b.successes >= b.cfg.Trials {
			b.state = StateClosed
			b.failures, b.inFlight, b.successes = 0, 0, 0
		}
	case trial:
		b.trip()
	case ok:
		b.failures = 0
	default:
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to && to == StateOpen {
		slog.Warn("circuit breaker opened", "name", b.cfg.Name, "consecutive_failures", failures)
	}
	b.notify(from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.inFlight, b.successes = 0, 0
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	if to != StateOpen {
		slog.Info("circuit breaker state change", "name", b.cfg.Name, "from", from, "to", to)
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
