package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle position of a single [Session].
type Phase int

const (
	// PhaseRecording accepts audio.
	PhaseRecording Phase = iota

	// PhaseFinalizing waits for the final result.
	PhaseFinalizing

	// PhaseCompleted ended with a final transcript (terminal).
	PhaseCompleted

	// PhaseAborted ended with an error (terminal).
	PhaseAborted
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseRecording:
		return "recording"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseCompleted:
		return "completed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Session is one start-to-stop recording cycle. It doubles as the future
// returned by [Client.Stop]: Done is closed once the session reaches a
// terminal phase and Wait yields its outcome.
//
// All methods are safe for concurrent use.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// StartedAt is when Start was accepted.
	StartedAt time.Time

	mu        sync.Mutex
	phase     Phase
	partial   strings.Builder
	nextSeq   uint64
	stoppedAt time.Time
	timer     *time.Timer
	text      string
	err       error
	done      chan struct{}
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		done:      make(chan struct{}),
	}
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Partial returns the concatenation of all partial results received so far.
func (s *Session) Partial() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partial.String()
}

// Done returns a channel that is closed when the session is resolved.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session is resolved or ctx is done.
//
// On success it returns the final transcript. On a finalize timeout it
// returns the concatenated partials together with a [*TimeoutError]. When the
// session was aborted it returns the partials received so far together with
// the cause (typically a [*ConnectionError]).
func (s *Session) Wait(ctx context.Context) (string, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.text, s.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// sequence hands out the next audio sequence number.
func (s *Session) sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.nextSeq
	s.nextSeq++
	return seq
}

func (s *Session) appendPartial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase < PhaseCompleted {
		s.partial.WriteString(text)
	}
}

func (s *Session) finalize(now time.Time, timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseFinalizing
	s.stoppedAt = now
	s.timer = timer
}

// resolve moves the session to a terminal phase. Only the first call has an
// effect; it reports whether this call resolved the session. When text is
// empty and err is non-nil, the partials are used as the text.
func (s *Session) resolve(phase Phase, text string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase >= PhaseCompleted {
		return false
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	if err != nil && text == "" {
		text = s.partial.String()
	}
	s.phase, s.text, s.err = phase, text, err
	close(s.done)
	return true
}

// finalizeElapsed returns the time since Stop, or zero when Stop was never
// called.
func (s *Session) finalizeElapsed(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stoppedAt.IsZero() {
		return 0
	}
	return now.Sub(s.stoppedAt)
}
