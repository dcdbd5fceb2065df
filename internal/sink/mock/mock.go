// Package mock provides a test double for the sink.Sink interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceflow/internal/sink"
)

// Sink is a mock implementation of sink.Sink.
type Sink struct {
	mu sync.Mutex

	// Err, if non-nil, is wrapped in a *sink.Error and returned by Inject.
	Err error

	// Texts records every injected text.
	Texts []string

	// Injected receives each text after it is recorded, if non-nil.
	Injected chan string
}

// Inject records text.
func (s *Sink) Inject(_ context.Context, text string) error {
	s.mu.Lock()
	s.Texts = append(s.Texts, text)
	err := s.Err
	ch := s.Injected
	s.mu.Unlock()
	if ch != nil {
		ch <- text
	}
	if err != nil {
		return &sink.Error{Sink: "mock", Err: err}
	}
	return nil
}

// Calls returns a copy of Texts. Thread-safe.
func (s *Sink) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Texts...)
}

// Ensure Sink implements sink.Sink at compile time.
var _ sink.Sink = (*Sink)(nil)
