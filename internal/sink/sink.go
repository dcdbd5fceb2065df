// Package sink delivers finished transcripts to the user: a terminal, a
// file or the system clipboard.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrUnsupported is returned when a sink cannot work on this system.
var ErrUnsupported = errors.New("sink: unsupported on this system")

// Sink receives the final text of a session.
type Sink interface {
	// Inject delivers text. Failures are returned as *[Error].
	Inject(ctx context.Context, text string) error
}

// Error reports a failed delivery.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Writer writes each transcript as one line to an [io.Writer].
type Writer struct {
	name string

	mu sync.Mutex
	w  io.Writer
}

var _ Sink = (*Writer)(nil)

// NewWriter returns a sink writing to w. name labels errors ("stdout").
func NewWriter(name string, w io.Writer) *Writer {
	return &Writer{name: name, w: w}
}

// Inject writes text followed by a newline.
func (s *Writer) Inject(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Sink: s.name, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.w, text+"\n"); err != nil {
		return &Error{Sink: s.name, Err: err}
	}
	return nil
}
