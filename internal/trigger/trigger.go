// Package trigger provides the start/stop triggers of the voiceflow CLI.
//
// [Lines] reads commands from a text stream such as stdin. [Auto] records
// once from start until a signal channel closes, which pairs with the WAV
// file source's end-of-file callback.
package trigger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/voiceflow/internal/app"
)

// Lines is a line-oriented trigger. Each line is one command:
//
//	start, s   begin recording
//	stop, x    stop recording and deliver the transcript
//	(empty)    toggle between the two
//	quit, q    exit
//
// Unknown lines are logged and ignored. End of input behaves like quit.
type Lines struct {
	r         io.Reader
	recording bool
}

var _ app.Trigger = (*Lines)(nil)

// NewLines returns a trigger reading commands from r.
func NewLines(r io.Reader) *Lines {
	return &Lines{r: r}
}

type scanResult struct {
	line string
	err  error
	eof  bool
}

// Run dispatches commands to h until input ends, a quit command arrives, or
// ctx is done. The reader goroutine may outlive Run while blocked in Read.
func (l *Lines) Run(ctx context.Context, h app.Handler) error {
	lines := make(chan scanResult)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		sc := bufio.NewScanner(l.r)
		for sc.Scan() {
			select {
			case lines <- scanResult{line: sc.Text()}:
			case <-stop:
				return
			}
		}
		select {
		case lines <- scanResult{err: sc.Err(), eof: true}:
		case <-stop:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-lines:
			if res.eof {
				if res.err != nil {
					return fmt.Errorf("trigger: read input: %w", res.err)
				}
				slog.Debug("trigger input closed")
				return nil
			}
			if quit := l.dispatch(ctx, h, res.line); quit {
				return nil
			}
		}
	}
}

func (l *Lines) dispatch(ctx context.Context, h app.Handler, line string) (quit bool) {
	switch cmd := strings.ToLower(strings.TrimSpace(line)); cmd {
	case "start", "s":
		l.start(ctx, h)
	case "stop", "x":
		l.stop(ctx, h)
	case "":
		if l.recording {
			l.stop(ctx, h)
		} else {
			l.start(ctx, h)
		}
	case "quit", "q", "exit":
		return true
	default:
		slog.Warn("unknown command", "command", cmd)
	}
	return false
}

func (l *Lines) start(ctx context.Context, h app.Handler) {
	l.recording = true
	h.OnStartRequested(ctx)
}

func (l *Lines) stop(ctx context.Context, h app.Handler) {
	l.recording = false
	h.OnStopRequested(ctx)
}

// Auto starts recording immediately and stops when done is closed. Run then
// waits for ctx, so the App decides when to exit (e.g. after delivery in
// once mode).
type Auto struct {
	done <-chan struct{}
}

var _ app.Trigger = (*Auto)(nil)

// NewAuto returns a trigger that records until done is closed.
func NewAuto(done <-chan struct{}) *Auto {
	return &Auto{done: done}
}

// Run implements [app.Trigger].
func (a *Auto) Run(ctx context.Context, h app.Handler) error {
	h.OnStartRequested(ctx)
	select {
	case <-a.done:
		h.OnStopRequested(ctx)
	case <-ctx.Done():
		return nil
	}
	<-ctx.Done()
	return nil
}
