package trigger_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voiceflow/internal/trigger"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) OnStartRequested(context.Context) { r.add("start") }
func (r *recorder) OnStopRequested(context.Context)  { r.add("stop") }

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func TestLines_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "explicit", input: "start\nstop\n", want: []string{"start", "stop"}},
		{name: "short forms", input: "s\nx\n", want: []string{"start", "stop"}},
		{name: "enter toggles", input: "\n\n\n", want: []string{"start", "stop", "start"}},
		{name: "case and spaces", input: "  START \nStop\n", want: []string{"start", "stop"}},
		{name: "quit stops reading", input: "s\nq\nx\n", want: []string{"start"}},
		{name: "unknown ignored", input: "hello\ns\n", want: []string{"start"}},
		{name: "no trailing newline", input: "s\nx", want: []string{"start", "stop"}},
		{name: "empty input", input: "", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &recorder{}
			err := trigger.NewLines(strings.NewReader(tt.input)).Run(context.Background(), rec)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := rec.Events(); !slices.Equal(got, tt.want) {
				t.Errorf("events = %v, want %v", got, tt.want)
			}
		})
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestLines_ReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("tty gone")
	err := trigger.NewLines(failingReader{err: boom}).Run(context.Background(), &recorder{})
	if !errors.Is(err, boom) {
		t.Errorf("Run = %v, want %v", err, boom)
	}
}

func TestLines_ReturnsOnContextCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	done := make(chan error, 1)
	go func() { done <- trigger.NewLines(pr).Run(ctx, rec) }()

	if _, err := io.WriteString(pw, "s\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("start not dispatched")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestAuto(t *testing.T) {
	t.Parallel()

	eof := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}

	done := make(chan error, 1)
	go func() { done <- trigger.NewAuto(eof).Run(ctx, rec) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Events()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("auto trigger did not start")
		}
		time.Sleep(time.Millisecond)
	}
	close(eof)
	for len(rec.Events()) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("auto trigger did not stop")
		}
		time.Sleep(time.Millisecond)
	}
	if got := rec.Events(); !slices.Equal(got, []string{"start", "stop"}) {
		t.Errorf("events = %v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
