package sink

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriter_Inject(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	s := NewWriter("stdout", &b)
	ctx := context.Background()

	for _, text := range []string{"Hello world.", "Second line."} {
		if err := s.Inject(ctx, text); err != nil {
			t.Fatalf("Inject(%q): %v", text, err)
		}
	}
	if got, want := b.String(), "Hello world.\nSecond line.\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestWriter_InjectErrors(t *testing.T) {
	t.Parallel()

	errDisk := errors.New("disk full")
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name    string
		s       *Writer
		ctx     context.Context
		wantErr error
	}{
		{name: "write fails", s: NewWriter("file", failingWriter{err: errDisk}), ctx: context.Background(), wantErr: errDisk},
		{name: "context cancelled", s: NewWriter("file", &strings.Builder{}), ctx: cancelled, wantErr: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.s.Inject(tt.ctx, "text")
			var serr *Error
			if !errors.As(err, &serr) {
				t.Fatalf("err = %v, want *sink.Error", err)
			}
			if serr.Sink != "file" {
				t.Errorf("Sink = %q, want file", serr.Sink)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want wrapping %v", err, tt.wantErr)
			}
		})
	}
}

// The clipboard tests swap package-level hooks and must not run in parallel.

func TestClipboard_Inject(t *testing.T) {
	var got []string
	origWrite, origUnsupported := clipboardWrite, clipboardUnsupported
	t.Cleanup(func() { clipboardWrite, clipboardUnsupported = origWrite, origUnsupported })
	clipboardUnsupported = func() bool { return false }
	clipboardWrite = func(s string) error {
		got = append(got, s)
		return nil
	}

	c, err := NewClipboard()
	if err != nil {
		t.Fatalf("NewClipboard: %v", err)
	}
	ctx := context.Background()
	if err := c.Inject(ctx, "copy me"); err != nil {
		t.Fatalf("Inject: %v", err)
	}
	if err := c.Inject(ctx, ""); err != nil {
		t.Fatalf("Inject empty: %v", err)
	}
	if len(got) != 1 || got[0] != "copy me" {
		t.Errorf("clipboard writes = %q, want [copy me]", got)
	}
}

func TestClipboard_WriteFails(t *testing.T) {
	errNoDisplay := errors.New("no display")
	origWrite, origUnsupported := clipboardWrite, clipboardUnsupported
	t.Cleanup(func() { clipboardWrite, clipboardUnsupported = origWrite, origUnsupported })
	clipboardUnsupported = func() bool { return false }
	clipboardWrite = func(string) error { return errNoDisplay }

	c, _ := NewClipboard()
	err := c.Inject(context.Background(), "text")
	if !errors.Is(err, errNoDisplay) {
		t.Errorf("err = %v, want errNoDisplay", err)
	}
}

func TestNewClipboard_Unsupported(t *testing.T) {
	origUnsupported := clipboardUnsupported
	t.Cleanup(func() { clipboardUnsupported = origUnsupported })
	clipboardUnsupported = func() bool { return true }

	if _, err := NewClipboard(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
