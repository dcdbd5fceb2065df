package sink

import (
	"context"

	"github.com/atotto/clipboard"
)

// Indirection for tests.
var (
	clipboardWrite       = clipboard.WriteAll
	clipboardUnsupported = func() bool { return clipboard.Unsupported }
)

// Clipboard places each transcript on the system clipboard, replacing its
// contents.
type Clipboard struct{}

var _ Sink = Clipboard{}

// NewClipboard returns a clipboard sink, or [ErrUnsupported] when no
// clipboard utility is available (e.g. xclip or wl-copy on Linux).
func NewClipboard() (Clipboard, error) {
	if clipboardUnsupported() {
		return Clipboard{}, &Error{Sink: "clipboard", Err: ErrUnsupported}
	}
	return Clipboard{}, nil
}

// Inject copies text to the clipboard. Empty text is skipped.
func (Clipboard) Inject(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Sink: "clipboard", Err: err}
	}
	if text == "" {
		return nil
	}
	if err := clipboardWrite(text); err != nil {
		return &Error{Sink: "clipboard", Err: err}
	}
	return nil
}
