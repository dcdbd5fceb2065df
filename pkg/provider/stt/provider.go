// Package stt defines the transport abstraction for streaming speech-to-text
// services.
//
// A [Dialer] opens a [Conn], one persistent duplex message stream to the
// service. The transport is deliberately dumb: it moves text and binary
// messages and reports failures. Encoding, ordering, and the session state
// machine belong to the caller (see internal/session); this keeps transports
// easy to fake in tests.
//
// Implementations must be safe for one concurrent reader and one concurrent
// writer, with Close callable from any goroutine.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by Conn methods after Close.
var ErrClosed = errors.New("stt: connection closed")

// MessageType distinguishes text (JSON control) from binary (audio) messages.
type MessageType int

const (
	// MessageText carries a UTF-8 JSON control or result message.
	MessageText MessageType = iota + 1

	// MessageBinary carries raw audio.
	MessageBinary
)

// String returns the human-readable name of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Conn is an open duplex connection to a transcription service.
type Conn interface {
	// Write sends one message. It blocks until the message is handed to the
	// network or ctx is done.
	Write(ctx context.Context, typ MessageType, data []byte) error

	// Read blocks until the next message arrives. Any error means the
	// connection is no longer usable.
	Read(ctx context.Context) (MessageType, []byte, error)

	// Close terminates the connection. Calling Close more than once is safe.
	Close() error
}

// Dialer establishes connections to a transcription service.
type Dialer interface {
	// Dial opens a new connection. It must honour ctx cancellation so that a
	// pending attempt can be abandoned.
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the [Dialer] interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
