// Package mock provides test doubles for the stt package interfaces.
//
// Use Conn to script what the service sends and to inspect everything the
// client wrote, in order. Use Dialer to hand out Conns and to inject dial
// failures.
//
// Example:
//
//	conn := mock.NewConn()
//	d := &mock.Dialer{Conns: []*mock.Conn{conn}}
//	// ... connect a client through d ...
//	conn.PushText(`{"type":"final","text":"hello"}`)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voiceflow/pkg/protocol"
	"github.com/MrWong99/voiceflow/pkg/provider/stt"
)

// Message is one message written to or pushed into a Conn.
type Message struct {
	Type stt.MessageType
	Data []byte
}

type inbound struct {
	msg Message
	err error
}

// Conn is a mock implementation of stt.Conn.
type Conn struct {
	mu sync.Mutex

	in        chan inbound
	closed    chan struct{}
	closeOnce sync.Once
	written   chan struct{}

	// WriteErr, if non-nil, is returned by every Write call.
	WriteErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// Writes records every successful Write in order.
	Writes []Message

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// NewConn returns a ready Conn with a buffered inbound queue.
func NewConn() *Conn {
	return &Conn{
		in:      make(chan inbound, 64),
		closed:  make(chan struct{}),
		written: make(chan struct{}, 1),
	}
}

// Write records the message and returns WriteErr.
func (c *Conn) Write(ctx context.Context, typ stt.MessageType, data []byte) error {
	select {
	case <-c.closed:
		return stt.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.Writes = append(c.Writes, Message{Type: typ, Data: cp})
	select {
	case c.written <- struct{}{}:
	default:
	}
	return nil
}

// Read returns the next pushed message or error. It blocks until one is
// available, the Conn is closed, or ctx is done.
func (c *Conn) Read(ctx context.Context) (stt.MessageType, []byte, error) {
	select {
	case m := <-c.in:
		if m.err != nil {
			return 0, nil, m.err
		}
		return m.msg.Type, m.msg.Data, nil
	case <-c.closed:
		return 0, nil, stt.ErrClosed
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close records the call, unblocks pending reads, and returns CloseErr.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCallCount++
	return c.CloseErr
}

// PushText queues a text message for the client to read.
func (c *Conn) PushText(s string) {
	c.in <- inbound{msg: Message{Type: stt.MessageText, Data: []byte(s)}}
}

// PushBinary queues a binary message for the client to read.
func (c *Conn) PushBinary(data []byte) {
	c.in <- inbound{msg: Message{Type: stt.MessageBinary, Data: data}}
}

// Fail makes the next Read return err, simulating a dropped connection.
func (c *Conn) Fail(err error) {
	c.in <- inbound{err: err}
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of the recorded writes. Thread-safe.
func (c *Conn) Written() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.Writes))
	copy(out, c.Writes)
	return out
}

// Audio returns the samples of every binary write, decoded and in order.
func (c *Conn) Audio() [][]float32 {
	var out [][]float32
	for _, m := range c.Written() {
		if m.Type == stt.MessageBinary {
			out = append(out, protocol.DecodeAudio(m.Data))
		}
	}
	return out
}

// WaitWrites blocks until at least n messages have been written or timeout
// elapses, and returns the writes seen so far.
func (c *Conn) WaitWrites(n int, timeout time.Duration) []Message {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if w := c.Written(); len(w) >= n {
			return w
		}
		select {
		case <-c.written:
		case <-deadline.C:
			return c.Written()
		}
	}
}

// Ensure Conn implements stt.Conn at compile time.
var _ stt.Conn = (*Conn)(nil)

// Dialer is a mock implementation of stt.Dialer.
//
// Each Dial call consumes the next entry of Errs (if any remain and it is
// non-nil, the call fails with it), otherwise the next entry of Conns. When
// both lists are exhausted Dial returns a fresh Conn.
type Dialer struct {
	mu sync.Mutex

	// Errs scripts failures for successive Dial calls. A nil entry means
	// "succeed on this attempt".
	Errs []error

	// Conns are handed out in order by successful Dial calls.
	Conns []*Conn

	// Block, if non-nil, makes Dial wait until it is closed or ctx is done.
	Block chan struct{}

	// --- Call records ---

	// DialCallCount is the number of times Dial was called.
	DialCallCount int

	// Dialed records every Conn returned, in order.
	Dialed []*Conn
}

// Dial records the call and returns the next scripted result.
func (d *Dialer) Dial(ctx context.Context) (stt.Conn, error) {
	d.mu.Lock()
	d.DialCallCount++
	block := d.Block
	var err error
	if len(d.Errs) > 0 {
		err, d.Errs = d.Errs[0], d.Errs[1:]
	}
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	var c *Conn
	if len(d.Conns) > 0 {
		c, d.Conns = d.Conns[0], d.Conns[1:]
	} else {
		c = NewConn()
	}
	d.Dialed = append(d.Dialed, c)
	return c, nil
}

// Calls returns DialCallCount. Thread-safe.
func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.DialCallCount
}

// Last returns the most recently dialed Conn, or nil. Thread-safe.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Dialed) == 0 {
		return nil
	}
	return d.Dialed[len(d.Dialed)-1]
}

// Ensure Dialer implements stt.Dialer at compile time.
var _ stt.Dialer = (*Dialer)(nil)
