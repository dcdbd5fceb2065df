// Package session implements the streaming dictation client: a state machine
// over one persistent duplex connection to a transcription service.
//
// A [Client] owns the connection, a bounded outbound queue drained by a
// single writer goroutine, a reader goroutine that dispatches service events,
// and an explicit [Reconnector] that runs while the connection is down. Each
// Start/Stop cycle is a [Session] whose sequence numbers begin at zero.
//
// State transitions:
//
//	Idle ──Connect──▶ Connecting ──ok──▶ ConnectedIdle ──Start──▶ Recording
//	                      │ fail                 ▲                   │ Stop
//	                      ▼                      │ final/timeout     ▼
//	               Disconnected ──▶ Reconnecting ┘◀── drop ──── Finalizing
//
// Cancel or Close from Connecting or Reconnecting returns the client to Idle.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voiceflow/internal/observe"
	"github.com/MrWong99/voiceflow/pkg/audio"
	"github.com/MrWong99/voiceflow/pkg/protocol"
	"github.com/MrWong99/voiceflow/pkg/provider/stt"
)

// Defaults for [Client] options.
const (
	defaultFinalizeTimeout = 10 * time.Second
	defaultMaxBuffered     = 5 * time.Second

	abandonReason       = "client closed"
	abandonWriteTimeout = time.Second
)

// Dictionary supplies the hint words attached to every Start message.
type Dictionary interface {
	Words() []string
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithDictionary sets the source of hint words for Start messages. Without
// one, Start carries no dictionary.
func WithDictionary(d Dictionary) Option {
	return func(c *Client) { c.dict = d }
}

// WithReconnectInterval sets the fixed delay between reconnection attempts.
// Default: 3s.
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectInterval = d
		}
	}
}

// WithFinalizeTimeout sets how long Stop waits for a final result.
// Default: 10s.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.finalizeTimeout = d
		}
	}
}

// WithMaxBuffered bounds the outbound queue by audio duration. Default: 5s.
func WithMaxBuffered(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxBuffered = d
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// link is one live connection with its queue and I/O goroutines.
type link struct {
	conn   stt.Conn
	queue  *outbound
	ctx    context.Context
	cancel context.CancelFunc

	// writerDone is closed when writeLoop returns.
	writerDone chan struct{}
}

// Client is the session state machine. All methods are safe for concurrent
// use. Create one with [New].
type Client struct {
	dialer            stt.Dialer
	dict              Dictionary
	metrics           *observe.Metrics
	reconnectInterval time.Duration
	finalizeTimeout   time.Duration
	maxBuffered       time.Duration

	mu          sync.Mutex
	state       State
	closed      bool
	link        *link
	session     *Session
	dialID      uint64
	dialCancel  context.CancelFunc
	reconnector *Reconnector

	// wg tracks reader, writer, and reconnector goroutines.
	wg sync.WaitGroup
}

// New creates an idle Client that dials through d.
func New(d stt.Dialer, opts ...Option) *Client {
	c := &Client{
		dialer:            d,
		reconnectInterval: defaultReconnectInterval,
		finalizeTimeout:   defaultFinalizeTimeout,
		maxBuffered:       defaultMaxBuffered,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the running session, or nil when none is recording or
// finalizing.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect dials the service. It is valid only from Idle.
//
// On success the client is ConnectedIdle. When the dial fails the client
// enters Reconnecting and Connect returns a [*ConnectionError]; retries
// continue in the background. When the attempt is abandoned by [Client.Cancel],
// [Client.Stop], or ctx, the client returns to Idle and the error wraps
// [context.Canceled] or ctx's error.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return &StateError{Op: "connect", State: st}
	}
	dctx, cancel := context.WithCancel(ctx)
	c.dialID++
	id := c.dialID
	c.dialCancel = cancel
	c.setState(StateConnecting)
	c.mu.Unlock()

	conn, err := c.dialer.Dial(dctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()

	if c.dialID != id || c.state != StateConnecting {
		// Cancelled while dialing; the canceller already moved us to Idle.
		if conn != nil {
			_ = conn.Close()
		}
		return fmt.Errorf("session: connect: %w", context.Canceled)
	}
	c.dialCancel = nil

	if err != nil {
		if ctx.Err() != nil {
			c.setState(StateIdle)
			return fmt.Errorf("session: connect: %w", ctx.Err())
		}
		cerr := &ConnectionError{Op: "dial", Err: err}
		slog.Warn("connect failed, reconnecting in background", "err", err)
		c.setState(StateDisconnected)
		c.startReconnect()
		return cerr
	}

	c.attach(conn)
	return nil
}

// Start begins a new session and sends Start with the current dictionary. It
// is valid only from ConnectedIdle; otherwise it returns a [*StateError] and
// sends nothing.
func (c *Client) Start() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.state != StateConnectedIdle {
		return nil, &StateError{Op: "start", State: c.state}
	}

	var words []string
	if c.dict != nil {
		words = c.dict.Words()
	}
	data, err := json.Marshal(protocol.Start(words))
	if err != nil {
		return nil, fmt.Errorf("session: encode start: %w", err)
	}

	sess := newSession(time.Now())
	c.link.queue.push(item{kind: itemStart, data: data})
	c.session = sess
	c.setState(StateRecording)
	c.metrics.ActiveSessions.Add(context.Background(), 1)
	slog.Info("session started", "session_id", sess.ID, "dictionary_size", len(words))
	return sess, nil
}

// Feed stamps frame with the session's next sequence number and queues it
// for sending. It is valid only while Recording; otherwise it returns a
// [*StateError] and sends nothing.
//
// When the queue holds more than the configured duration of audio, the
// oldest queued frames are dropped and logged. A frame without samples is
// ignored and does not use a sequence number.
func (c *Client) Feed(frame audio.NormalizedFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return &StateError{Op: "feed", State: c.state}
	}
	if len(frame.Samples) == 0 {
		return nil
	}

	frame.Sequence = c.session.sequence()
	dropped := c.link.queue.push(item{
		kind: itemAudio,
		data: protocol.EncodeAudio(frame.Samples),
		seq:  frame.Sequence,
		dur:  frame.Duration(),
	})
	for _, d := range dropped {
		slog.Warn("outbound queue full, dropped oldest frame",
			"session_id", c.session.ID,
			"sequence", d.seq,
			"max_buffered", c.maxBuffered,
		)
		c.metrics.RecordFrameDropped(context.Background(), observe.StageQueue)
	}
	return nil
}

// Stop ends recording.
//
// From Recording it sends Stop, moves to Finalizing, and returns the session
// as a future (see [Session.Wait]). From Connecting it abandons the dial,
// returns to Idle, and returns (nil, nil) without sending anything. Any other
// state yields a [*StateError].
func (c *Client) Stop() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting:
		c.abortDial()
		return nil, nil
	case StateRecording:
	default:
		return nil, &StateError{Op: "stop", State: c.state}
	}

	data, err := json.Marshal(protocol.Stop())
	if err != nil {
		return nil, fmt.Errorf("session: encode stop: %w", err)
	}
	sess := c.session
	c.link.queue.push(item{kind: itemControl, data: data})
	timer := time.AfterFunc(c.finalizeTimeout, func() { c.expire(sess) })
	sess.finalize(time.Now(), timer)
	c.setState(StateFinalizing)
	return sess, nil
}

// Cancel abandons a pending initial dial or the reconnect loop and returns
// the client to Idle. It is a no-op in every other state.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnecting:
		c.abortDial()
	case StateDisconnected, StateReconnecting:
		c.stopReconnect()
		c.setState(StateIdle)
	}
}

// SendDictionary forwards words to the service as an UpdateDictionary
// message when a connection is open. It is a no-op otherwise.
func (c *Client) SendDictionary(words []string) error {
	data, err := json.Marshal(protocol.UpdateDictionary(words))
	if err != nil {
		return fmt.Errorf("session: encode update_dictionary: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.state.Connected() {
		return nil
	}
	c.link.queue.push(item{kind: itemControl, data: data})
	return nil
}

// Close shuts the client down: the reconnect loop and any dial are stopped,
// a running session is rejected with [ErrClosed], the connection is closed,
// and all goroutines are joined. When a session was Recording or Finalizing
// on an open connection, an Error message is sent before closing so the
// service can discard it. The client ends in Idle and rejects further
// use. Close returns ctx's error if the goroutines do not finish in time.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
		c.dialID++
	}
	c.stopReconnect()
	abandoned := c.state == StateRecording || c.state == StateFinalizing
	c.abortSession(ErrClosed)
	l := c.detach()
	c.setState(StateIdle)
	c.mu.Unlock()

	var closeErr error
	if l != nil {
		if abandoned {
			c.sendAbandoned(ctx, l)
		}
		closeErr = l.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("session: close: %w", ctx.Err())
	}
	if closeErr != nil {
		return fmt.Errorf("session: close connection: %w", closeErr)
	}
	return nil
}

// sendAbandoned writes an Error message on a detached link once its writer
// has exited, keeping the conn to a single writer. Failures are only logged.
func (c *Client) sendAbandoned(ctx context.Context, l *link) {
	select {
	case <-l.writerDone:
	case <-ctx.Done():
		return
	}
	data, err := json.Marshal(protocol.Error(abandonReason))
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, abandonWriteTimeout)
	defer cancel()
	if err := l.conn.Write(wctx, stt.MessageText, data); err != nil {
		slog.Debug("could not report abandoned session", "err", err)
	}
}

// ---- internal transitions (c.mu held) ----

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	slog.Debug("client state change", "from", c.state, "to", s)
	c.state = s
}

func (c *Client) abortDial() {
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.dialID++
	c.setState(StateIdle)
}

// attach installs conn as the live connection and starts its I/O goroutines.
func (c *Client) attach(conn stt.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		conn:       conn,
		queue:      newOutbound(c.maxBuffered),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
	c.link = l
	c.setState(StateConnectedIdle)

	c.wg.Add(2)
	go c.readLoop(l)
	go c.writeLoop(l)
	slog.Info("connected to transcription service")
}

// detach removes the live connection, stopping its goroutines. The caller
// closes the returned link's conn outside the lock.
func (c *Client) detach() *link {
	l := c.link
	if l == nil {
		return nil
	}
	c.link = nil
	l.cancel()
	return l
}

func (c *Client) startReconnect() {
	r := NewReconnector(ReconnectorConfig{
		Dialer:   c.dialer,
		Interval: c.reconnectInterval,
		OnAttempt: func(_ int, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			c.metrics.RecordReconnectAttempt(context.Background(), status)
		},
	})
	r.onReconnect = func(conn stt.Conn) bool { return c.adopt(r, conn) }
	c.reconnector = r
	c.setState(StateReconnecting)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		r.Run(context.Background())
	}()
}

func (c *Client) stopReconnect() {
	if c.reconnector != nil {
		c.reconnector.Stop()
		c.reconnector = nil
	}
}

// adopt accepts a reconnected conn if r is still the active reconnector.
func (c *Client) adopt(r *Reconnector, conn stt.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnector != r || c.state != StateReconnecting {
		return false
	}
	c.reconnector = nil
	c.attach(conn)
	return true
}

// abortSession rejects the running session with err.
func (c *Client) abortSession(err error) {
	sess := c.session
	if sess == nil {
		return
	}
	c.session = nil
	if sess.resolve(PhaseAborted, "", err) {
		c.finish(sess, observe.OutcomeAborted)
		slog.Warn("session aborted", "session_id", sess.ID, "err", err)
	}
}

// complete resolves the finalizing session and returns to ConnectedIdle.
func (c *Client) complete(phase Phase, text string, err error, outcome string) {
	sess := c.session
	c.session = nil
	c.setState(StateConnectedIdle)
	if sess.resolve(phase, text, err) {
		c.finish(sess, outcome)
		slog.Info("session finished", "session_id", sess.ID, "outcome", outcome)
	}
}

func (c *Client) finish(sess *Session, outcome string) {
	ctx := context.Background()
	c.metrics.ActiveSessions.Add(ctx, -1)
	c.metrics.RecordSession(ctx, outcome)
	if d := sess.finalizeElapsed(time.Now()); d > 0 {
		c.metrics.FinalizeDuration.Record(ctx, d.Seconds())
	}
}

// ---- event handling ----

// disconnect handles a transport failure on l.
func (c *Client) disconnect(l *link, err error) {
	c.mu.Lock()
	if c.link != l || c.closed {
		c.mu.Unlock()
		return
	}
	slog.Warn("connection lost", "state", c.state, "err", err)
	c.detach()
	c.abortSession(err)
	c.setState(StateDisconnected)
	c.startReconnect()
	c.mu.Unlock()

	_ = l.conn.Close()
}

// expire fires when the finalize timeout of sess elapses.
func (c *Client) expire(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != sess || c.state != StateFinalizing {
		return
	}
	partial := sess.Partial()
	c.complete(PhaseAborted, partial, &TimeoutError{Partial: partial, After: c.finalizeTimeout}, observe.OutcomeTimeout)
}

func (c *Client) handleEvent(l *link, ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return
	}

	switch ev.Kind {
	case protocol.EventPartial:
		if c.session == nil {
			slog.Debug("discarded partial outside session", "text", ev.Text)
			return
		}
		c.session.appendPartial(ev.Text)

	case protocol.EventFinal:
		if c.state != StateFinalizing {
			slog.Warn("discarded final result outside finalizing", "state", c.state)
			return
		}
		if ev.PolishMethod != "" {
			slog.Debug("service polished final result", "session_id", c.session.ID, "method", ev.PolishMethod)
		}
		c.complete(PhaseCompleted, ev.Text, nil, observe.OutcomeCompleted)

	case protocol.EventDictionaryUpdated:
		slog.Debug("service acknowledged dictionary", "count", ev.Count)

	case protocol.EventError:
		if c.state != StateFinalizing {
			slog.Warn("transcription service error", "state", c.state, "message", ev.Message)
			return
		}
		c.complete(PhaseAborted, "", &ServiceError{Message: ev.Message}, observe.OutcomeServiceError)
	}
}

func (c *Client) handleProtocolError(l *link, perr *ProtocolError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link != l {
		return
	}
	slog.Warn("discarded service message", "state", c.state, "err", perr)
	if c.state != StateFinalizing {
		return
	}
	partial := c.session.Partial()
	c.complete(PhaseAborted, partial, &TimeoutError{Partial: partial, Cause: perr}, observe.OutcomeTimeout)
}

// ---- I/O goroutines ----

func (c *Client) readLoop(l *link) {
	defer c.wg.Done()
	for {
		typ, data, err := l.conn.Read(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			c.disconnect(l, &ConnectionError{Op: "read", Err: err})
			return
		}
		if typ != stt.MessageText {
			c.handleProtocolError(l, &ProtocolError{Err: fmt.Errorf("unexpected %s message", typ)})
			continue
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			c.handleProtocolError(l, &ProtocolError{Err: err})
			continue
		}
		c.handleEvent(l, ev)
	}
}

// writeLoop is the only goroutine that writes to l.conn. It refuses to send
// an audio frame whose sequence is not greater than the last one sent in the
// same session.
func (c *Client) writeLoop(l *link) {
	defer c.wg.Done()
	defer close(l.writerDone)
	var (
		last    uint64
		started bool
	)
	for {
		it, ok := l.queue.pop()
		if !ok {
			select {
			case <-l.queue.ready:
				continue
			case <-l.ctx.Done():
				return
			}
		}

		typ := stt.MessageText
		switch it.kind {
		case itemStart:
			started = false
		case itemAudio:
			typ = stt.MessageBinary
			if started && it.seq <= last {
				slog.Error("refusing out-of-order frame", "sequence", it.seq, "last_sent", last)
				continue
			}
			if want := last + 1; started && it.seq != want {
				slog.Warn("sequence gap", "expected", want, "got", it.seq)
			} else if !started && it.seq != 0 {
				slog.Warn("sequence gap", "expected", 0, "got", it.seq)
			}
			last, started = it.seq, true
		}

		if err := l.conn.Write(l.ctx, typ, it.data); err != nil {
			if l.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.disconnect(l, &ConnectionError{Op: "write", Err: err})
			return
		}
		if it.kind == itemAudio {
			c.metrics.FramesSent.Add(l.ctx, 1)
		}
	}
}
