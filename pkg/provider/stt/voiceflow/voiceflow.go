// Package voiceflow provides an [stt.Dialer] for the VoiceFlow streaming ASR
// server, which speaks the protocol in pkg/protocol over a WebSocket.
package voiceflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voiceflow/pkg/provider/stt"
)

const (
	defaultEndpoint    = "ws://127.0.0.1:9876"
	defaultDialTimeout = 5 * time.Second

	// maxMessageBytes bounds a single service message. Results are small;
	// the limit only guards against a misbehaving server.
	maxMessageBytes = 1 << 20
)

// Option is a functional option for configuring the [Dialer].
type Option func(*Dialer)

// WithDialTimeout bounds a single connection attempt. Default: 5s.
func WithDialTimeout(d time.Duration) Option {
	return func(dl *Dialer) {
		if d > 0 {
			dl.dialTimeout = d
		}
	}
}

// WithHeader adds an HTTP header to the WebSocket handshake (e.g.
// "Authorization").
func WithHeader(key, value string) Option {
	return func(dl *Dialer) {
		dl.header.Add(key, value)
	}
}

// WithHTTPClient sets the HTTP client used for the handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(dl *Dialer) {
		dl.httpClient = c
	}
}

// Dialer implements stt.Dialer for a VoiceFlow server.
type Dialer struct {
	endpoint    string
	dialTimeout time.Duration
	header      http.Header
	httpClient  *http.Client
}

var _ stt.Dialer = (*Dialer)(nil)

// New creates a Dialer for endpoint ("ws://" or "wss://"). An empty endpoint
// selects the local default ws://127.0.0.1:9876.
func New(endpoint string, opts ...Option) (*Dialer, error) {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("voiceflow: parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("voiceflow: endpoint scheme %q must be ws or wss", u.Scheme)
	}
	d := &Dialer{
		endpoint:    u.String(),
		dialTimeout: defaultDialTimeout,
		header:      http.Header{},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Endpoint returns the server URL this dialer connects to.
func (d *Dialer) Endpoint() string { return d.endpoint }

// Dial opens a WebSocket to the server.
func (d *Dialer) Dial(ctx context.Context) (stt.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, d.endpoint, &websocket.DialOptions{
		HTTPHeader: d.header,
		HTTPClient: d.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("voiceflow: dial %s: %w", d.endpoint, err)
	}
	ws.SetReadLimit(maxMessageBytes)
	return &conn{ws: ws, done: make(chan struct{})}, nil
}

// ---- conn ----

// conn adapts a *websocket.Conn to stt.Conn.
type conn struct {
	ws   *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *conn) Write(ctx context.Context, typ stt.MessageType, data []byte) error {
	select {
	case <-c.done:
		return stt.ErrClosed
	default:
	}
	mt := websocket.MessageText
	if typ == stt.MessageBinary {
		mt = websocket.MessageBinary
	}
	if err := c.ws.Write(ctx, mt, data); err != nil {
		return fmt.Errorf("voiceflow: write %s: %w", typ, err)
	}
	return nil
}

func (c *conn) Read(ctx context.Context) (stt.MessageType, []byte, error) {
	mt, data, err := c.ws.Read(ctx)
	if err != nil {
		select {
		case <-c.done:
			return 0, nil, stt.ErrClosed
		default:
		}
		return 0, nil, fmt.Errorf("voiceflow: read: %w", err)
	}
	if mt == websocket.MessageBinary {
		return stt.MessageBinary, data, nil
	}
	return stt.MessageText, data, nil
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.ws.Close(websocket.StatusNormalClosure, "client closed")
		// A peer that already went away is not a close failure.
		var ce websocket.CloseError
		if errors.As(err, &ce) || errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}
