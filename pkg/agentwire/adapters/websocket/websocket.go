// Package websocket adapts the engine's line transport onto a
// WebSocket connection: one JSON object per text message, same frames
// as the stdio pipe. Useful when the agent runs behind a gateway
// instead of as a local subprocess.
package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
	"github.com/conneroisu/agentwire/pkg/agentwire/ports"
)

const (
	writeTimeout = 10 * time.Second

	// pingInterval keeps idle connections alive through proxies.
	pingInterval = 30 * time.Second

	// pongWait bounds how long the read loop tolerates silence.
	pongWait = 60 * time.Second

	maxMessageSize = 1024 * 1024
)

// Config describes the WebSocket endpoint.
type Config struct {
	// URL is the ws:// or wss:// endpoint.
	URL string

	// Header carries extra handshake headers, e.g. authorization.
	Header http.Header

	// HandshakeTimeout bounds the dial. Zero means the gorilla
	// default.
	HandshakeTimeout time.Duration

	// Logger, nil means slog.Default().
	Logger *slog.Logger
}

// Transport is a WebSocket-backed line transport.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	// writeMu serialises all conn writes (lines, pings, close frame).
	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	lines chan []byte
	errs  chan error
	done  chan struct{}
}

var _ ports.Transport = (*Transport)(nil)

// New returns an undialed WebSocket transport.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:    cfg,
		logger: logger,
		lines:  make(chan []byte, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint and starts the read and keepalive loops.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return agenterrs.NewSessionClosed()
	}
	if t.conn != nil {
		return nil
	}
	if t.cfg.URL == "" {
		return agenterrs.NewConfigError("websocket transport needs a URL")
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeConnectFailed, "websocket dial failed", err)
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	t.conn = conn
	t.logger.Debug("websocket connected", "url", t.cfg.URL)

	go t.readLoop(conn)
	go t.pingLoop(conn)
	return nil
}

// WriteLine sends one JSON object as a single text message.
func (t *Transport) WriteLine(_ context.Context, line []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()

	if closed || conn == nil {
		return agenterrs.NewTransportFailure("websocket not connected", nil)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
		return agenterrs.NewTransportError(agenterrs.ErrCodeWriteFailed, "websocket write failed", err)
	}
	return nil
}

// ReadLines returns the inbound channels.
func (t *Transport) ReadLines(_ context.Context) (<-chan []byte, <-chan error) {
	return t.lines, t.errs
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	defer close(t.lines)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			t.errs <- agenterrs.NewTransportError(agenterrs.ErrCodeReadFailed, "websocket read failed", err)
			return
		}
		select {
		case t.lines <- message:
		case <-t.done:
			return
		}
	}
}

func (t *Transport) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			t.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// Close performs the close handshake and tears the connection down.
// Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	close(t.done)
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()

	return conn.Close()
}

// Ready reports whether the connection is up.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}
