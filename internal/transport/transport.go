// Package transport accepts WebSocket connections from voice devices and
// exposes a register/send/unregister surface to the rest of the engine. Each
// connection gets its own read loop and a send path serialized by a
// per-connection mutex so concurrent publishers never interleave frames on
// the wire.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrNotConnected is returned by Send when no connection is registered under
// the given session id.
var ErrNotConnected = errors.New("transport: session not connected")

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultHeartbeat       = 20 * time.Second
	defaultHeartbeatExpiry = 5 * time.Second
)

// FrameHandler receives classified inbound frames from a connection's read
// loop. Implementations must not block for long — the read loop cannot pull
// the next frame until a handler call returns.
type FrameHandler interface {
	// HandleText is invoked for a text frame.
	HandleText(ctx context.Context, sessionID string, text string)

	// HandleBinary is invoked for a binary frame.
	HandleBinary(ctx context.Context, sessionID string, data []byte)

	// HandleClose is invoked once, after the read loop exits for any reason.
	HandleClose(ctx context.Context, sessionID string)
}

// connection wraps one device's WebSocket and the per-connection state
// needed to serialize writes and unregister cleanly.
type connection struct {
	id      string
	conn    *websocket.Conn
	sendMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	mqtt    bool
	closeCh chan struct{}
}

// Transport owns every active device connection and serializes access to
// each one's send path.
type Transport struct {
	mu    sync.RWMutex
	conns map[string]*connection

	handler         FrameHandler
	writeTimeout    time.Duration
	heartbeat       time.Duration
	heartbeatExpiry time.Duration
}

// Option configures a [Transport].
type Option func(*Transport)

// WithWriteTimeout overrides the per-write deadline. Default 10s.
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Transport) { t.writeTimeout = d }
}

// WithHeartbeat overrides the ping interval and the deadline by which the pong
// must arrive. Default 20s interval, 5s expiry.
func WithHeartbeat(interval, expiry time.Duration) Option {
	return func(t *Transport) {
		t.heartbeat = interval
		t.heartbeatExpiry = expiry
	}
}

// New creates a Transport that dispatches inbound frames to handler.
func New(handler FrameHandler, opts ...Option) *Transport {
	t := &Transport{
		conns:           make(map[string]*connection),
		handler:         handler,
		writeTimeout:    defaultWriteTimeout,
		heartbeat:       defaultHeartbeat,
		heartbeatExpiry: defaultHeartbeatExpiry,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Accept upgrades an HTTP request to a WebSocket connection, registers it
// under sessionID, and runs its read loop until the connection closes or ctx
// is cancelled. Accept blocks; callers typically run it in its own goroutine
// per accepted connection. mqttGateway marks frames from this session as
// carrying the MQTT-gateway's 16-byte audio header.
func (t *Transport) Accept(ctx context.Context, w http.ResponseWriter, r *http.Request, sessionID string, mqttGateway bool) error {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return fmt.Errorf("transport: accept: %w", err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	c := &connection{
		id:      sessionID,
		conn:    wsConn,
		ctx:     connCtx,
		cancel:  cancel,
		mqtt:    mqttGateway,
		closeCh: make(chan struct{}),
	}

	t.register(c)
	defer t.unregister(sessionID)

	go t.heartbeatLoop(c)

	t.readLoop(c)
	return nil
}

// register adds a connection, replacing (and closing) any prior connection
// registered under the same session id.
func (t *Transport) register(c *connection) {
	t.mu.Lock()
	prev := t.conns[c.id]
	t.conns[c.id] = c
	t.mu.Unlock()

	if prev != nil {
		prev.cancel()
		_ = prev.conn.Close(websocket.StatusNormalClosure, "superseded")
	}
}

// unregister removes the connection and releases its socket. Safe to call
// more than once.
func (t *Transport) unregister(sessionID string) {
	t.mu.Lock()
	c, ok := t.conns[sessionID]
	if ok {
		delete(t.conns, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	close(c.closeCh)
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
	t.handler.HandleClose(context.Background(), sessionID)
}

// readLoop pulls frames off the wire until the connection errors or closes,
// classifying each as text or binary and handing it to the FrameHandler.
func (t *Transport) readLoop(c *connection) {
	for {
		msgType, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Debug("transport: read loop ended", "session_id", c.id, "err", err)
			}
			return
		}

		switch msgType {
		case websocket.MessageText:
			t.handler.HandleText(c.ctx, c.id, string(data))
		case websocket.MessageBinary:
			t.handler.HandleBinary(c.ctx, c.id, data)
		}
	}
}

// heartbeatLoop pings the connection at a fixed interval. A failed ping
// (including one that exceeds heartbeatExpiry) tears the connection down so
// a half-open socket does not linger as a phantom session.
func (t *Transport) heartbeatLoop(c *connection) {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, t.heartbeatExpiry)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				slog.Debug("transport: heartbeat failed, closing connection", "session_id", c.id, "err", err)
				t.unregister(c.id)
				return
			}
		}
	}
}

// Send serializes payload (if it is not already []byte, it is marshaled to
// JSON) and writes it to the session's connection under the per-connection
// send mutex. Returns [ErrNotConnected] if the session has no active
// connection.
func (t *Transport) Send(ctx context.Context, sessionID string, payload any) error {
	t.mu.RLock()
	c, ok := t.conns[sessionID]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, sessionID)
	}

	var data []byte
	msgType := websocket.MessageText
	switch v := payload.(type) {
	case []byte:
		data = v
		msgType = websocket.MessageBinary
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("transport: marshal payload: %w", err)
		}
		data = b
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, msgType, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// SendAudio writes a raw binary audio frame, bypassing JSON marshaling.
func (t *Transport) SendAudio(ctx context.Context, sessionID string, frame []byte) error {
	return t.Send(ctx, sessionID, frame)
}

// IsConnected reports whether sessionID currently has a registered
// connection.
func (t *Transport) IsConnected(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[sessionID]
	return ok
}

// IsFromMQTTGateway reports whether the session's connection was flagged as
// originating behind the MQTT gateway at Accept time.
func (t *Transport) IsFromMQTTGateway(sessionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[sessionID]
	return ok && c.mqtt
}

// Unregister forcibly closes and removes sessionID's connection, if any.
func (t *Transport) Unregister(sessionID string) {
	t.unregister(sessionID)
}

// ActiveSessions returns the number of currently registered connections.
func (t *Transport) ActiveSessions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
