// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single websocket write.
const DefaultWriteTimeout = 5 * time.Second

// WSConn adapts a websocket connection to Conn. Writes are serialized, so
// broadcasts and direct replies may be sent from different goroutines.
type WSConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

var _ Conn = (*WSConn)(nil)

// NewWSConn wraps ws. writeTimeout <= 0 selects DefaultWriteTimeout.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) *WSConn {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	return &WSConn{ws: ws, writeTimeout: writeTimeout}
}

// Send writes payload as a text message.
func (c *WSConn) Send(payload []byte) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}

	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// SendJSON writes v encoded as JSON.
func (c *WSConn) SendJSON(v any) error {
	if c.closed.Load() {
		return websocket.ErrCloseSent
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}

	return c.ws.WriteJSON(v)
}

// Close sends a close frame and closes the connection. Only the first call
// has an effect.
func (c *WSConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.mu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	c.mu.Unlock()

	return c.ws.Close()
}

// Open reports whether Close has not been called.
func (c *WSConn) Open() bool {
	return !c.closed.Load()
}

// MarkClosed flags the connection as closed without writing to it, for use
// once the read side has seen the peer go away.
func (c *WSConn) MarkClosed() {
	if c.closed.CompareAndSwap(false, true) {
		c.ws.Close()
	}
}
