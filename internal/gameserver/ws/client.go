// Package ws provides the real-time WebSocket transport: connection
// acceptance, per-connection read/write pumps, and the hub that addresses
// outbound events by connection id.
package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Envelope is the wire frame for both directions: a message type and a raw
// payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client is one connected player socket, with a buffered outbound queue
// drained by a single write pump so broadcast order per connection follows
// event processing order.
type Client struct {
	id   string
	conn *websocket.Conn

	outbound chan []byte
	mu       sync.Mutex
	closed   bool
}

// newClient wraps a websocket connection with an outbound queue.
//
// Precondition: id must be non-empty; conn must be an open connection.
func newClient(id string, conn *websocket.Conn, bufferSize int) *Client {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Client{
		id:       id,
		conn:     conn,
		outbound: make(chan []byte, bufferSize),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// push enqueues a frame for the write pump.
//
// Postcondition: The frame is queued, or an error if the client is closed or
// its buffer is full. A full buffer drops the frame rather than blocking the
// caller.
func (c *Client) push(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client %s is closed", c.id)
	}
	select {
	case c.outbound <- frame:
		return nil
	default:
		return fmt.Errorf("client %s outbound buffer full", c.id)
	}
}

// close marks the client closed and closes the outbound channel. Safe to
// call multiple times.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.outbound)
	}
}

// writePump drains the outbound queue onto the socket until the queue closes
// or a write fails.
func (c *Client) writePump(writeTimeout time.Duration, logger *zap.Logger) {
	for frame := range c.outbound {
		if writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			logger.Debug("write failed, dropping client",
				zap.String("connection", c.id),
				zap.Error(err),
			)
			return
		}
	}
}
