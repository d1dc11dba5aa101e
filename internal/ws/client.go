// Package ws is the websocket transport for the chat room. It adapts a
// gorilla/websocket connection to the chat.Conn contract: a buffered send
// queue drained by a write pump, a read pump feeding inbound frames to the
// room, and the serialized session attachment carried on the connection.
package ws

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 256
)

// ErrSendQueueFull is returned by Send when the peer has stopped draining
// its socket. The caller treats it like any other per-connection send
// failure.
var ErrSendQueueFull = errors.New("ws: send queue full")

// Client wraps one websocket connection. It satisfies chat.Conn.
type Client struct {
	conn *websocket.Conn
	send chan []byte

	// attachment is only read and written while the room lock is held,
	// which is what serializes access across the accept and read-pump
	// goroutines.
	attachment []byte
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
}

// Send enqueues a text frame without blocking. A full queue means the peer
// is not reading; drop the frame and report it so the room can log.
func (c *Client) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *Client) Attachment() []byte { return c.attachment }

func (c *Client) SetAttachment(blob []byte) { c.attachment = blob }

// Close sends a close frame with the given code and reason, then tears
// down the underlying socket.
func (c *Client) Close(code int, reason string) error {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return c.conn.Close()
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with periodic pings. One per connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
