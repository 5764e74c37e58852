package relay

import (
	"context"
	"sync"
	"time"

	"huddle/internal/middleware"
	"huddle/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBuffer = 256
)

// Client is one relay connection. A connection is identified by ID, never by
// user: the same user may hold several connections.
type Client struct {
	ID     string
	UserID uint

	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub on disconnect.
	Send      chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) context() context.Context {
	return middleware.WithConnID(context.Background(), c.ID)
}

// ReadPump feeds inbound frames to the hub until the socket fails, then
// disconnects the client.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	ctx := c.context()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.LogError(ctx, c.ID, "", err, "read")
			}
			return
		}
		c.hub.HandleFrame(ctx, c, message)
	}
}

// WritePump drains Send to the socket and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking. Frames for a full or closed
// buffer are dropped; delivery is fire-and-forget.
func (c *Client) TrySend(message []byte) bool {
	sent := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
			}
		}()
		select {
		case c.Send <- message:
			sent = true
		default:
			observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
			c.hub.log.LogDrop(c.context(), c.ID, EventReceiveMessage, "buffer full")
		}
	}()
	return sent
}

// Wait blocks until WritePump has returned. The socket must not be released
// while the writer still holds it.
func (c *Client) Wait() {
	<-c.done
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Send) })
}
