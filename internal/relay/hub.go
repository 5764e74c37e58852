// Package relay is the room-based realtime layer: connections join rooms and
// frames sent to a room reach every other connection in it.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"huddle/internal/featureflags"
	"huddle/internal/middleware"
	"huddle/internal/observability"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	typingLimit  = 10
	typingWindow = 10 * time.Second
)

// ErrTooManyConnections is returned by Register when the hub is at capacity.
var ErrTooManyConnections = errors.New("relay connection limit reached")

// Options configures a Hub. The zero value is a single-instance hub with no
// connection cap and typing indicators disabled.
type Options struct {
	MaxConnections int
	Flags          *featureflags.Manager
	// Redis backs typing rate limits. Nil skips rate limiting.
	Redis    *redis.Client
	Notifier *Notifier
}

// Hub is the process-wide room registry. It starts empty and is cleared by
// Shutdown.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	// Rooms each registered client has joined.
	members map[*Client]map[string]struct{}

	origin   string
	maxConns int
	flags    *featureflags.Manager
	rdb      *redis.Client
	notifier *Notifier
	log      *observability.WSLogger
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	return &Hub{
		rooms:    make(map[string]map[*Client]struct{}),
		members:  make(map[*Client]map[string]struct{}),
		origin:   uuid.NewString(),
		maxConns: opts.MaxConnections,
		flags:    opts.Flags,
		rdb:      opts.Redis,
		notifier: opts.Notifier,
		log:      observability.NewWSLogger("relay"),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *Hub) Name() string { return "relay" }

// Register adds a connection in the Connected state with no rooms.
func (h *Hub) Register(conn *websocket.Conn, userID uint) (*Client, error) {
	h.mu.Lock()
	if h.maxConns > 0 && len(h.members) >= h.maxConns {
		h.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	client := newClient(h, conn, userID)
	h.members[client] = make(map[string]struct{})
	h.mu.Unlock()

	observability.RelayConnections.Inc()
	h.log.LogConnect(client.context(), client.ID, userID)
	return client, nil
}

// JoinRoom adds c to roomKey. Joining is unrestricted and idempotent.
func (h *Hub) JoinRoom(c *Client, roomKey string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.members[c]
	if !ok || roomKey == "" {
		return false
	}
	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[*Client]struct{})
	}
	h.rooms[roomKey][c] = struct{}{}
	joined[roomKey] = struct{}{}
	observability.RelayRooms.Set(float64(len(h.rooms)))
	return true
}

// SendMessage broadcasts payload verbatim as receiveMessage to every other
// connection in its room. The sender need not be a member. A payload without
// a room key is dropped and logged; nothing is reported back to the sender.
func (h *Hub) SendMessage(ctx context.Context, c *Client, payload json.RawMessage) int {
	roomKey, err := RoomKey(payload)
	if err != nil {
		h.drop(ctx, c, EventSendMessage, "missing room key")
		return 0
	}
	frame, err := EncodeFrame(EventReceiveMessage, payload)
	if err != nil {
		h.drop(ctx, c, EventSendMessage, "unencodable payload")
		return 0
	}
	return h.broadcast(ctx, roomKey, EventReceiveMessage, frame, c)
}

// Typing tells the rest of roomKey that userID is typing.
func (h *Hub) Typing(ctx context.Context, c *Client, roomKey string, userID json.RawMessage) int {
	if !h.typingEnabled(c) {
		h.drop(ctx, c, EventTyping, "disabled")
		return 0
	}
	if h.rdb != nil {
		allowed, err := middleware.CheckRateLimit(ctx, h.rdb, "relay_typing", c.ID, typingLimit, typingWindow)
		if err == nil && !allowed {
			h.drop(ctx, c, EventTyping, "rate limited")
			return 0
		}
	}
	if len(userID) == 0 {
		if c.UserID == 0 {
			h.drop(ctx, c, EventTyping, "missing user")
			return 0
		}
		userID, _ = json.Marshal(c.UserID)
	}

	data, err := json.Marshal(struct {
		UserID json.RawMessage `json:"userId"`
	}{UserID: userID})
	if err != nil {
		h.drop(ctx, c, EventTyping, "unencodable payload")
		return 0
	}
	frame, err := EncodeFrame(EventTyping, data)
	if err != nil {
		h.drop(ctx, c, EventTyping, "unencodable payload")
		return 0
	}
	return h.broadcast(ctx, roomKey, EventTyping, frame, c)
}

// HandleFrame dispatches one inbound frame. Bad frames are logged and dropped.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		h.drop(ctx, c, "unknown", "malformed frame")
		return
	}
	observability.RelayEventsTotal.WithLabelValues(eventLabel(frame.Event)).Inc()

	switch frame.Event {
	case EventJoinChat:
		roomKey, err := RoomKey(frame.Data)
		if err != nil {
			h.drop(ctx, c, frame.Event, "missing room key")
			return
		}
		h.JoinRoom(c, roomKey)
	case EventSendMessage:
		h.SendMessage(ctx, c, frame.Data)
	case EventTyping:
		roomKey, err := RoomKey(frame.Data)
		if err != nil {
			h.drop(ctx, c, frame.Event, "missing room key")
			return
		}
		h.Typing(ctx, c, roomKey, typingUser(frame.Data))
	default:
		h.drop(ctx, c, frame.Event, "unknown event")
	}
}

// Disconnect removes c from every room and closes its outbound queue. The
// connection is terminal afterwards.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	joined, ok := h.members[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	for roomKey := range joined {
		if room, ok := h.rooms[roomKey]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, roomKey)
			}
		}
	}
	delete(h.members, c)
	c.close()
	observability.RelayRooms.Set(float64(len(h.rooms)))
	h.mu.Unlock()

	observability.RelayConnections.Dec()
	h.log.LogDisconnect(c.context(), c.ID, len(joined))
}

// RoomSize returns the number of local connections in roomKey.
func (h *Hub) RoomSize(roomKey string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey])
}

// RoomsOf returns the rooms c has joined.
func (h *Hub) RoomsOf(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.members[c]))
	for key := range h.members[c] {
		out = append(out, key)
	}
	return out
}

// Connections returns the number of registered connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// StartWiring delivers frames published by other instances to local rooms.
func (h *Hub) StartWiring(ctx context.Context) error {
	if !h.notifier.Enabled() {
		h.log.LogLifecycle(ctx, "single_instance", nil)
		return nil
	}
	return h.notifier.StartRoomSubscriber(ctx, func(roomKey string, env Envelope) {
		if env.Origin == h.origin {
			return
		}
		h.deliver(roomKey, eventOf(env.Frame), env.Frame, nil)
	})
}

// Shutdown disconnects every client and clears the registry.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	n := len(h.members)
	for c := range h.members {
		c.close()
	}
	h.rooms = make(map[string]map[*Client]struct{})
	h.members = make(map[*Client]map[string]struct{})
	h.mu.Unlock()

	observability.RelayConnections.Set(0)
	observability.RelayRooms.Set(0)
	h.log.LogLifecycle(ctx, "shutdown", map[string]interface{}{"connections": n})
	return nil
}

func (h *Hub) broadcast(ctx context.Context, roomKey, event string, frame []byte, sender *Client) int {
	delivered := h.deliver(roomKey, event, frame, sender)
	if err := h.notifier.PublishRoom(ctx, h.origin, roomKey, frame); err != nil {
		h.log.LogError(ctx, sender.ID, roomKey, err, event)
	}
	return delivered
}

// deliver queues frame for every local member of roomKey except skip.
func (h *Hub) deliver(roomKey, event string, frame []byte, skip *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[roomKey] {
		if c == skip {
			continue
		}
		if c.TrySend(frame) {
			delivered++
		}
	}
	observability.RelayDeliveriesTotal.WithLabelValues(event).Add(float64(delivered))
	return delivered
}

// typingEnabled buckets signed-in users by user id and anonymous
// connections by connection id.
func (h *Hub) typingEnabled(c *Client) bool {
	if c.UserID != 0 {
		return h.flags.Enabled(featureflags.TypingIndicator, c.UserID)
	}
	return h.flags.EnabledFor(featureflags.TypingIndicator, "conn:"+c.ID)
}

func (h *Hub) drop(ctx context.Context, c *Client, event, reason string) {
	observability.RelayDroppedTotal.WithLabelValues(reason).Inc()
	h.log.LogDrop(ctx, c.ID, event, reason)
}

// eventLabel bounds metric labels to the inbound events the relay handles.
func eventLabel(event string) string {
	switch event {
	case EventJoinChat, EventSendMessage, EventTyping:
		return event
	}
	return "unknown"
}

func eventOf(frame []byte) string {
	var f Frame
	if err := json.Unmarshal(frame, &f); err != nil || f.Event == "" {
		return "unknown"
	}
	return f.Event
}
