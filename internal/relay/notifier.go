package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"
)

const roomChannelPrefix = "relay:room:"

// Envelope is what travels over Redis between relay instances.
type Envelope struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

// Notifier fans room frames out to other instances through Redis pub/sub.
// A Notifier without a Redis client is a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether frames actually leave this process.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// RoomChannel derives the Redis channel name for a room.
func RoomChannel(roomKey string) string {
	return roomChannelPrefix + roomKey
}

// PublishRoom publishes an encoded frame for roomKey.
func (n *Notifier) PublishRoom(ctx context.Context, origin, roomKey string, frame []byte) error {
	if !n.Enabled() {
		return nil
	}
	payload, err := json.Marshal(Envelope{Origin: origin, Frame: frame})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return n.rdb.Publish(ctx, RoomChannel(roomKey), payload).Err()
}

// StartRoomSubscriber subscribes to every room channel and calls onMessage
// for each envelope until ctx is done.
func (n *Notifier) StartRoomSubscriber(
	ctx context.Context, onMessage func(roomKey string, env Envelope),
) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	// Wait for the subscription so publishes issued right after start are seen.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in RoomSubscriber: %v\n%s", r, debug.Stack())
						}
					}()
					var env Envelope
					if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
						log.Printf("RoomSubscriber: bad envelope on %s: %v", msg.Channel, err)
						return
					}
					onMessage(strings.TrimPrefix(msg.Channel, roomChannelPrefix), env)
				}()
			}
		}
	}()

	return nil
}
