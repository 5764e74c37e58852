package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishRoom(context.Background(), "a", "chat_1", []byte(`{}`)))
	assert.NoError(t, n.StartRoomSubscriber(context.Background(), func(string, Envelope) {
		t.Fatal("no delivery expected")
	}))
}

func TestRoomChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "relay:room:chat_5", RoomChannel("chat_5"))
	assert.Equal(t, "relay:room:12", RoomChannel("12"))
}

func TestNotifier_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	type delivery struct {
		room string
		env  Envelope
	}
	got := make(chan delivery, 1)
	require.NoError(t, n.StartRoomSubscriber(ctx, func(room string, env Envelope) {
		got <- delivery{room, env}
	}))

	require.NoError(t, n.PublishRoom(ctx, "origin-1", "chat_9", []byte(`{"event":"typing","data":{"userId":3}}`)))

	select {
	case d := <-got:
		assert.Equal(t, "chat_9", d.room)
		assert.Equal(t, "origin-1", d.env.Origin)
		assert.JSONEq(t, `{"event":"typing","data":{"userId":3}}`, string(d.env.Frame))
		assert.Equal(t, "typing", eventOf(d.env.Frame))
	case <-time.After(testEventuallyTimeout):
		t.Fatal("envelope not delivered")
	}
}
