package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huddle/internal/config"
	"huddle/internal/relay"
	"huddle/internal/testutil"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen serves the app on a loopback port and returns its ws base URL.
func (e *testEnv) listen(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app := e.srv.App()
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := relay.EncodeFrame(event, raw)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) relay.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := relay.DecodeFrame(raw)
	require.NoError(t, err)
	return frame
}

func TestRelayRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	url := env.listen(t)

	alice := dial(t, url)
	bob := dial(t, url)
	carol := dial(t, url)

	writeFrame(t, alice, relay.EventJoinChat, "chat_1")
	writeFrame(t, bob, relay.EventJoinChat, "chat_1")
	writeFrame(t, carol, relay.EventJoinChat, "chat_2")
	require.Eventually(t, func() bool {
		return env.srv.hub.RoomSize("chat_1") == 2 && env.srv.hub.RoomSize("chat_2") == 1
	}, 3*time.Second, 10*time.Millisecond)

	payload := map[string]interface{}{"roomKey": "chat_1", "sender": 1, "message": "on my way"}
	writeFrame(t, alice, relay.EventSendMessage, payload)

	frame := readFrame(t, bob)
	assert.Equal(t, relay.EventReceiveMessage, frame.Event)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	assert.Equal(t, "on my way", got["message"])
	assert.Equal(t, "chat_1", got["roomKey"])

	writeFrame(t, bob, relay.EventTyping, map[string]interface{}{"chatId": "chat_1", "userId": 2})
	frame = readFrame(t, alice)
	assert.Equal(t, relay.EventTyping, frame.Event)
	assert.JSONEq(t, `{"userId":2}`, string(frame.Data))

	// Neither the other room nor the sender saw the message.
	require.NoError(t, carol.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := carol.ReadMessage()
	assert.Error(t, err)

	require.NoError(t, bob.Close())
	require.Eventually(t, func() bool {
		return env.srv.hub.RoomSize("chat_1") == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRelayRejectsPlainHTTP(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.srv.App().Test(httptest.NewRequest(http.MethodGet, "/ws", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestRelayAuthRequired(t *testing.T) {
	env := newTestEnv(t, authRequired)
	user := testutil.CreateUser(t, env.db, "alice")
	url := env.listen(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	dial(t, fmt.Sprintf("%s?token=%s", url, tokenFor(t, user.ID)))
	require.Eventually(t, func() bool {
		return env.srv.hub.Connections() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRelayConnectionCap(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.RelayMaxConnections = 1 })
	url := env.listen(t)

	dial(t, url)
	require.Eventually(t, func() bool {
		return env.srv.hub.Connections() == 1
	}, 3*time.Second, 10*time.Millisecond)

	second := dial(t, url)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := second.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"too many connections"}`, string(raw))
}
