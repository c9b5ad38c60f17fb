package events

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestHub_PublishReachesAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	a := dial(t, server)
	b := dial(t, server)

	helloA := readMessage(t, a)
	assert.Equal(t, EventConnected, helloA.Event)
	assert.NotEmpty(t, helloA.Data.(map[string]interface{})["client_id"])
	helloB := readMessage(t, b)
	assert.NotEqual(t, helloA.Data, helloB.Data)

	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 10*time.Millisecond)

	hub.Publish(EventDispatchCompleted, map[string]interface{}{"session_id": "s1"})
	hub.Publish(EventActionExecuted, map[string]interface{}{"action": "greet"})

	for _, conn := range []*websocket.Conn{a, b} {
		first := readMessage(t, conn)
		second := readMessage(t, conn)
		assert.Equal(t, "event", first.Type)
		assert.Equal(t, EventDispatchCompleted, first.Event)
		assert.Equal(t, EventActionExecuted, second.Event)
		assert.Equal(t, first.Seq+1, second.Seq)
		assert.NotZero(t, first.Timestamp)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)

	// publishing with no clients is a no-op
	hub.Publish(EventDispatchStarted, nil)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)

	hub.Close()
	assert.Equal(t, 0, hub.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, 503, resp.StatusCode)
	}
}
