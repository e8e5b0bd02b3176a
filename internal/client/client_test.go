package client_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guess-duel-backend/internal/client"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeGateway accepts connections and scripts one exchange per connection:
// the standard connect preamble, then an echo of guesses as turn updates.
type fakeGateway struct {
	server      *httptest.Server
	connections int64
	dropAfter   int64 // close each connection after this many client frames, 0 keeps it open
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	gateway := &fakeGateway{}
	gateway.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt64(&gateway.connections, 1)

		conn.WriteJSON(map[string]interface{}{"type": "CONNECTION_SUCCESS"})
		conn.WriteJSON(map[string]interface{}{
			"type": "GAME_STATE",
			"game": map[string]interface{}{"id": "game_1", "status": "IN_PROGRESS"},
		})

		var frames int64
		for {
			var msg map[string]interface{}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			frames++
			switch msg["type"] {
			case "JOIN_GAME":
				conn.WriteJSON(map[string]interface{}{
					"type": "GAME_STATE",
					"game": map[string]interface{}{"id": "game_1", "status": "IN_PROGRESS"},
				})
			case "MAKE_GUESS":
				conn.WriteJSON(map[string]interface{}{
					"type":  "TURN_UPDATE",
					"game":  map[string]interface{}{"id": "game_1", "status": "IN_PROGRESS"},
					"guess": map[string]interface{}{"guess_number": msg["guess_number"], "feedback": "UP"},
				})
			}
			if drop := atomic.LoadInt64(&gateway.dropAfter); drop > 0 && frames >= drop {
				return
			}
		}
	}))
	t.Cleanup(gateway.server.Close)
	return gateway
}

func (g *fakeGateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func nextEvent(t *testing.T, c *client.Client) client.Event {
	t.Helper()
	select {
	case event, ok := <-c.Events():
		require.True(t, ok, "event stream closed unexpectedly")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return client.Event{}
	}
}

func TestClientReceivesEventStream(t *testing.T) {
	gateway := newFakeGateway(t)

	c, err := client.Dial(gateway.wsURL(), "room_1", "token", nil)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, client.EventConnected, nextEvent(t, c).Type)

	state := nextEvent(t, c)
	assert.Equal(t, client.EventGameState, state.Type)
	require.NotNil(t, state.Game)
	assert.Equal(t, "game_1", state.Game.ID)

	require.NoError(t, c.MakeGuess(42))
	update := nextEvent(t, c)
	assert.Equal(t, client.EventTurnUpdate, update.Type)
	require.NotNil(t, update.Guess)
	assert.Equal(t, 42, update.Guess.GuessNumber)
}

func TestClientRejectedDial(t *testing.T) {
	gateway := newFakeGateway(t)

	_, err := client.Dial(gateway.wsURL(), "room_1", "", nil)
	assert.Error(t, err)
}

func TestClientReconnects(t *testing.T) {
	gateway := newFakeGateway(t)
	atomic.StoreInt64(&gateway.dropAfter, 1)

	c, err := client.Dial(gateway.wsURL(), "room_1", "token", &client.Options{
		MaxReconnectAttempts: 3,
		ReconnectInterval:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, client.EventConnected, nextEvent(t, c).Type)
	assert.Equal(t, client.EventGameState, nextEvent(t, c).Type)

	// The server drops the connection after this frame's reply.
	require.NoError(t, c.JoinGame())
	assert.Equal(t, client.EventGameState, nextEvent(t, c).Type)

	// Supervised recovery: reconnecting, then a fresh connect and snapshot.
	event := nextEvent(t, c)
	require.Equal(t, client.EventReconnecting, event.Type)
	assert.Equal(t, 1, event.Attempt)

	for event = nextEvent(t, c); event.Type == client.EventReconnecting; event = nextEvent(t, c) {
	}
	require.Equal(t, client.EventConnected, event.Type)
	assert.Equal(t, client.EventGameState, nextEvent(t, c).Type)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&gateway.connections), int64(2))
}

func TestClientTerminalDisconnect(t *testing.T) {
	gateway := newFakeGateway(t)

	c, err := client.Dial(gateway.wsURL(), "room_1", "token", &client.Options{
		MaxReconnectAttempts: 2,
		ReconnectInterval:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, client.EventConnected, nextEvent(t, c).Type)
	assert.Equal(t, client.EventGameState, nextEvent(t, c).Type)

	// Nothing left to reconnect to.
	gateway.server.Close()

	var sawTerminal bool
	attempts := 0
	for event := range c.Events() {
		switch event.Type {
		case client.EventReconnecting:
			attempts = event.Attempt
		case client.EventDisconnected:
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal, "expected a terminal disconnected event")
	assert.Equal(t, 2, attempts, "retry budget should be spent before giving up")
}
