package handlers_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guess-duel-backend/internal/config"
	"guess-duel-backend/internal/handlers"
	"guess-duel-backend/internal/middleware"
	"guess-duel-backend/internal/models"
	"guess-duel-backend/internal/services"
)

// fakeBackend is an in-memory Ledger, RoomStore and GameStore in one, enough
// to run the gateway against real websocket connections.
type fakeBackend struct {
	mu      sync.Mutex
	wallets map[int64]*models.Wallet
	rooms   map[string]*models.Room
	games   map[string]*models.Game
	txs     []*models.Transaction
	settled map[string]bool
}

func newFakeBackend(userIDs ...int64) *fakeBackend {
	b := &fakeBackend{
		wallets: make(map[int64]*models.Wallet),
		rooms:   make(map[string]*models.Room),
		games:   make(map[string]*models.Game),
		settled: make(map[string]bool),
	}
	for _, id := range userIDs {
		b.wallets[id] = &models.Wallet{UserID: id, Balance: 1000}
	}
	return b
}

func (b *fakeBackend) GetWallet(userID int64) (*models.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wallet, ok := b.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet not found: %d", userID)
	}
	copied := *wallet
	return &copied, nil
}

func (b *fakeBackend) HoldFunds(userID int64, amount float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	wallet := b.wallets[userID]
	if wallet == nil || wallet.Balance-wallet.LockedBalance < amount {
		return models.ErrInsufficientFunds
	}
	wallet.LockedBalance += amount
	return nil
}

func (b *fakeBackend) ReleaseHold(userID int64, amount float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wallet := b.wallets[userID]; wallet != nil {
		wallet.LockedBalance -= amount
	}
	return nil
}

func (b *fakeBackend) SettleWager(gameID string, winnerID, loserID int64, amount float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settled[gameID] {
		return false, nil
	}
	winner, loser := b.wallets[winnerID], b.wallets[loserID]
	winner.LockedBalance -= amount
	winner.Balance += amount
	loser.LockedBalance -= amount
	loser.Balance -= amount
	b.settled[gameID] = true
	return true, nil
}

func (b *fakeBackend) MarkRefunded(gameID string) (bool, error) { return true, nil }

func (b *fakeBackend) SaveTransaction(tx *models.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs = append(b.txs, tx)
	return nil
}

func (b *fakeBackend) SaveRoom(room *models.Room) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[room.ID] = room
	return nil
}

func (b *fakeBackend) GetRoom(roomID string) (*models.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room, ok := b.rooms[roomID]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return room, nil
}

func (b *fakeBackend) ListRooms(status models.RoomStatus) ([]*models.Room, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rooms := make([]*models.Room, 0)
	for _, room := range b.rooms {
		if status == "" || room.Status == status {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (b *fakeBackend) PublishRoomEvent(event *services.RoomEvent) error { return nil }

func (b *fakeBackend) SaveGame(game *models.Game) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.games[game.ID] = game
	return nil
}

func (b *fakeBackend) GetGame(gameID string) (*models.Game, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	game, ok := b.games[gameID]
	if !ok {
		return nil, models.ErrGameNotFound
	}
	return game, nil
}

type gatewayFixture struct {
	server   *httptest.Server
	backend  *fakeBackend
	registry *services.RoomRegistry
	engine   *services.GameEngine
	jwt      *services.JWTService
}

func newGatewayFixture(t *testing.T, userIDs ...int64) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := newFakeBackend(userIDs...)
	cfg := &config.Config{JWTSecret: "test-secret"}
	jwtService := services.NewJWTService(cfg)

	settlement := services.NewSettlementEngine(backend)
	engine := services.NewGameEngine(backend, settlement, models.GuessRange{Min: 1, Max: 100})
	registry := services.NewRoomRegistry(backend, backend, engine,
		models.BetLimits{Min: 10, Max: 1000, Step: 5})
	engine.SetRoomCompleter(registry)

	wsHandler := handlers.NewWebSocketHandler(registry, engine, nil)
	engine.SetBroadcaster(wsHandler)

	router := gin.New()
	api := router.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtService))
	api.GET("/ws/rooms/:room_id", wsHandler.HandleWebSocket)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &gatewayFixture{
		server:   server,
		backend:  backend,
		registry: registry,
		engine:   engine,
		jwt:      jwtService,
	}
}

func (f *gatewayFixture) wsURL(roomID, token string) string {
	base := "ws" + strings.TrimPrefix(f.server.URL, "http")
	return fmt.Sprintf("%s/api/ws/rooms/%s?token=%s", base, roomID, token)
}

func (f *gatewayFixture) dial(t *testing.T, roomID string, userID int64) *websocket.Conn {
	t.Helper()
	token, err := f.jwt.GenerateToken(userID)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(roomID, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *handlers.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg handlers.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func sendGuess(t *testing.T, conn *websocket.Conn, value int) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(&handlers.ClientMessage{
		Type:        handlers.MessageMakeGuess,
		GuessNumber: &value,
	}))
}

func TestWebSocketRejectsBeforeUpgrade(t *testing.T) {
	fixture := newGatewayFixture(t, 1, 2, 3)

	room, err := fixture.registry.CreateRoom(1, 20)
	require.NoError(t, err)

	// No token at all.
	_, resp, err := websocket.DefaultDialer.Dial(fixture.wsURL(room.ID, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Authenticated but not a participant.
	token, err := fixture.jwt.GenerateToken(3)
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(fixture.wsURL(room.ID, token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Unknown room.
	_, resp, err = websocket.DefaultDialer.Dial(fixture.wsURL("room_missing", token), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketWaitingState(t *testing.T) {
	fixture := newGatewayFixture(t, 1)

	room, err := fixture.registry.CreateRoom(1, 20)
	require.NoError(t, err)

	conn := fixture.dial(t, room.ID, 1)

	msg := readMessage(t, conn)
	assert.Equal(t, handlers.MessageConnectionSuccess, msg.Type)
	assert.Equal(t, room.ID, msg.RoomID)

	msg = readMessage(t, conn)
	assert.Equal(t, handlers.MessageGameState, msg.Type)
	assert.Nil(t, msg.Game)
	require.NotNil(t, msg.Room)
	assert.Equal(t, models.RoomStatusOpen, msg.Room.Status)
}

func TestWebSocketGameFlow(t *testing.T) {
	fixture := newGatewayFixture(t, 1, 2)

	room, err := fixture.registry.CreateRoom(1, 20)
	require.NoError(t, err)
	_, game, err := fixture.registry.JoinRoom(2, room.ID)
	require.NoError(t, err)
	fixture.backend.games[game.ID].SecretNumber = 42

	conn1 := fixture.dial(t, room.ID, 1)
	conn2 := fixture.dial(t, room.ID, 2)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		assert.Equal(t, handlers.MessageConnectionSuccess, readMessage(t, conn).Type)
		state := readMessage(t, conn)
		assert.Equal(t, handlers.MessageGameState, state.Type)
		require.NotNil(t, state.Game)
		assert.Equal(t, int64(1), state.Game.CurrentTurn)
	}

	sendGuess(t, conn1, 10)
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		update := readMessage(t, conn)
		assert.Equal(t, handlers.MessageTurnUpdate, update.Type)
		require.NotNil(t, update.Guess)
		assert.Equal(t, models.FeedbackUp, update.Guess.Feedback)
		assert.Equal(t, int64(2), update.Game.CurrentTurn)
	}

	sendGuess(t, conn2, 42)
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		end := readMessage(t, conn)
		assert.Equal(t, handlers.MessageGameEnd, end.Type)
		require.NotNil(t, end.Guess)
		assert.Equal(t, models.FeedbackCorrect, end.Guess.Feedback)
		require.NotNil(t, end.Game.Winner)
		assert.Equal(t, int64(2), *end.Game.Winner)
	}
}

func TestWebSocketErrorOnlyToOriginator(t *testing.T) {
	fixture := newGatewayFixture(t, 1, 2)

	room, err := fixture.registry.CreateRoom(1, 20)
	require.NoError(t, err)
	_, _, err = fixture.registry.JoinRoom(2, room.ID)
	require.NoError(t, err)

	conn1 := fixture.dial(t, room.ID, 1)
	conn2 := fixture.dial(t, room.ID, 2)
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		readMessage(t, conn) // CONNECTION_SUCCESS
		readMessage(t, conn) // GAME_STATE
	}

	// Player 2 moves out of turn.
	sendGuess(t, conn2, 50)
	errMsg := readMessage(t, conn2)
	assert.Equal(t, handlers.MessageError, errMsg.Type)
	assert.Contains(t, errMsg.Error, "not your turn")

	// The rejection never reaches player 1.
	require.NoError(t, conn1.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err = conn1.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketReconnectResynchronizes(t *testing.T) {
	fixture := newGatewayFixture(t, 1, 2)

	room, err := fixture.registry.CreateRoom(1, 20)
	require.NoError(t, err)
	_, game, err := fixture.registry.JoinRoom(2, room.ID)
	require.NoError(t, err)
	fixture.backend.games[game.ID].SecretNumber = 42

	conn1 := fixture.dial(t, room.ID, 1)
	conn2 := fixture.dial(t, room.ID, 2)
	for _, conn := range []*websocket.Conn{conn1, conn2} {
		readMessage(t, conn)
		readMessage(t, conn)
	}

	// Each turn is acknowledged on the other connection before the next
	// guess so the session sees them strictly in order.
	sendGuess(t, conn1, 10)
	readMessage(t, conn2)
	sendGuess(t, conn2, 90)
	readMessage(t, conn2)
	sendGuess(t, conn1, 30)
	readMessage(t, conn2)

	// Player 1 reconnects; the fresh binding supersedes the old transport
	// and resynchronizes from the snapshot alone.
	reconn := fixture.dial(t, room.ID, 1)

	assert.Equal(t, handlers.MessageConnectionSuccess, readMessage(t, reconn).Type)
	state := readMessage(t, reconn)
	assert.Equal(t, handlers.MessageGameState, state.Type)
	require.NotNil(t, state.Game)
	assert.Len(t, state.Game.Guesses, 3)
	assert.Equal(t, int64(2), state.Game.CurrentTurn)

	// The superseded transport is closed by the server.
	require.NoError(t, conn1.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := conn1.ReadMessage(); err != nil {
			break
		}
	}

	// Play continues on the new transport.
	sendGuess(t, conn2, 42)
	var end *handlers.ServerMessage
	for end = readMessage(t, reconn); end.Type != handlers.MessageGameEnd; end = readMessage(t, reconn) {
	}
	require.NotNil(t, end.Game.Winner)
	assert.Equal(t, int64(2), *end.Game.Winner)
}
