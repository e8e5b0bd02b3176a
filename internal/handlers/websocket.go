package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"guess-duel-backend/internal/models"
	"guess-duel-backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	sendBufferSize = 16
)

// Inbound message types.
const (
	MessageJoinGame  = "JOIN_GAME"
	MessageMakeGuess = "MAKE_GUESS"
)

// Outbound message types.
const (
	MessageConnectionSuccess = "CONNECTION_SUCCESS"
	MessageGameState         = "GAME_STATE"
	MessageGameStart         = "GAME_START"
	MessageTurnUpdate        = "TURN_UPDATE"
	MessageGameEnd           = "GAME_END"
	MessageError             = "ERROR"
)

type ClientMessage struct {
	Type        string `json:"type"`
	GuessNumber *int   `json:"guess_number,omitempty"`
}

// ServerMessage is the outbound envelope. The game payload keeps the same
// shape across every message type so clients resynchronize from any of them.
type ServerMessage struct {
	Type    string               `json:"type"`
	RoomID  string               `json:"room_id,omitempty"`
	Room    *models.Room         `json:"room,omitempty"`
	Game    *models.GameSnapshot `json:"game,omitempty"`
	Guess   *models.Guess        `json:"guess,omitempty"`
	Error   string               `json:"error,omitempty"`
	Message string               `json:"message,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type rateLimiter interface {
	CheckRateLimit(userID int64, action string, limit int, window time.Duration) (bool, error)
}

// WebSocketHandler is the connection gateway: it authenticates and binds
// inbound transports to rooms, routes client messages to the game session and
// fans session transitions out to every bound connection. It holds no game
// state of its own.
type WebSocketHandler struct {
	registry *services.RoomRegistry
	engine   *services.GameEngine
	limiter  rateLimiter // optional
	hub      *GameHub
}

// Client is one live transport bound to a (participant, room) pair.
type Client struct {
	userID int64
	roomID string
	conn   *websocket.Conn
	send   chan []byte
}

// GameHub keys bindings by (room, participant). At most one binding per pair
// is live; a reconnect supersedes and closes the previous transport.
type GameHub struct {
	mu    sync.RWMutex
	rooms map[string]map[int64]*Client
}

func NewWebSocketHandler(registry *services.RoomRegistry, engine *services.GameEngine, limiter rateLimiter) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		engine:   engine,
		limiter:  limiter,
		hub: &GameHub{
			rooms: make(map[string]map[int64]*Client),
		},
	}
}

// HandleWebSocket authenticates and validates membership before upgrading;
// a connection is never upgraded to message exchange on failure.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	userID := c.GetInt64("user_id")
	roomID := c.Param("room_id")

	room, err := h.registry.GetRoom(roomID)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}
	if !room.HasPlayer(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": models.ErrNotAParticipant.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client := &Client{
		userID: userID,
		roomID: roomID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.hub.bind(client)

	go h.writePump(client)

	h.deliver(client, &ServerMessage{
		Type:    MessageConnectionSuccess,
		RoomID:  roomID,
		Message: "Connected to game room",
	})
	h.pushState(client)

	h.readPump(client)
}

// bind installs the client, replacing and closing any superseded transport
// for the same (room, participant) pair. Replacement happens under the hub
// lock so no message is delivered to a stale transport after a newer one
// has bound.
func (hub *GameHub) bind(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	clients, ok := hub.rooms[client.roomID]
	if !ok {
		clients = make(map[int64]*Client)
		hub.rooms[client.roomID] = clients
	}

	if prev, ok := clients[client.userID]; ok {
		close(prev.send)
		prev.conn.Close()
		log.Printf("Superseded binding for user %d in room %s", client.userID, client.roomID)
	}

	clients[client.userID] = client
}

// unbind removes the client only if it is still the live binding; a client
// that was superseded by a reconnect leaves the newer binding alone.
func (hub *GameHub) unbind(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	clients, ok := hub.rooms[client.roomID]
	if !ok || clients[client.userID] != client {
		return
	}

	close(client.send)
	delete(clients, client.userID)
	if len(clients) == 0 {
		delete(hub.rooms, client.roomID)
	}
}

func (h *WebSocketHandler) readPump(client *Client) {
	defer func() {
		h.hub.unbind(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(client, "Invalid JSON")
			continue
		}

		h.handleMessage(client, &msg)
	}
}

func (h *WebSocketHandler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleMessage(client *Client, msg *ClientMessage) {
	switch msg.Type {
	case MessageJoinGame:
		// Idempotent: if the session already exists this only re-pushes
		// the current state.
		h.pushState(client)

	case MessageMakeGuess:
		if msg.GuessNumber == nil {
			h.sendError(client, "guess_number is required")
			return
		}
		h.handleGuess(client, *msg.GuessNumber)

	default:
		h.sendError(client, "Unknown message type")
	}
}

func (h *WebSocketHandler) handleGuess(client *Client, value int) {
	if h.limiter != nil {
		allowed, err := h.limiter.CheckRateLimit(client.userID, "guess",
			services.DefaultRateLimitGuesses, time.Minute)
		if err != nil || !allowed {
			h.sendError(client, "Too many guesses. Please wait.")
			return
		}
	}

	room, err := h.registry.GetRoom(client.roomID)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	// Accepted transitions are broadcast by the engine through this
	// handler's Broadcaster side; rejections go only to the originator.
	if _, _, err := h.engine.SubmitGuess(room, client.userID, value); err != nil {
		h.sendError(client, err.Error())
	}
}

// pushState sends the full current game snapshot to one connection, or a
// waiting state while the room is still missing an opponent. This is what
// lets a reconnecting client resynchronize without replaying history.
func (h *WebSocketHandler) pushState(client *Client) {
	room, err := h.registry.GetRoom(client.roomID)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	snapshot, err := h.engine.Snapshot(room)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	msg := &ServerMessage{
		Type:   MessageGameState,
		RoomID: room.ID,
		Game:   snapshot,
	}
	if snapshot == nil {
		msg.Room = room
		msg.Message = "Waiting for opponent"
	}

	h.deliver(client, msg)
}

func (h *WebSocketHandler) sendError(client *Client, message string) {
	h.deliver(client, &ServerMessage{
		Type:  MessageError,
		Error: message,
	})
}

// deliver sends to one connection, but only while it is still the live
// binding for its (room, participant) pair.
func (h *WebSocketHandler) deliver(client *Client, msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()

	if h.hub.rooms[client.roomID][client.userID] != client {
		return
	}

	select {
	case client.send <- data:
	default:
		log.Printf("Send buffer full for user %d in room %s", client.userID, client.roomID)
	}
}

func (h *WebSocketHandler) broadcast(roomID string, msg *ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal broadcast: %v", err)
		return
	}

	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()

	for _, client := range h.hub.rooms[roomID] {
		select {
		case client.send <- data:
		default:
			log.Printf("Send buffer full for user %d in room %s", client.userID, roomID)
		}
	}
}

// --- services.Broadcaster ---

func (h *WebSocketHandler) BroadcastGameStart(roomID string, game *models.GameSnapshot) {
	h.broadcast(roomID, &ServerMessage{
		Type: MessageGameStart,
		Game: game,
	})
}

func (h *WebSocketHandler) BroadcastTurnUpdate(roomID string, game *models.GameSnapshot, guess *models.Guess) {
	h.broadcast(roomID, &ServerMessage{
		Type:  MessageTurnUpdate,
		Game:  game,
		Guess: guess,
	})
}

func (h *WebSocketHandler) BroadcastGameEnd(roomID string, game *models.GameSnapshot, guess *models.Guess) {
	h.broadcast(roomID, &ServerMessage{
		Type:  MessageGameEnd,
		Game:  game,
		Guess: guess,
	})
}
