// Package client is a Go client for the game websocket endpoint. It exposes
// the session as a typed event stream and supervises reconnection with a
// bounded, fixed-interval retry loop; after the attempt budget is spent it
// emits a terminal disconnected event instead of retrying forever.
package client

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"guess-duel-backend/internal/models"
)

type EventType string

const (
	EventConnected    EventType = "connected"
	EventReconnecting EventType = "reconnecting"
	EventDisconnected EventType = "disconnected" // terminal
	EventGameState    EventType = "game_state"
	EventGameStart    EventType = "game_start"
	EventTurnUpdate   EventType = "turn_update"
	EventGameEnd      EventType = "game_end"
	EventError        EventType = "error"
)

type Event struct {
	Type    EventType
	Game    *models.GameSnapshot
	Guess   *models.Guess
	Err     string
	Attempt int
}

type Options struct {
	MaxReconnectAttempts int
	ReconnectInterval    time.Duration
}

const (
	defaultMaxReconnectAttempts = 5
	defaultReconnectInterval    = 2 * time.Second
)

// serverMessage mirrors the gateway's outbound envelope.
type serverMessage struct {
	Type  string               `json:"type"`
	Game  *models.GameSnapshot `json:"game,omitempty"`
	Guess *models.Guess        `json:"guess,omitempty"`
	Error string               `json:"error,omitempty"`
}

type clientMessage struct {
	Type        string `json:"type"`
	GuessNumber *int   `json:"guess_number,omitempty"`
}

type Client struct {
	baseURL string
	roomID  string
	token   string
	opts    Options

	events chan Event

	writeMu sync.Mutex
	conn    *websocket.Conn

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the game endpoint for a room. baseURL is the ws:// or
// wss:// origin; the token rides as a connection parameter.
func Dial(baseURL, roomID, token string, opts *Options) (*Client, error) {
	c := &Client{
		baseURL: baseURL,
		roomID:  roomID,
		token:   token,
		opts: Options{
			MaxReconnectAttempts: defaultMaxReconnectAttempts,
			ReconnectInterval:    defaultReconnectInterval,
		},
		events: make(chan Event, 32),
		closed: make(chan struct{}),
	}
	if opts != nil {
		if opts.MaxReconnectAttempts > 0 {
			c.opts.MaxReconnectAttempts = opts.MaxReconnectAttempts
		}
		if opts.ReconnectInterval > 0 {
			c.opts.ReconnectInterval = opts.ReconnectInterval
		}
	}

	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.conn = conn

	go c.readLoop()

	c.emit(Event{Type: EventConnected})

	return c, nil
}

func (c *Client) dial() (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/api/ws/rooms/%s?token=%s", c.baseURL, c.roomID, c.token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %v", err)
	}
	return conn, nil
}

// Events is the inbound stream. It closes after a terminal disconnect or
// Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// JoinGame requests the current state; the server treats it as idempotent.
func (c *Client) JoinGame() error {
	return c.send(&clientMessage{Type: "JOIN_GAME"})
}

func (c *Client) MakeGuess(value int) error {
	return c.send(&clientMessage{Type: "MAKE_GUESS", GuessNumber: &value})
}

func (c *Client) send(msg *clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
			}

			if !c.reconnect() {
				c.emit(Event{Type: EventDisconnected})
				return
			}
			// Fresh bind: the server pushes a state snapshot, no
			// history replay needed.
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Failed to parse server message: %v", err)
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *serverMessage) {
	switch msg.Type {
	case "CONNECTION_SUCCESS":
		// Connected events are emitted by the dial/reconnect paths.
	case "GAME_STATE":
		c.emit(Event{Type: EventGameState, Game: msg.Game})
	case "GAME_START":
		c.emit(Event{Type: EventGameStart, Game: msg.Game})
	case "TURN_UPDATE":
		c.emit(Event{Type: EventTurnUpdate, Game: msg.Game, Guess: msg.Guess})
	case "GAME_END":
		c.emit(Event{Type: EventGameEnd, Game: msg.Game, Guess: msg.Guess})
	case "ERROR":
		c.emit(Event{Type: EventError, Err: msg.Error})
	default:
		log.Printf("Unknown message type: %s", msg.Type)
	}
}

// reconnect runs the supervised retry loop: a bounded number of attempts at
// a fixed interval. Returns false once the budget is exhausted.
func (c *Client) reconnect() bool {
	for attempt := 1; attempt <= c.opts.MaxReconnectAttempts; attempt++ {
		c.emit(Event{Type: EventReconnecting, Attempt: attempt})

		select {
		case <-c.closed:
			return false
		case <-time.After(c.opts.ReconnectInterval):
		}

		conn, err := c.dial()
		if err != nil {
			continue
		}

		c.writeMu.Lock()
		c.conn = conn
		c.writeMu.Unlock()

		c.emit(Event{Type: EventConnected, Attempt: attempt})
		return true
	}
	return false
}

func (c *Client) emit(event Event) {
	select {
	case c.events <- event:
	default:
		log.Printf("Event buffer full, dropping %s", event.Type)
	}
}
