package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"guess-duel-backend/internal/models"
)

const (
	RoomEventCreated   = "room_created"
	RoomEventFilled    = "room_filled"
	RoomEventCompleted = "room_completed"
	RoomEventCancelled = "room_cancelled"
)

// RoomEvent is pushed on every room-state change so collaborators can stream
// instead of polling the room list.
type RoomEvent struct {
	Type string       `json:"type"`
	Room *models.Room `json:"room"`
}

// RoomRegistry owns room records: creation, matchmaking joins, listing and
// cancellation. Once a second participant joins, the registry hands the pair
// off to exactly one game session.
type RoomRegistry struct {
	store  RoomStore
	ledger Ledger
	engine *GameEngine
	limits models.BetLimits

	// serializes OPEN->FULL transitions so two joins cannot both claim the
	// second seat
	mu sync.Mutex
}

func NewRoomRegistry(store RoomStore, ledger Ledger, engine *GameEngine, limits models.BetLimits) *RoomRegistry {
	return &RoomRegistry{
		store:  store,
		ledger: ledger,
		engine: engine,
		limits: limits,
	}
}

func (r *RoomRegistry) Limits() models.BetLimits {
	return r.limits
}

// CreateRoom validates the bet, escrows the creator's stake and opens a room.
// The escrow is a hold, not a bet transaction; a room that never fills is
// cancelled with a pure un-escrow and no ledger entry.
func (r *RoomRegistry) CreateRoom(creator int64, betAmount float64) (*models.Room, error) {
	if err := r.limits.Validate(betAmount); err != nil {
		return nil, err
	}

	if err := r.ledger.HoldFunds(creator, betAmount); err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:        models.GenerateRoomID(),
		Creator:   creator,
		BetAmount: betAmount,
		Status:    models.RoomStatusOpen,
		Player1:   creator,
		CreatedAt: time.Now(),
	}

	if err := r.store.SaveRoom(room); err != nil {
		if releaseErr := r.ledger.ReleaseHold(creator, betAmount); releaseErr != nil {
			log.Printf("Failed to release hold after room save failure: %v", releaseErr)
		}
		return nil, fmt.Errorf("failed to save room: %v", err)
	}

	r.publish(RoomEventCreated, room)

	return room, nil
}

// JoinRoom escrows the joiner's stake, fills the room and starts its game
// session. Validation failures leave room, ledger and session state untouched.
func (r *RoomRegistry) JoinRoom(participant int64, roomID string) (*models.Room, *models.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.store.GetRoom(roomID)
	if err != nil {
		return nil, nil, err
	}

	if room.Status != models.RoomStatusOpen {
		return nil, nil, models.ErrRoomNotOpen
	}
	if room.HasPlayer(participant) {
		return nil, nil, models.ErrSelfJoin
	}

	if err := r.ledger.HoldFunds(participant, room.BetAmount); err != nil {
		return nil, nil, err
	}

	room.Player2 = participant
	room.Status = models.RoomStatusFull

	game, err := r.engine.StartGame(room)
	if err != nil {
		r.releaseJoin(participant, room)
		return nil, nil, fmt.Errorf("failed to start game: %v", err)
	}

	room.GameID = game.ID
	if err := r.store.SaveRoom(room); err != nil {
		r.releaseJoin(participant, room)
		return nil, nil, fmt.Errorf("failed to save room: %v", err)
	}

	r.publish(RoomEventFilled, room)

	return room, game, nil
}

func (r *RoomRegistry) releaseJoin(participant int64, room *models.Room) {
	if err := r.ledger.ReleaseHold(participant, room.BetAmount); err != nil {
		log.Printf("Failed to release hold after join failure: %v", err)
	}
	room.Player2 = 0
	room.Status = models.RoomStatusOpen
	room.GameID = ""
}

func (r *RoomRegistry) GetRoom(roomID string) (*models.Room, error) {
	return r.store.GetRoom(roomID)
}

// ListRooms is a read-only projection with no side effects.
func (r *RoomRegistry) ListRooms(status models.RoomStatus) ([]*models.Room, error) {
	return r.store.ListRooms(status)
}

// ListRoomsFor returns rooms the user participates in.
func (r *RoomRegistry) ListRoomsFor(userID int64) ([]*models.Room, error) {
	rooms, err := r.store.ListRooms("")
	if err != nil {
		return nil, err
	}

	mine := make([]*models.Room, 0)
	for _, room := range rooms {
		if room.HasPlayer(userID) {
			mine = append(mine, room)
		}
	}
	return mine, nil
}

// CancelRoom lets the creator withdraw an OPEN room. The creator's escrow is
// released as a pure un-escrow with no ledger entry.
func (r *RoomRegistry) CancelRoom(requester int64, roomID string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.store.GetRoom(roomID)
	if err != nil {
		return nil, err
	}

	if room.Creator != requester {
		return nil, models.ErrNotAParticipant
	}
	if room.Status != models.RoomStatusOpen {
		return nil, models.ErrRoomNotOpen
	}

	if err := r.ledger.ReleaseHold(room.Creator, room.BetAmount); err != nil {
		return nil, fmt.Errorf("failed to release escrow: %v", err)
	}

	room.Status = models.RoomStatusCancelled
	if err := r.store.SaveRoom(room); err != nil {
		return nil, fmt.Errorf("failed to save room: %v", err)
	}

	r.publish(RoomEventCancelled, room)

	return room, nil
}

// CompleteRoom marks a FULL room COMPLETED once its game session terminates.
func (r *RoomRegistry) CompleteRoom(roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, err := r.store.GetRoom(roomID)
	if err != nil {
		return err
	}
	if room.Status != models.RoomStatusFull {
		return nil
	}

	room.Status = models.RoomStatusCompleted
	if err := r.store.SaveRoom(room); err != nil {
		return fmt.Errorf("failed to save room: %v", err)
	}

	r.publish(RoomEventCompleted, room)

	return nil
}

func (r *RoomRegistry) publish(eventType string, room *models.Room) {
	if err := r.store.PublishRoomEvent(&RoomEvent{Type: eventType, Room: room}); err != nil {
		log.Printf("Failed to publish room event %s: %v", eventType, err)
	}
}
