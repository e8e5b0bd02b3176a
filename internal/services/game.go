package services

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"guess-duel-backend/internal/models"
)

// RoomCompleter closes out the room once its game session terminates. The
// room registry implements it.
type RoomCompleter interface {
	CompleteRoom(roomID string) error
}

// GameEngine owns the live game sessions. Each session serializes its guesses
// behind its own mutex: a submitted guess runs validate -> record -> broadcast
// to completion before the next one on that session is accepted. Sessions for
// different rooms proceed fully in parallel.
type GameEngine struct {
	store      GameStore
	settlement *SettlementEngine
	guessRange models.GuessRange

	broadcaster Broadcaster
	completer   RoomCompleter

	mu     sync.RWMutex
	active map[string]*GameInstance // keyed by game id
	byRoom map[string]*GameInstance
}

// GameInstance pairs a game with the mutex that arbitrates its turns. A
// halted instance failed settlement after retries and accepts nothing further
// until manual intervention.
type GameInstance struct {
	mu     sync.Mutex
	game   *models.Game
	halted bool
}

func NewGameEngine(store GameStore, settlement *SettlementEngine, guessRange models.GuessRange) *GameEngine {
	return &GameEngine{
		store:      store,
		settlement: settlement,
		guessRange: guessRange,
		active:     make(map[string]*GameInstance),
		byRoom:     make(map[string]*GameInstance),
	}
}

// SetBroadcaster wires the websocket gateway in after construction; the
// gateway needs the engine first.
func (ge *GameEngine) SetBroadcaster(b Broadcaster) {
	ge.broadcaster = b
}

func (ge *GameEngine) SetRoomCompleter(c RoomCompleter) {
	ge.completer = c
}

// StartGame creates the session for a freshly filled room: a secret drawn
// uniformly from the guessable range and the turn pointer at seat 0.
func (ge *GameEngine) StartGame(room *models.Room) (*models.Game, error) {
	if !room.IsFull() {
		return nil, fmt.Errorf("room %s is not full", room.ID)
	}

	game := &models.Game{
		ID:           models.GenerateGameID(),
		RoomID:       room.ID,
		Status:       models.GameStatusInProgress,
		Player1:      room.Player1,
		Player2:      room.Player2,
		SecretNumber: ge.guessRange.Min + rand.Intn(ge.guessRange.Size()),
		CurrentTurn:  room.Player1,
		BetAmount:    room.BetAmount,
		Guesses:      []*models.Guess{},
		StartedAt:    time.Now(),
	}

	if err := ge.store.SaveGame(game); err != nil {
		return nil, fmt.Errorf("failed to save game: %v", err)
	}

	instance := &GameInstance{game: game}
	ge.mu.Lock()
	ge.active[game.ID] = instance
	ge.byRoom[room.ID] = instance
	ge.mu.Unlock()

	if ge.broadcaster != nil {
		ge.broadcaster.BroadcastGameStart(room.ID, game.Snapshot())
	}

	return game, nil
}

// instanceForRoom returns the live session for a room, rehydrating an
// in-progress game from the store after a restart.
func (ge *GameEngine) instanceForRoom(room *models.Room) (*GameInstance, error) {
	ge.mu.RLock()
	instance, ok := ge.byRoom[room.ID]
	ge.mu.RUnlock()
	if ok {
		return instance, nil
	}

	if room.GameID == "" {
		return nil, models.ErrGameNotFound
	}

	game, err := ge.store.GetGame(room.GameID)
	if err != nil {
		return nil, err
	}

	ge.mu.Lock()
	defer ge.mu.Unlock()
	if existing, ok := ge.byRoom[room.ID]; ok {
		return existing, nil
	}

	instance = &GameInstance{game: game}
	if game.Status == models.GameStatusInProgress {
		ge.active[game.ID] = instance
		ge.byRoom[room.ID] = instance
	}
	return instance, nil
}

// Snapshot returns the room's current game state, or nil when the room has
// no session yet (still waiting for an opponent).
func (ge *GameEngine) Snapshot(room *models.Room) (*models.GameSnapshot, error) {
	instance, err := ge.instanceForRoom(room)
	if err == models.ErrGameNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.game.Snapshot(), nil
}

// SubmitGuess arbitrates one turn. The session's turn pointer is the sole
// arbitration mechanism; rejections mutate nothing and are reported only to
// the caller, while accepted transitions are broadcast to the whole room.
func (ge *GameEngine) SubmitGuess(room *models.Room, userID int64, value int) (*models.Guess, *models.GameSnapshot, error) {
	instance, err := ge.instanceForRoom(room)
	if err != nil {
		return nil, nil, err
	}

	instance.mu.Lock()
	defer instance.mu.Unlock()

	game := instance.game

	if instance.halted {
		return nil, nil, fmt.Errorf("%w: session halted pending manual settlement", models.ErrLedgerFailure)
	}
	if _, ok := game.SeatOf(userID); !ok {
		return nil, nil, models.ErrNotAParticipant
	}
	if game.CurrentTurn != userID {
		return nil, nil, models.ErrNotYourTurn
	}
	if game.Status != models.GameStatusInProgress {
		return nil, nil, models.ErrSessionCompleted
	}
	if !ge.guessRange.Contains(value) {
		return nil, nil, fmt.Errorf("%w: must be between %d and %d",
			models.ErrInvalidGuess, ge.guessRange.Min, ge.guessRange.Max)
	}

	feedback := models.ComputeFeedback(game.SecretNumber, value)

	guess := &models.Guess{
		ID:          models.GenerateGuessID(),
		Player:      userID,
		GuessNumber: value,
		Feedback:    feedback,
		CreatedAt:   time.Now(),
	}
	game.Guesses = append(game.Guesses, guess)

	if feedback == models.FeedbackCorrect {
		return ge.completeGame(instance, room, guess)
	}

	prevTurn := game.CurrentTurn
	game.CurrentTurn = game.OtherPlayer(userID)

	if err := ge.store.SaveGame(game); err != nil {
		game.Guesses = game.Guesses[:len(game.Guesses)-1]
		game.CurrentTurn = prevTurn
		return nil, nil, fmt.Errorf("failed to save game: %v", err)
	}

	snapshot := game.Snapshot()
	if ge.broadcaster != nil {
		ge.broadcaster.BroadcastTurnUpdate(room.ID, snapshot, guess)
	}

	return guess, snapshot, nil
}

// completeGame runs the terminal transition. Settlement failure after bounded
// retries halts the session rather than risking a double payment; the win
// itself still stands and is broadcast.
func (ge *GameEngine) completeGame(instance *GameInstance, room *models.Room, guess *models.Guess) (*models.Guess, *models.GameSnapshot, error) {
	game := instance.game

	now := time.Now()
	game.Status = models.GameStatusCompleted
	game.Winner = guess.Player
	game.EndedAt = &now

	if err := ge.store.SaveGame(game); err != nil {
		game.Guesses = game.Guesses[:len(game.Guesses)-1]
		game.Status = models.GameStatusInProgress
		game.Winner = 0
		game.EndedAt = nil
		return nil, nil, fmt.Errorf("failed to save game: %v", err)
	}

	if err := ge.settlement.Settle(room, game, guess.Player); err != nil {
		instance.halted = true
		log.Printf("Settlement failed for game %s, session halted: %v", game.ID, err)
	}

	if ge.completer != nil {
		if err := ge.completer.CompleteRoom(room.ID); err != nil {
			log.Printf("Failed to complete room %s: %v", room.ID, err)
		}
	}

	ge.mu.Lock()
	delete(ge.active, game.ID)
	delete(ge.byRoom, room.ID)
	ge.mu.Unlock()

	snapshot := game.Snapshot()
	if ge.broadcaster != nil {
		ge.broadcaster.BroadcastGameEnd(room.ID, snapshot, guess)
	}

	return guess, snapshot, nil
}

// ActiveGames reports how many sessions are currently in progress.
func (ge *GameEngine) ActiveGames() int {
	ge.mu.RLock()
	defer ge.mu.RUnlock()
	return len(ge.active)
}
