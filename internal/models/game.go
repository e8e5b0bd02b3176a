package models

import "time"

type GameStatus string

const (
	GameStatusInProgress GameStatus = "IN_PROGRESS"
	GameStatusCompleted  GameStatus = "COMPLETED"
)

type Feedback string

const (
	FeedbackUp      Feedback = "UP"      // guess is below the secret
	FeedbackDown    Feedback = "DOWN"    // guess is above the secret
	FeedbackCorrect Feedback = "CORRECT" // guess equals the secret
)

// ComputeFeedback maps a guess onto directional feedback. The ordering is
// fixed: equality wins, then UP for low guesses, DOWN for high ones.
func ComputeFeedback(secret, guess int) Feedback {
	switch {
	case guess == secret:
		return FeedbackCorrect
	case guess < secret:
		return FeedbackUp
	default:
		return FeedbackDown
	}
}

// Guess is immutable once recorded; guesses form an append-only,
// turn-alternating sequence.
type Guess struct {
	ID          string    `json:"id" redis:"id"`
	Player      int64     `json:"player" redis:"player"`
	GuessNumber int       `json:"guess_number" redis:"guess_number"`
	Feedback    Feedback  `json:"feedback" redis:"feedback"`
	CreatedAt   time.Time `json:"created_at" redis:"created_at"`
}

// Game is the live guessing session bound to a FULL room. SecretNumber is
// persisted but never serialized onto the wire; clients only ever see the
// Snapshot projection.
type Game struct {
	ID           string     `json:"id" redis:"id"`
	RoomID       string     `json:"room_id" redis:"room_id"`
	Status       GameStatus `json:"status" redis:"status"`
	Player1      int64      `json:"player1" redis:"player1"`
	Player2      int64      `json:"player2" redis:"player2"`
	SecretNumber int        `json:"secret_number" redis:"secret_number"`
	CurrentTurn  int64      `json:"current_turn" redis:"current_turn"`
	BetAmount    float64    `json:"bet_amount" redis:"bet_amount"`
	Guesses      []*Guess   `json:"guesses" redis:"guesses"`
	Winner       int64      `json:"winner,omitempty" redis:"winner"`
	StartedAt    time.Time  `json:"started_at" redis:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty" redis:"ended_at"`
}

// SeatOf returns the participant's seat (0 or 1) and whether they are part
// of the game at all.
func (g *Game) SeatOf(userID int64) (int, bool) {
	switch userID {
	case g.Player1:
		return 0, true
	case g.Player2:
		return 1, true
	}
	return 0, false
}

// OtherPlayer returns the opponent of the given participant.
func (g *Game) OtherPlayer(userID int64) int64 {
	if userID == g.Player1 {
		return g.Player2
	}
	return g.Player1
}

// GameSnapshot is the stable game payload carried by every outbound message
// (GAME_STATE, GAME_START, TURN_UPDATE, GAME_END). It deliberately omits the
// secret number.
type GameSnapshot struct {
	ID          string     `json:"id"`
	RoomID      string     `json:"room_id"`
	Status      GameStatus `json:"status"`
	Player1     int64      `json:"player1"`
	Player2     int64      `json:"player2"`
	CurrentTurn int64      `json:"current_turn"`
	BetAmount   float64    `json:"bet_amount"`
	Guesses     []*Guess   `json:"guesses"`
	Winner      *int64     `json:"winner,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func (g *Game) Snapshot() *GameSnapshot {
	snap := &GameSnapshot{
		ID:          g.ID,
		RoomID:      g.RoomID,
		Status:      g.Status,
		Player1:     g.Player1,
		Player2:     g.Player2,
		CurrentTurn: g.CurrentTurn,
		BetAmount:   g.BetAmount,
		Guesses:     make([]*Guess, len(g.Guesses)),
		StartedAt:   g.StartedAt,
		EndedAt:     g.EndedAt,
	}
	copy(snap.Guesses, g.Guesses)
	if g.Winner != 0 {
		winner := g.Winner
		snap.Winner = &winner
	}
	return snap
}

// GuessRange is the inclusive window the secret is drawn from and guesses
// must land in.
type GuessRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (r GuessRange) Contains(value int) bool {
	return value >= r.Min && value <= r.Max
}

func (r GuessRange) Size() int {
	return r.Max - r.Min + 1
}
