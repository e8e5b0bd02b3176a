package models

import (
	"fmt"
	"math"
	"time"
)

type RoomStatus string

const (
	RoomStatusOpen      RoomStatus = "OPEN"
	RoomStatusFull      RoomStatus = "FULL"
	RoomStatusCompleted RoomStatus = "COMPLETED"
	RoomStatusCancelled RoomStatus = "CANCELLED"
)

// Room is a matchmaking unit pairing up to two participants around a fixed
// wager. The creator always holds seat 0 (Player1).
type Room struct {
	ID        string     `json:"id" redis:"id"`
	Creator   int64      `json:"creator" redis:"creator"`
	BetAmount float64    `json:"bet_amount" redis:"bet_amount"`
	Status    RoomStatus `json:"status" redis:"status"`
	Player1   int64      `json:"player1" redis:"player1"`
	Player2   int64      `json:"player2,omitempty" redis:"player2"`
	GameID    string     `json:"game_id,omitempty" redis:"game_id"`
	CreatedAt time.Time  `json:"created_at" redis:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" redis:"updated_at"`
}

func (r *Room) PlayersCount() int {
	count := 0
	if r.Player1 != 0 {
		count++
	}
	if r.Player2 != 0 {
		count++
	}
	return count
}

func (r *Room) IsFull() bool {
	return r.PlayersCount() == 2
}

func (r *Room) HasPlayer(userID int64) bool {
	return userID != 0 && (r.Player1 == userID || r.Player2 == userID)
}

// BetLimits is the configured bet window; amounts must land on a step
// boundary counted from Min.
type BetLimits struct {
	Min  float64 `json:"min_bet"`
	Max  float64 `json:"max_bet"`
	Step float64 `json:"step"`
}

const betStepEpsilon = 1e-9

func (l BetLimits) Validate(amount float64) error {
	if amount < l.Min {
		return fmt.Errorf("%w: must be at least %.2f", ErrInvalidBet, l.Min)
	}
	if amount > l.Max {
		return fmt.Errorf("%w: must not exceed %.2f", ErrInvalidBet, l.Max)
	}
	if l.Step > 0 {
		rem := math.Mod(amount-l.Min, l.Step)
		if rem > betStepEpsilon && l.Step-rem > betStepEpsilon {
			return fmt.Errorf("%w: must be in increments of %.2f starting from %.2f",
				ErrInvalidBet, l.Step, l.Min)
		}
	}
	return nil
}

type CreateRoomRequest struct {
	BetAmount float64 `json:"bet_amount" binding:"required"`
}
