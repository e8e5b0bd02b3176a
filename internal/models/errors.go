package models

import "errors"

// Validation failures never mutate room, game or ledger state; handlers map
// these sentinels onto HTTP statuses and websocket ERROR messages.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidBet        = errors.New("invalid bet amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomNotOpen       = errors.New("room is not open")
	ErrSelfJoin          = errors.New("cannot join your own room")
	ErrNotAParticipant   = errors.New("not a participant in this room")
	ErrGameNotFound      = errors.New("game not found")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrSessionCompleted  = errors.New("game is already completed")
	ErrInvalidGuess      = errors.New("guess is out of range")
	ErrLedgerFailure     = errors.New("ledger operation failed")
)
