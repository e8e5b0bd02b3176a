package services

import (
	"guess-duel-backend/internal/models"
)

// Ledger is the wallet collaborator contract the game core depends on. The
// Redis-backed implementation satisfies it; tests substitute an in-memory one.
// Every mutation must be atomic per participant so concurrent joins against
// one balance cannot both succeed when funds cover only one of them.
type Ledger interface {
	GetWallet(userID int64) (*models.Wallet, error)
	HoldFunds(userID int64, amount float64) error
	ReleaseHold(userID int64, amount float64) error
	SettleWager(gameID string, winnerID, loserID int64, amount float64) (bool, error)
	MarkRefunded(gameID string) (bool, error)
	SaveTransaction(tx *models.Transaction) error
}

// RoomStore persists room records and publishes room-state changes.
type RoomStore interface {
	SaveRoom(room *models.Room) error
	GetRoom(roomID string) (*models.Room, error)
	ListRooms(status models.RoomStatus) ([]*models.Room, error)
	PublishRoomEvent(event *RoomEvent) error
}

// GameStore persists game snapshots so session state survives restarts and
// disconnects until the game completes.
type GameStore interface {
	SaveGame(game *models.Game) error
	GetGame(gameID string) (*models.Game, error)
}
