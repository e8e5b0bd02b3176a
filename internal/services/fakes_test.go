package services_test

import (
	"fmt"
	"sync"

	"guess-duel-backend/internal/models"
	"guess-duel-backend/internal/services"
)

// memLedger is an in-memory stand-in for the Redis-backed wallet ledger.
type memLedger struct {
	mu           sync.Mutex
	wallets      map[int64]*models.Wallet
	transactions []*models.Transaction
	settled      map[string]bool
	refunded     map[string]bool

	settleCalls int
	failSettles int // fail this many SettleWager calls before succeeding
}

func newMemLedger(startingBalance float64, userIDs ...int64) *memLedger {
	l := &memLedger{
		wallets:  make(map[int64]*models.Wallet),
		settled:  make(map[string]bool),
		refunded: make(map[string]bool),
	}
	for _, id := range userIDs {
		l.wallets[id] = &models.Wallet{UserID: id, Balance: startingBalance}
	}
	return l
}

func (l *memLedger) GetWallet(userID int64) (*models.Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wallet, ok := l.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet not found: %d", userID)
	}
	copied := *wallet
	return &copied, nil
}

func (l *memLedger) HoldFunds(userID int64, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	wallet, ok := l.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %d", userID)
	}
	if wallet.Balance-wallet.LockedBalance < amount {
		return models.ErrInsufficientFunds
	}
	wallet.LockedBalance += amount
	return nil
}

func (l *memLedger) ReleaseHold(userID int64, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	wallet, ok := l.wallets[userID]
	if !ok {
		return fmt.Errorf("wallet not found: %d", userID)
	}
	wallet.LockedBalance -= amount
	if wallet.LockedBalance < 0 {
		wallet.LockedBalance = 0
	}
	return nil
}

func (l *memLedger) SettleWager(gameID string, winnerID, loserID int64, amount float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.settleCalls++
	if l.failSettles > 0 {
		l.failSettles--
		return false, fmt.Errorf("ledger unavailable")
	}

	if l.settled[gameID] {
		return false, nil
	}

	winner, loser := l.wallets[winnerID], l.wallets[loserID]
	if winner == nil || loser == nil {
		return false, fmt.Errorf("wallet not found")
	}

	winner.LockedBalance -= amount
	winner.Balance += amount
	winner.TotalWagered += amount
	winner.TotalWon += amount * 2

	loser.LockedBalance -= amount
	loser.Balance -= amount
	loser.TotalWagered += amount

	l.settled[gameID] = true
	return true, nil
}

func (l *memLedger) MarkRefunded(gameID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refunded[gameID] {
		return false, nil
	}
	l.refunded[gameID] = true
	return true, nil
}

func (l *memLedger) SaveTransaction(tx *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transactions = append(l.transactions, tx)
	return nil
}

func (l *memLedger) transactionsOfType(txType models.TransactionType) []*models.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Transaction
	for _, tx := range l.transactions {
		if tx.Type == txType {
			out = append(out, tx)
		}
	}
	return out
}

// memStore is an in-memory room and game store. Saved records share pointers
// with the engine so tests can pin a game's secret deterministically.
type memStore struct {
	mu     sync.Mutex
	rooms  map[string]*models.Room
	games  map[string]*models.Game
	events []*services.RoomEvent

	failSaveGame bool
}

func newMemStore() *memStore {
	return &memStore{
		rooms: make(map[string]*models.Room),
		games: make(map[string]*models.Game),
	}
}

func (s *memStore) SaveRoom(room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return nil
}

func (s *memStore) GetRoom(roomID string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	return room, nil
}

func (s *memStore) ListRooms(status models.RoomStatus) ([]*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]*models.Room, 0)
	for _, room := range s.rooms {
		if status == "" || room.Status == status {
			rooms = append(rooms, room)
		}
	}
	return rooms, nil
}

func (s *memStore) PublishRoomEvent(event *services.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) SaveGame(game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaveGame {
		return fmt.Errorf("store unavailable")
	}
	s.games[game.ID] = game
	return nil
}

func (s *memStore) GetGame(gameID string) (*models.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, models.ErrGameNotFound
	}
	return game, nil
}

// recordingBroadcaster captures fan-out calls in order.
type recordingBroadcaster struct {
	mu     sync.Mutex
	starts []string
	turns  []*models.Guess
	ends   []*models.Guess
}

func (b *recordingBroadcaster) BroadcastGameStart(roomID string, game *models.GameSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts = append(b.starts, roomID)
}

func (b *recordingBroadcaster) BroadcastTurnUpdate(roomID string, game *models.GameSnapshot, guess *models.Guess) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, guess)
}

func (b *recordingBroadcaster) BroadcastGameEnd(roomID string, game *models.GameSnapshot, guess *models.Guess) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends = append(b.ends, guess)
}
