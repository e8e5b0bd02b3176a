package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"guess-duel-backend/internal/config"
	"guess-duel-backend/internal/models"
)

// RedisService is the authoritative store: wallets with atomic escrow and
// settlement, room and game records, the transaction ledger, rate limits and
// the room-event pub/sub channel.
type RedisService struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisService(cfg *config.Config) (*RedisService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}

	return &RedisService{
		client: client,
		ctx:    ctx,
	}, nil
}

func (s *RedisService) Close() error {
	return s.client.Close()
}

// --- Wallets ---

const defaultStartingBalance = 1000 // credited to wallets created on first read

func (s *RedisService) GetWallet(userID int64) (*models.Wallet, error) {
	key := fmt.Sprintf(KeyWallet, userID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err == redis.Nil {
		wallet := &models.Wallet{
			UserID:  userID,
			Balance: defaultStartingBalance,
		}
		if err := s.SaveWallet(wallet); err != nil {
			return nil, fmt.Errorf("failed to create wallet: %v", err)
		}
		return wallet, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %v", err)
	}

	var wallet models.Wallet
	if err := json.Unmarshal([]byte(data), &wallet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %v", err)
	}

	return &wallet, nil
}

func (s *RedisService) SaveWallet(wallet *models.Wallet) error {
	key := fmt.Sprintf(KeyWallet, wallet.UserID)

	data, err := json.Marshal(wallet)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %v", err)
	}

	return s.client.Set(s.ctx, key, data, 0).Err()
}

// holdFundsScript places an escrow hold: the available balance shrinks by the
// amount while the total balance is untouched. The check and the mutation run
// as one unit so concurrent holds cannot both pass on insufficient funds.
var holdFundsScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	if wallet.balance - wallet.locked_balance < amount then
		return redis.error_reply("insufficient funds")
	end

	wallet.locked_balance = wallet.locked_balance + amount

	redis.call("SET", key, cjson.encode(wallet))
	return "OK"
`)

func (s *RedisService) HoldFunds(userID int64, amount float64) error {
	key := fmt.Sprintf(KeyWallet, userID)
	err := holdFundsScript.Run(s.ctx, s.client, []string{key}, amount).Err()
	if err != nil {
		if strings.Contains(err.Error(), "insufficient funds") {
			return models.ErrInsufficientFunds
		}
		return fmt.Errorf("failed to hold funds: %v", err)
	}
	return nil
}

// releaseHoldScript undoes an escrow hold without posting any ledger entry.
var releaseHoldScript = redis.NewScript(`
	local key = KEYS[1]
	local amount = tonumber(ARGV[1])

	local data = redis.call("GET", key)
	if not data then
		return redis.error_reply("wallet not found")
	end

	local wallet = cjson.decode(data)

	wallet.locked_balance = wallet.locked_balance - amount
	if wallet.locked_balance < 0 then
		wallet.locked_balance = 0
	end

	redis.call("SET", key, cjson.encode(wallet))
	return "OK"
`)

func (s *RedisService) ReleaseHold(userID int64, amount float64) error {
	key := fmt.Sprintf(KeyWallet, userID)
	if err := releaseHoldScript.Run(s.ctx, s.client, []string{key}, amount).Err(); err != nil {
		return fmt.Errorf("failed to release hold: %v", err)
	}
	return nil
}

// settleWagerScript consumes both escrow holds and pays the pooled stake to
// the winner as one atomic unit. A per-game marker makes retries no-ops, so a
// repeated settlement can never double-pay.
var settleWagerScript = redis.NewScript(`
	local marker = KEYS[1]
	local winnerKey = KEYS[2]
	local loserKey = KEYS[3]
	local amount = tonumber(ARGV[1])
	local winnerID = ARGV[2]
	local ttl = tonumber(ARGV[3])

	if redis.call("EXISTS", marker) == 1 then
		return "ALREADY"
	end

	local winnerData = redis.call("GET", winnerKey)
	local loserData = redis.call("GET", loserKey)
	if not winnerData or not loserData then
		return redis.error_reply("wallet not found")
	end

	local winner = cjson.decode(winnerData)
	local loser = cjson.decode(loserData)

	winner.locked_balance = winner.locked_balance - amount
	if winner.locked_balance < 0 then
		winner.locked_balance = 0
	end
	winner.balance = winner.balance + amount
	winner.total_wagered = winner.total_wagered + amount
	winner.total_won = winner.total_won + (amount * 2)

	loser.locked_balance = loser.locked_balance - amount
	if loser.locked_balance < 0 then
		loser.locked_balance = 0
	end
	loser.balance = loser.balance - amount
	loser.total_wagered = loser.total_wagered + amount

	redis.call("SET", winnerKey, cjson.encode(winner))
	redis.call("SET", loserKey, cjson.encode(loser))
	redis.call("SET", marker, winnerID, "EX", ttl)
	return "OK"
`)

// SettleWager applies the wager outcome for a completed game: both stakes are
// consumed and the winner is credited twice the bet amount. Returns false when
// the game was already settled.
func (s *RedisService) SettleWager(gameID string, winnerID, loserID int64, amount float64) (bool, error) {
	keys := []string{
		fmt.Sprintf(KeySettlement, gameID),
		fmt.Sprintf(KeyWallet, winnerID),
		fmt.Sprintf(KeyWallet, loserID),
	}

	result, err := settleWagerScript.Run(s.ctx, s.client, keys,
		amount, winnerID, int(TTLSettlement.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("failed to settle wager: %v", err)
	}

	return result == "OK", nil
}

// MarkRefunded records that a game's escrow was refunded. Returns false when
// a refund was already applied for this game.
func (s *RedisService) MarkRefunded(gameID string) (bool, error) {
	key := fmt.Sprintf(KeyRefund, gameID)
	ok, err := s.client.SetNX(s.ctx, key, "1", TTLSettlement).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark refund: %v", err)
	}
	return ok, nil
}

// --- Transactions ---

func (s *RedisService) SaveTransaction(tx *models.Transaction) error {
	txKey := fmt.Sprintf(KeyTransaction, tx.ID)

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %v", err)
	}

	if err := s.client.Set(s.ctx, txKey, data, TTLTransaction).Err(); err != nil {
		return fmt.Errorf("failed to save transaction: %v", err)
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, tx.UserID)
	score := float64(tx.CreatedAt.Unix())

	if err := s.client.ZAdd(s.ctx, userTxKey, redis.Z{
		Score:  score,
		Member: tx.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to user transactions: %v", err)
	}

	// Keep only last 100 transactions
	s.client.ZRemRangeByRank(s.ctx, userTxKey, 0, -101)

	return nil
}

func (s *RedisService) GetUserTransactions(userID int64, limit int64) ([]*models.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	userTxKey := fmt.Sprintf(KeyUserTransactions, userID)

	txIDs, err := s.client.ZRevRange(s.ctx, userTxKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction IDs: %v", err)
	}

	var transactions []*models.Transaction
	for _, txID := range txIDs {
		txKey := fmt.Sprintf(KeyTransaction, txID)

		data, err := s.client.Get(s.ctx, txKey).Result()
		if err != nil {
			continue
		}

		var tx models.Transaction
		if err := json.Unmarshal([]byte(data), &tx); err != nil {
			continue
		}

		transactions = append(transactions, &tx)
	}

	return transactions, nil
}

// --- Rooms ---

func (s *RedisService) SaveRoom(room *models.Room) error {
	key := fmt.Sprintf(KeyRoom, room.ID)

	room.UpdatedAt = time.Now()

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %v", err)
	}

	if err := s.client.Set(s.ctx, key, data, TTLRoom).Err(); err != nil {
		return fmt.Errorf("failed to save room: %v", err)
	}

	score := float64(room.CreatedAt.Unix())
	if err := s.client.ZAdd(s.ctx, KeyRoomIndex, redis.Z{
		Score:  score,
		Member: room.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to index room: %v", err)
	}

	return nil
}

func (s *RedisService) GetRoom(roomID string) (*models.Room, error) {
	key := fmt.Sprintf(KeyRoom, roomID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err == redis.Nil {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %v", err)
	}

	var room models.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %v", err)
	}

	return &room, nil
}

// ListRooms returns rooms newest first, optionally filtered by status.
// Index entries whose room record expired are pruned as they are seen.
func (s *RedisService) ListRooms(status models.RoomStatus) ([]*models.Room, error) {
	roomIDs, err := s.client.ZRevRange(s.ctx, KeyRoomIndex, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %v", err)
	}

	if len(roomIDs) == 0 {
		return []*models.Room{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(roomIDs))
	for i, roomID := range roomIDs {
		cmds[i] = pipe.Get(s.ctx, fmt.Sprintf(KeyRoom, roomID))
	}

	if _, err := pipe.Exec(s.ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("pipeline execution failed: %v", err)
	}

	rooms := make([]*models.Room, 0, len(roomIDs))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err == redis.Nil {
			s.client.ZRem(s.ctx, KeyRoomIndex, roomIDs[i])
			continue
		}
		if err != nil {
			continue
		}

		var room models.Room
		if err := json.Unmarshal([]byte(data), &room); err != nil {
			continue
		}

		if status != "" && room.Status != status {
			continue
		}
		rooms = append(rooms, &room)
	}

	return rooms, nil
}

// --- Room events (pub/sub) ---

func (s *RedisService) PublishRoomEvent(event *RoomEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal room event: %v", err)
	}
	return s.client.Publish(s.ctx, ChannelRoomEvents, data).Err()
}

// SubscribeRoomEvents streams room-state changes so collaborators can push
// instead of polling the room list. The channel closes when ctx is done.
func (s *RedisService) SubscribeRoomEvents(ctx context.Context) <-chan *RoomEvent {
	sub := s.client.Subscribe(ctx, ChannelRoomEvents)
	events := make(chan *RoomEvent, 16)

	go func() {
		defer close(events)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event RoomEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case events <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

// --- Games ---

func (s *RedisService) SaveGame(game *models.Game) error {
	key := fmt.Sprintf(KeyGame, game.ID)

	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %v", err)
	}

	if err := s.client.Set(s.ctx, key, data, TTLGame).Err(); err != nil {
		return fmt.Errorf("failed to save game: %v", err)
	}

	return nil
}

func (s *RedisService) GetGame(gameID string) (*models.Game, error) {
	key := fmt.Sprintf(KeyGame, gameID)

	data, err := s.client.Get(s.ctx, key).Result()
	if err == redis.Nil {
		return nil, models.ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %v", err)
	}

	var game models.Game
	if err := json.Unmarshal([]byte(data), &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %v", err)
	}

	return &game, nil
}

// --- Rate limiting ---

func (s *RedisService) CheckRateLimit(userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, userID, action)

	count, err := s.client.Incr(s.ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check rate limit: %v", err)
	}

	if count == 1 {
		s.client.Expire(s.ctx, key, window)
	}

	return count <= int64(limit), nil
}

// --- Test helpers ---

func (s *RedisService) DeleteWallet(userID int64) error {
	return s.client.Del(s.ctx, fmt.Sprintf(KeyWallet, userID)).Err()
}

func (s *RedisService) DeleteRoom(roomID string) error {
	s.client.ZRem(s.ctx, KeyRoomIndex, roomID)
	return s.client.Del(s.ctx, fmt.Sprintf(KeyRoom, roomID)).Err()
}

func (s *RedisService) DeleteGame(gameID string) error {
	s.client.Del(s.ctx, fmt.Sprintf(KeySettlement, gameID))
	s.client.Del(s.ctx, fmt.Sprintf(KeyRefund, gameID))
	return s.client.Del(s.ctx, fmt.Sprintf(KeyGame, gameID)).Err()
}
