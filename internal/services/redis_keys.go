package services

import "time"

const (
	KeyWallet           = "wallet:%d"
	KeyRoom             = "room:%s"
	KeyRoomIndex        = "rooms:index"
	KeyGame             = "game:%s"
	KeyTransaction      = "transaction:%s"
	KeyUserTransactions = "user:%d:transactions"
	KeySettlement       = "settlement:%s"
	KeyRefund           = "refund:%s"
	KeyRateLimit        = "ratelimit:%d:%s"

	ChannelRoomEvents = "rooms:events"

	TTLRoom        = 7 * 24 * time.Hour
	TTLGame        = 7 * 24 * time.Hour
	TTLTransaction = 30 * 24 * time.Hour
	TTLSettlement  = 30 * 24 * time.Hour

	DefaultRateLimitGuesses = 60 // max 60 guesses per minute
	DefaultRateLimitRooms   = 10 // max 10 room creations/joins per minute
)
