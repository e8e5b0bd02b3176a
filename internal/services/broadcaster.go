package services

import "guess-duel-backend/internal/models"

// Broadcaster fans accepted session transitions out to every connection bound
// to the room, not only the originator. The websocket gateway implements it.
type Broadcaster interface {
	BroadcastGameStart(roomID string, game *models.GameSnapshot)
	BroadcastTurnUpdate(roomID string, game *models.GameSnapshot, guess *models.Guess)
	BroadcastGameEnd(roomID string, game *models.GameSnapshot, guess *models.Guess)
}
