package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"guess-duel-backend/internal/models"
	"guess-duel-backend/internal/services"
)

type RoomHandler struct {
	registry *services.RoomRegistry
}

func NewRoomHandler(registry *services.RoomRegistry) *RoomHandler {
	return &RoomHandler{registry: registry}
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID := c.GetInt64("user_id")

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	room, err := h.registry.CreateRoom(userID, req.BetAmount)
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Room created successfully",
		"room":    room,
	})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	status := models.RoomStatus(c.Query("status"))

	rooms, err := h.registry.ListRooms(status)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.registry.GetRoom(c.Param("room_id"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room": room})
}

func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID := c.GetInt64("user_id")

	room, game, err := h.registry.JoinRoom(userID, c.Param("room_id"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully joined the room",
		"room":    room,
		"game":    game.Snapshot(),
	})
}

func (h *RoomHandler) CancelRoom(c *gin.Context) {
	userID := c.GetInt64("user_id")

	room, err := h.registry.CancelRoom(userID, c.Param("room_id"))
	if err != nil {
		c.JSON(errStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Room cancelled",
		"room":    room,
	})
}

func (h *RoomHandler) MyRooms(c *gin.Context) {
	userID := c.GetInt64("user_id")

	rooms, err := h.registry.ListRoomsFor(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list rooms"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (h *RoomHandler) BetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Limits())
}

// errStatus maps the error taxonomy onto HTTP statuses; unknown errors are
// internal.
func errStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotAParticipant):
		return http.StatusForbidden
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidBet),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrRoomNotOpen),
		errors.Is(err, models.ErrSelfJoin),
		errors.Is(err, models.ErrNotYourTurn),
		errors.Is(err, models.ErrSessionCompleted),
		errors.Is(err, models.ErrInvalidGuess):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
