package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"guess-duel-backend/internal/models"
	"guess-duel-backend/internal/services"
)

type WalletHandler struct {
	redisService *services.RedisService
}

func NewWalletHandler(redisService *services.RedisService) *WalletHandler {
	return &WalletHandler{redisService: redisService}
}

func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID := c.GetInt64("user_id")

	wallet, err := h.redisService.GetWallet(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get wallet",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		Balance:       wallet.Balance,
		LockedBalance: wallet.LockedBalance,
		TotalWagered:  wallet.TotalWagered,
		TotalWon:      wallet.TotalWon,
		Available:     wallet.Available(),
	})
}

func (h *WalletHandler) GetTransactions(c *gin.Context) {
	userID := c.GetInt64("user_id")

	limitStr := c.DefaultQuery("limit", "50")
	limit, err := strconv.ParseInt(limitStr, 10, 64)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	transactions, err := h.redisService.GetUserTransactions(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to fetch transactions",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"count":        len(transactions),
	})
}
