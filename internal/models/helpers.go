package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func GenerateRoomID() string {
	return fmt.Sprintf("room_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateGameID() string {
	return fmt.Sprintf("game_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateGuessID() string {
	return fmt.Sprintf("guess_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func GenerateTransactionID() string {
	return fmt.Sprintf("tx_%s_%d",
		time.Now().Format("20060102"),
		uuid.New().ID())
}

func FormatCurrency(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
