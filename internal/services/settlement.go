package services

import (
	"fmt"
	"log"
	"time"

	"guess-duel-backend/internal/models"
)

const (
	settleAttempts   = 3
	settleRetryDelay = 100 * time.Millisecond
)

// SettlementEngine moves wagered funds at game termination. Settling and
// refunding are idempotent per game id: a retried call for an already-settled
// game is a no-op, never a double payment.
type SettlementEngine struct {
	ledger Ledger
}

func NewSettlementEngine(ledger Ledger) *SettlementEngine {
	return &SettlementEngine{ledger: ledger}
}

// Settle consumes both escrowed stakes and credits the winner with twice the
// bet amount as one atomic unit, then records two bet transactions and one
// win transaction. The ledger call is retried a bounded number of times;
// exhaustion surfaces LedgerFailure so the session can halt instead of
// risking fund loss.
func (se *SettlementEngine) Settle(room *models.Room, game *models.Game, winnerID int64) error {
	loserID := game.OtherPlayer(winnerID)

	var applied bool
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		applied, err = se.ledger.SettleWager(game.ID, winnerID, loserID, room.BetAmount)
		if err == nil {
			break
		}
		log.Printf("Settlement attempt %d/%d for game %s failed: %v",
			attempt, settleAttempts, game.ID, err)
		if attempt < settleAttempts {
			time.Sleep(settleRetryDelay * time.Duration(attempt))
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrLedgerFailure, err)
	}

	if !applied {
		// Already settled by an earlier call.
		return nil
	}

	se.recordTransaction(winnerID, models.TransactionTypeBet, room.BetAmount, game.ID,
		fmt.Sprintf("Stake on room %s", room.ID))
	se.recordTransaction(loserID, models.TransactionTypeBet, room.BetAmount, game.ID,
		fmt.Sprintf("Stake on room %s", room.ID))
	se.recordTransaction(winnerID, models.TransactionTypeWin, room.BetAmount*2, game.ID,
		fmt.Sprintf("Won %s on room %s", models.FormatCurrency(room.BetAmount*2), room.ID))

	return nil
}

// Cancel unwinds a wager on abnormal termination. Holds are released for
// whichever participants had funds escrowed; refund transactions are posted
// only for a FULL room whose session aborted - an unfilled room's cancel is a
// pure un-escrow with no ledger entries.
func (se *SettlementEngine) Cancel(room *models.Room, game *models.Game) error {
	if room.Status == models.RoomStatusOpen {
		if err := se.ledger.ReleaseHold(room.Creator, room.BetAmount); err != nil {
			return fmt.Errorf("%w: %v", models.ErrLedgerFailure, err)
		}
		return nil
	}

	refundID := room.ID
	if game != nil {
		refundID = game.ID
	}

	applied, err := se.ledger.MarkRefunded(refundID)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrLedgerFailure, err)
	}
	if !applied {
		return nil
	}

	for _, userID := range []int64{room.Player1, room.Player2} {
		if userID == 0 {
			continue
		}
		if err := se.ledger.ReleaseHold(userID, room.BetAmount); err != nil {
			return fmt.Errorf("%w: %v", models.ErrLedgerFailure, err)
		}
		se.recordTransaction(userID, models.TransactionTypeRefund, room.BetAmount, refundID,
			fmt.Sprintf("Refunded stake on room %s", room.ID))
	}

	return nil
}

func (se *SettlementEngine) recordTransaction(userID int64, txType models.TransactionType, amount float64, gameID, description string) {
	wallet, err := se.ledger.GetWallet(userID)
	if err != nil {
		log.Printf("Failed to read wallet for transaction record: %v", err)
		return
	}

	balanceBefore := wallet.Balance
	switch txType {
	case models.TransactionTypeWin:
		balanceBefore = wallet.Balance - amount
	case models.TransactionTypeBet:
		balanceBefore = wallet.Balance + amount
	}

	tx := &models.Transaction{
		ID:            models.GenerateTransactionID(),
		UserID:        userID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: balanceBefore,
		BalanceAfter:  wallet.Balance,
		GameID:        gameID,
		Description:   description,
		CreatedAt:     time.Now(),
	}

	if err := se.ledger.SaveTransaction(tx); err != nil {
		log.Printf("Failed to save %s transaction for user %d: %v", txType, userID, err)
	}
}
