package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/laxlab/drill-rewards/internal/models"
)

// LedgerBatch is one all-or-nothing ledger application.
type LedgerBatch struct {
	ID           string
	Award        models.PointAward
	Transactions []models.PointTransaction
}

// NewLedgerBatch builds one transaction per non-zero currency amount.
func NewLedgerBatch(userID int64, award models.PointAward, source models.SourceType, description string, now time.Time) *LedgerBatch {
	b := &LedgerBatch{ID: uuid.NewString(), Award: award}
	award.Each(func(c models.Currency, amount int64) {
		b.Transactions = append(b.Transactions, models.PointTransaction{
			BatchID:     b.ID,
			UserID:      userID,
			Currency:    c,
			Amount:      amount,
			SourceType:  source,
			Description: description,
			CreatedAt:   now,
		})
	})
	return b
}

// ApplyAward appends the award to the ledger and increments the wallet in the
// caller's transaction. An empty award writes nothing and returns nil.
func ApplyAward(ctx context.Context, tx Tx, userID int64, award models.PointAward, source models.SourceType, description string, now time.Time) (*LedgerBatch, error) {
	for i, amount := range award {
		if amount < 0 {
			return nil, fmt.Errorf("%w: negative %s amount %d", ErrInvalidAdjustment, models.Currencies[i], amount)
		}
	}
	if award.IsZero() {
		return nil, nil
	}

	batch := NewLedgerBatch(userID, award, source, description, now)
	if err := tx.ApplyLedgerBatch(ctx, batch.Transactions); err != nil {
		return nil, fmt.Errorf("apply ledger batch: %w", err)
	}
	return batch, nil
}

// Reconcile compares wallet balances with the ledger sums; drift is empty
// when every currency balances.
func Reconcile(balances, ledgerSums models.PointAward) []models.CurrencyDrift {
	drift := []models.CurrencyDrift{}
	for i, c := range models.Currencies {
		if balances[i] != ledgerSums[i] {
			drift = append(drift, models.CurrencyDrift{Currency: c, Balance: balances[i], LedgerSum: ledgerSums[i]})
		}
	}
	return drift
}
