// Package ledger enforces single use of paid invoices: each payment hash may
// authorize exactly one protected action.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/l402errors"
)

type Ledger struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewLedger(db *sql.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger,
	}
}

// Redeem marks the payment hash as spent. The conditional insert is atomic:
// of two concurrent calls for the same hash, exactly one succeeds and the
// other gets l402errors.ErrAlreadyRedeemed.
func (l *Ledger) Redeem(ctx context.Context, paymentHash string) error {
	result, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO redeemed_payments (payment_hash, redeemed_at) VALUES (?, ?)",
		paymentHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording redemption: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("recording redemption: %w", err)
	}

	if inserted == 0 {
		l.logger.Warn("Rejected reuse of a redeemed payment.", zap.String("payment-hash", paymentHash))

		return l402errors.ErrAlreadyRedeemed
	}

	return nil
}
