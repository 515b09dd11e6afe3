package ledger

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/l402errors"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE redeemed_payments (
		payment_hash TEXT PRIMARY KEY,
		redeemed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	require.NoError(t, err)

	return NewLedger(db, zap.NewNop())
}

func TestRedeemFirstUse(t *testing.T) {
	l := newTestLedger(t)

	assert.NoError(t, l.Redeem(context.Background(), "a1b2c3"))
}

func TestRedeemRejectsSecondUse(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Redeem(context.Background(), "a1b2c3"))

	err := l.Redeem(context.Background(), "a1b2c3")
	assert.ErrorIs(t, err, l402errors.ErrAlreadyRedeemed)
}

func TestRedeemDistinctHashes(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Redeem(context.Background(), "a1b2c3"))
	assert.NoError(t, l.Redeem(context.Background(), "d4e5f6"))
}
