// Package l402 implements the L402 payment authorization protocol: HTTP 402
// challenges carrying a Lightning invoice plus a signed macaroon, redeemed by
// presenting the macaroon together with the payment preimage.
package l402

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/l402errors"
	"github.com/ganamos/l402/pkg/lightning"
	"github.com/ganamos/l402/pkg/macaroon"
)

const DefaultTokenLifetime = time.Hour

// InvoiceCreator is the slice of the Lightning client the issuer needs.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string, expirySeconds int64) (*lightning.Invoice, error)
}

// Challenge is the content of a 402 Payment Required response: an encoded
// macaroon bound to the invoice's payment hash, and the invoice itself.
type Challenge struct {
	Macaroon    string
	Invoice     string
	PaymentHash string
}

type Issuer struct {
	rootKey       []byte
	realm         string
	action        string
	tokenLifetime time.Duration
	invoices      InvoiceCreator
	logger        *zap.Logger
}

func NewIssuer(rootKey []byte, realm string, action string, tokenLifetime time.Duration, invoices InvoiceCreator, logger *zap.Logger) *Issuer {
	if tokenLifetime <= 0 {
		tokenLifetime = DefaultTokenLifetime
	}

	return &Issuer{
		rootKey:       rootKey,
		realm:         realm,
		action:        action,
		tokenLifetime: tokenLifetime,
		invoices:      invoices,
		logger:        logger,
	}
}

// CreateChallenge obtains a fresh invoice for amountSats and mints a macaroon
// whose identifier is the invoice's payment hash. Every call creates an
// invoice on the node; callers must not invoke it speculatively for the same
// logical request.
func (i *Issuer) CreateChallenge(ctx context.Context, amountSats int64, memo string) (*Challenge, error) {
	if amountSats <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", l402errors.ErrInvoiceCreationFailed, amountSats)
	}

	invoice, err := i.invoices.CreateInvoice(ctx, amountSats, memo, int64(i.tokenLifetime/time.Second))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", l402errors.ErrInvoiceCreationFailed, err)
	}

	caveats := []macaroon.Caveat{
		{Condition: macaroon.CaveatAction, Value: i.action},
		{Condition: macaroon.CaveatAmount, Value: strconv.FormatInt(amountSats, 10)},
		{Condition: macaroon.CaveatExpires, Value: strconv.FormatInt(time.Now().Add(i.tokenLifetime).UnixMilli(), 10)},
	}

	mac := macaroon.Mint(invoice.PaymentHash, i.realm, i.rootKey, caveats)

	i.logger.Info("Issued L402 challenge.",
		zap.String("payment-hash", invoice.PaymentHash),
		zap.Int64("amount-sats", amountSats))

	return &Challenge{
		Macaroon:    mac.Encode(),
		Invoice:     invoice.PaymentRequest,
		PaymentHash: invoice.PaymentHash,
	}, nil
}
