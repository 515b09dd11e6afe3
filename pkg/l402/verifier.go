package l402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/l402errors"
	"github.com/ganamos/l402/pkg/lightning"
	"github.com/ganamos/l402/pkg/macaroon"
)

// InvoiceChecker is the slice of the Lightning client the verifier needs.
type InvoiceChecker interface {
	LookupInvoice(ctx context.Context, paymentHashHex string) (*lightning.InvoiceStatus, error)
}

// RedemptionLedger records payment hashes that have already authorized a
// protected action. Redeem must be atomic: exactly one call per hash may
// succeed, concurrent duplicates get l402errors.ErrAlreadyRedeemed.
type RedemptionLedger interface {
	Redeem(ctx context.Context, paymentHash string) error
}

// Credential is the client-presented half of the protocol: the encoded
// macaroon and the hex preimage proving the invoice was paid.
type Credential struct {
	Macaroon string
	Preimage string
}

// Result is returned on successful verification. It proves payment for
// PaymentHash under the server's root key; business constraints encoded in
// the caveats (amount, action) are the caller's to enforce against the
// current request.
type Result struct {
	PaymentHash string
	Macaroon    macaroon.Macaroon
}

type Verifier struct {
	rootKey  []byte
	invoices InvoiceChecker
	ledger   RedemptionLedger
	logger   *zap.Logger
	now      func() time.Time
}

func NewVerifier(rootKey []byte, invoices InvoiceChecker, ledger RedemptionLedger, logger *zap.Logger) *Verifier {
	return &Verifier{
		rootKey:  rootKey,
		invoices: invoices,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
	}
}

// Verify runs the protocol checks in order, short-circuiting on the first
// failure: decode, signature, expiry, preimage hash, settlement, and finally
// the single-use ledger. The cheap local checks run before any call to the
// Lightning node.
func (v *Verifier) Verify(ctx context.Context, credential Credential) (*Result, error) {
	mac, err := macaroon.Decode(credential.Macaroon)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", l402errors.ErrMalformedToken, err)
	}

	if !mac.VerifySignature(v.rootKey) {
		return nil, l402errors.ErrInvalidSignature
	}

	if err := v.checkExpiry(mac); err != nil {
		return nil, err
	}

	if err := checkPreimage(credential.Preimage, mac.Identifier); err != nil {
		return nil, err
	}

	status, err := v.invoices.LookupInvoice(ctx, mac.Identifier)
	if err != nil {
		v.logger.Error("Invoice settlement lookup failed.", zap.String("payment-hash", mac.Identifier), zap.Error(err))

		return nil, fmt.Errorf("%w: %v", l402errors.ErrPaymentCheckFailed, err)
	}

	if !status.Settled {
		return nil, l402errors.ErrInvoiceNotPaid
	}

	if v.ledger != nil {
		if err := v.ledger.Redeem(ctx, mac.Identifier); err != nil {
			return nil, err
		}
	}

	v.logger.Info("L402 credential verified.", zap.String("payment-hash", mac.Identifier))

	return &Result{
		PaymentHash: mac.Identifier,
		Macaroon:    mac,
	}, nil
}

// checkExpiry rejects tokens past their expires caveat. A token without the
// caveat is rejected as well: the issuer always mints one, so its absence
// means the token did not come from this issuer's current policy.
func (v *Verifier) checkExpiry(mac macaroon.Macaroon) error {
	value, ok := mac.Caveat(macaroon.CaveatExpires)
	if !ok {
		return fmt.Errorf("%w: missing expires caveat", l402errors.ErrTokenExpired)
	}

	expiresMillis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid expires caveat %q", l402errors.ErrTokenExpired, value)
	}

	if expiresMillis < v.now().UnixMilli() {
		return l402errors.ErrTokenExpired
	}

	return nil
}

func checkPreimage(preimageHex string, paymentHashHex string) error {
	preimage, err := hex.DecodeString(preimageHex)
	if err != nil {
		return fmt.Errorf("%w: preimage is not valid hex", l402errors.ErrPreimageMismatch)
	}

	digest := sha256.Sum256(preimage)

	if !strings.EqualFold(hex.EncodeToString(digest[:]), paymentHashHex) {
		return l402errors.ErrPreimageMismatch
	}

	return nil
}
