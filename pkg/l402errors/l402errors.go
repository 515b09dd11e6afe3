// Package l402errors defines the error taxonomy of the L402 payment
// authorization protocol. All verification failures are returned as these
// sentinel values (possibly wrapped); none of them is fatal to the process.
package l402errors

import (
	"errors"
)

var ErrInvoiceCreationFailed = errors.New("failed to create lightning invoice")

var ErrMalformedToken = errors.New("malformed L402 token")

var ErrInvalidSignature = errors.New("invalid macaroon signature")

var ErrTokenExpired = errors.New("L402 token expired")

var ErrPreimageMismatch = errors.New("preimage does not match payment hash")

// ErrPaymentCheckFailed means the Lightning node could not be consulted. It is
// an infrastructure failure, not a rejection of the credential; callers should
// signal retryability rather than treat the payment as invalid.
var ErrPaymentCheckFailed = errors.New("unable to check invoice settlement")

var ErrInvoiceNotPaid = errors.New("invoice not paid")

var ErrAlreadyRedeemed = errors.New("payment already redeemed")
