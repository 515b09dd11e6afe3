package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/config"
	"github.com/ganamos/l402/pkg/l402"
	"github.com/ganamos/l402/pkg/l402errors"
)

type contextKey string

const paymentContextKey contextKey = "l402-payment"

// PaymentFromContext returns the verified payment attached to the request by
// the L402 middleware. It is only present on requests that passed the gate.
func PaymentFromContext(ctx context.Context) (*l402.Result, bool) {
	result, ok := ctx.Value(paymentContextKey).(*l402.Result)

	return result, ok
}

// ContextWithPayment attaches a verified payment to the context, as the
// middleware does for requests that passed the gate.
func ContextWithPayment(ctx context.Context, result *l402.Result) context.Context {
	return context.WithValue(ctx, paymentContextKey, result)
}

// challengeBody is the JSON body of a 402 response: the human-readable price
// breakdown alongside the invoice, mirroring the WWW-Authenticate header.
type challengeBody struct {
	Error          string `json:"error"`
	TotalAmount    int64  `json:"total_amount"`
	JobReward      int64  `json:"job_reward"`
	APIFee         int64  `json:"api_fee"`
	Currency       string `json:"currency"`
	Message        string `json:"message"`
	PaymentRequest string `json:"payment_request"`
}

type rewardRequest struct {
	Reward *int64 `json:"reward"`
}

// GetL402Middleware gates POST requests with the L402 protocol: a request
// without an Authorization header gets a 402 challenge priced from its reward
// field, and a request presenting a credential proceeds only after the
// credential verifies. The verified payment is placed on the request context.
func GetL402Middleware(issuer *l402.Issuer, verifier *l402.Verifier, pricing config.Pricing, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)

				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				issueChallenge(w, r, issuer, pricing, logger)

				return
			}

			credential := l402.ParseAuthorizationHeader(authHeader)
			if credential == nil {
				logger.Info("Rejected request with non-L402 authorization header.")
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format. Expected: L402 <macaroon>:<preimage>")

				return
			}

			result, err := verifier.Verify(r.Context(), *credential)
			if err != nil {
				logger.Info("L402 verification failed.", zap.Error(err))
				writeVerificationError(w, err)

				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPayment(r.Context(), result)))
		})
	}
}

// issueChallenge prices the request from its reward field and responds with a
// fresh invoice and macaroon. One invoice is created per challenge.
func issueChallenge(w http.ResponseWriter, r *http.Request, issuer *l402.Issuer, pricing config.Pricing, logger *zap.Logger) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body.")

		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))

	jobReward := pricing.DefaultJobReward

	var rewardReq rewardRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rewardReq); err == nil && rewardReq.Reward != nil {
			jobReward = max(pricing.MinJobReward, *rewardReq.Reward)
		}
	}

	totalAmount := jobReward + pricing.APIAccessFee
	memo := fmt.Sprintf("Pay %d sats to post job on Ganamos (%d reward + %d API fee)", totalAmount, jobReward, pricing.APIAccessFee)

	challenge, err := issuer.CreateChallenge(r.Context(), totalAmount, memo)
	if err != nil {
		logger.Error("Failed to create L402 challenge.", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create payment challenge.")

		return
	}

	for key, values := range l402.ChallengeHeaders(challenge) {
		for _, value := range values {
			w.Header().Set(key, value)
		}
	}

	w.WriteHeader(http.StatusPaymentRequired)

	if err := json.NewEncoder(w).Encode(challengeBody{
		Error:          "Payment required to post job",
		TotalAmount:    totalAmount,
		JobReward:      jobReward,
		APIFee:         pricing.APIAccessFee,
		Currency:       "sats",
		Message:        memo,
		PaymentRequest: challenge.Invoice,
	}); err != nil {
		logger.Error("Failed to encode challenge response.", zap.Error(err))
	}
}

// writeVerificationError maps protocol failures to statuses: an unpaid
// invoice keeps the 402 conversation going, an unreachable node is a
// retryable 503, and every cryptographic or format failure is a uniform 401
// that does not reveal which check rejected the token.
func writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, l402errors.ErrInvoiceNotPaid):
		writeError(w, http.StatusPaymentRequired, "Invoice not paid. Pay the invoice and retry with the same credential.")
	case errors.Is(err, l402errors.ErrPaymentCheckFailed):
		writeError(w, http.StatusServiceUnavailable, "Unable to check payment status. Retry shortly.")
	case errors.Is(err, l402errors.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "L402 token expired. Request a new challenge.")
	case errors.Is(err, l402errors.ErrAlreadyRedeemed):
		writeError(w, http.StatusUnauthorized, "Payment already redeemed.")
	default:
		writeError(w, http.StatusUnauthorized, "L402 verification failed.")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
