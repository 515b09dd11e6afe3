package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ganamos/l402/pkg/config"
	"github.com/ganamos/l402/pkg/lightning"
	"github.com/ganamos/l402/pkg/macaroon"
	"github.com/ganamos/l402/pkg/middleware"
	"github.com/ganamos/l402/pkg/service"
)

type Handlers struct {
	Service   *service.Service
	Lightning *lightning.Client
	Config    *config.AppConfig
	Logger    *zap.Logger
}

func NewHandlers(service *service.Service, lightningClient *lightning.Client, config *config.AppConfig, logger *zap.Logger) *Handlers {
	return &Handlers{
		Service:   service,
		Lightning: lightningClient,
		Config:    config,
		Logger:    logger,
	}
}

type createJobRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Reward      *int64   `json:"reward"`
}

// CreateJobHandler runs behind the L402 middleware: by the time it executes,
// the payment has been verified and redeemed. It still cross-checks the
// amount caveat against what this request should cost, since the verifier
// only proves payment for the hash, not business-rule compliance.
func (h *Handlers) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("Create-job request received.")

	payment, ok := middleware.PaymentFromContext(r.Context())
	if !ok {
		h.Logger.Error("Create-job request reached handler without a verified payment.")
		writeJSONError(w, http.StatusUnauthorized, "Payment required.")

		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body.")

		return
	}

	if req.Description == "" {
		writeJSONError(w, http.StatusBadRequest, "Description is required and must be a string.")

		return
	}

	if req.Reward != nil && *req.Reward < 0 {
		writeJSONError(w, http.StatusBadRequest, "Reward must be a non-negative number.")

		return
	}

	jobReward := h.Config.Pricing.DefaultJobReward
	if req.Reward != nil {
		jobReward = max(h.Config.Pricing.MinJobReward, *req.Reward)
	}

	expectedTotal := jobReward + h.Config.Pricing.APIAccessFee

	if amountValue, ok := payment.Macaroon.Caveat(macaroon.CaveatAmount); ok {
		paidAmount, err := strconv.ParseInt(amountValue, 10, 64)
		if err != nil || paidAmount != expectedTotal {
			h.Logger.Info("Payment amount mismatch.",
				zap.String("amount-caveat", amountValue),
				zap.Int64("expected-total", expectedTotal))
			writeJSONError(w, http.StatusUnauthorized, "Payment amount does not match the price of this request.")

			return
		}
	}

	if actionValue, ok := payment.Macaroon.Caveat(macaroon.CaveatAction); ok && actionValue != h.Config.Action {
		h.Logger.Info("Payment action mismatch.", zap.String("action-caveat", actionValue))
		writeJSONError(w, http.StatusUnauthorized, "Payment does not authorize this action.")

		return
	}

	jobID, err := h.Service.CreateFundedJob(r.Context(), service.CreateJobParams{
		Description:        req.Description,
		Reward:             jobReward,
		ImageURL:           req.ImageURL,
		Location:           req.Location,
		Latitude:           req.Latitude,
		Longitude:          req.Longitude,
		FundingPaymentHash: payment.PaymentHash,
	})
	if err != nil {
		h.Logger.Error("Failed to create job.", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to create job.")

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)

	if err := json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"job_id":       jobID,
		"message":      "Job posted successfully",
		"job_reward":   jobReward,
		"api_fee":      h.Config.Pricing.APIAccessFee,
		"total_paid":   expectedTotal,
		"payment_hash": payment.PaymentHash,
	}); err != nil {
		h.Logger.Error("Failed to encode create-job response.", zap.Error(err))

		return
	}

	h.Logger.Info("Create-job request processed successfully.", zap.String("job-id", jobID))
}

func (h *Handlers) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("List-jobs request received.")

	limit := 50

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid limit parameter.")

			return
		}

		limit = parsed
	}

	jobs, err := h.Service.ListJobs(r.Context(), limit)
	if err != nil {
		h.Logger.Error("Failed to list jobs.", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Failed to list jobs.")

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]any{"jobs": jobs}); err != nil {
		h.Logger.Error("Failed to encode list-jobs response.", zap.Error(err))
	}
}

// InvoiceStatusHandler lets clients poll whether their challenge invoice has
// settled before retrying the protected request.
func (h *Handlers) InvoiceStatusHandler(w http.ResponseWriter, r *http.Request) {
	paymentHash := mux.Vars(r)["paymentHash"]

	status, err := h.Lightning.LookupInvoice(r.Context(), paymentHash)
	if err != nil {
		h.Logger.Error("Failed to look up invoice.", zap.String("payment-hash", paymentHash), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Failed to look up invoice.")

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]any{
		"payment_hash":    paymentHash,
		"settled":         status.Settled,
		"state":           status.State,
		"amount_paid_sat": status.AmountPaidSats,
	}); err != nil {
		h.Logger.Error("Failed to encode invoice-status response.", zap.Error(err))
	}
}

func (h *Handlers) NodeInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := h.Lightning.GetInfo(r.Context())
	if err != nil {
		h.Logger.Error("Failed to get node info.", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Failed to get node info.")

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]any{
		"pubkey":          info.Pubkey,
		"alias":           info.Alias,
		"version":         info.Version,
		"synced_to_chain": info.SyncedToChain,
		"block_height":    info.BlockHeight,
	}); err != nil {
		h.Logger.Error("Failed to encode node-info response.", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
