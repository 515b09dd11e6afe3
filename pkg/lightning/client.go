// Package lightning is a typed client for the LND REST API. It is the single
// translation point from LND's loosely typed wire responses to the narrow
// structs the rest of the service consumes.
package lightning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	AddIndex       string
}

// InvoiceStatus reflects the node's authoritative view of an invoice.
type InvoiceStatus struct {
	Settled        bool
	AmountPaidSats int64
	State          string
	CreationDate   int64
	SettleDate     int64
}

type Payment struct {
	PaymentHash     string
	PaymentPreimage string
}

type NodeInfo struct {
	Pubkey        string
	Alias         string
	Version       string
	SyncedToChain bool
	BlockHeight   uint32
}

type Client struct {
	baseURL    string
	macaroon   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient returns a client for the LND REST endpoint. The macaroon is the
// hex-encoded admin macaroon sent on every request.
func NewClient(restURL string, macaroon string, logger *zap.Logger) *Client {
	if !strings.HasPrefix(restURL, "http://") && !strings.HasPrefix(restURL, "https://") {
		restURL = "https://" + restURL
	}

	restURL = strings.TrimSuffix(restURL, "/")

	return &Client{
		baseURL:    restURL,
		macaroon:   macaroon,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// CreateInvoice adds an invoice of amountSats to the node. Every call creates
// a new invoice with a unique payment hash.
func (c *Client) CreateInvoice(ctx context.Context, amountSats int64, memo string, expirySeconds int64) (*Invoice, error) {
	reqBody := map[string]string{
		"value":  strconv.FormatInt(amountSats, 10),
		"memo":   memo,
		"expiry": strconv.FormatInt(expirySeconds, 10),
	}

	var resp struct {
		PaymentRequest string `json:"payment_request"`
		RHash          string `json:"r_hash"`
		RHashStr       string `json:"r_hash_str"`
		AddIndex       string `json:"add_index"`
	}

	if err := c.do(ctx, http.MethodPost, "/v1/invoices", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	paymentHash := resp.RHashStr
	if paymentHash == "" {
		// Older LND versions return only the base64 r_hash.
		raw, err := base64.StdEncoding.DecodeString(resp.RHash)
		if err != nil {
			return nil, fmt.Errorf("create invoice: invalid r_hash in response: %w", err)
		}

		paymentHash = hex.EncodeToString(raw)
	}

	return &Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    paymentHash,
		AddIndex:       resp.AddIndex,
	}, nil
}

// LookupInvoice fetches the settlement state of the invoice with the given
// hex payment hash.
func (c *Client) LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceStatus, error) {
	raw, err := hex.DecodeString(paymentHashHex)
	if err != nil {
		return nil, fmt.Errorf("lookup invoice: invalid payment hash %q: %w", paymentHashHex, err)
	}

	// The REST endpoint takes the r_hash as URL-safe base64 in the path.
	endpoint := "/v1/invoice/" + url.PathEscape(base64.StdEncoding.EncodeToString(raw))

	var resp struct {
		Settled      bool   `json:"settled"`
		AmtPaidSat   string `json:"amt_paid_sat"`
		State        string `json:"state"`
		CreationDate string `json:"creation_date"`
		SettleDate   string `json:"settle_date"`
	}

	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("lookup invoice: %w", err)
	}

	return &InvoiceStatus{
		Settled:        resp.Settled,
		AmountPaidSats: parseInt(resp.AmtPaidSat),
		State:          resp.State,
		CreationDate:   parseInt(resp.CreationDate),
		SettleDate:     parseInt(resp.SettleDate),
	}, nil
}

// PayInvoice pays a BOLT11 payment request from the node's balance. amountSats
// is only consulted for zero-amount invoices.
func (c *Client) PayInvoice(ctx context.Context, paymentRequest string, amountSats int64) (*Payment, error) {
	reqBody := map[string]string{
		"payment_request": paymentRequest,
	}

	if amountSats > 0 {
		reqBody["amt"] = strconv.FormatInt(amountSats, 10)
	}

	var resp struct {
		PaymentError    string `json:"payment_error"`
		PaymentHash     string `json:"payment_hash"`
		PaymentPreimage string `json:"payment_preimage"`
	}

	if err := c.do(ctx, http.MethodPost, "/v1/channels/transactions", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("pay invoice: %w", err)
	}

	if resp.PaymentError != "" {
		return nil, fmt.Errorf("pay invoice: %s", resp.PaymentError)
	}

	return &Payment{
		PaymentHash:     resp.PaymentHash,
		PaymentPreimage: resp.PaymentPreimage,
	}, nil
}

// GetInfo returns identity and sync state of the node.
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	var resp struct {
		IdentityPubkey string `json:"identity_pubkey"`
		Alias          string `json:"alias"`
		Version        string `json:"version"`
		SyncedToChain  bool   `json:"synced_to_chain"`
		BlockHeight    uint32 `json:"block_height"`
	}

	if err := c.do(ctx, http.MethodGet, "/v1/getinfo", nil, &resp); err != nil {
		return nil, fmt.Errorf("get node info: %w", err)
	}

	return &NodeInfo{
		Pubkey:        resp.IdentityPubkey,
		Alias:         resp.Alias,
		Version:       resp.Version,
		SyncedToChain: resp.SyncedToChain,
		BlockHeight:   resp.BlockHeight,
	}, nil
}

func (c *Client) do(ctx context.Context, method string, endpoint string, reqBody any, out any) error {
	var bodyReader io.Reader

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Grpc-Metadata-macaroon", c.macaroon)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Calling LND REST API.", zap.String("method", method), zap.String("endpoint", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lnd request failed: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("lnd returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode lnd response: %w", err)
	}

	return nil
}

// parseInt handles LND's habit of encoding int64 fields as JSON strings.
func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return v
}
