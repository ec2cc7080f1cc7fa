package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aymanhalloween/smartcard/internal/routing"
	"github.com/aymanhalloween/smartcard/router/models"
)

// SettleRequest carries everything the downstream gateway needs to move
// funds against the selected instrument.
type SettleRequest struct {
	AuthorizationID string             `json:"authorization_id"`
	Amount          int64              `json:"amount"`
	Currency        string             `json:"currency"`
	Instrument      routing.Instrument `json:"instrument"`
	MerchantName    string             `json:"merchant_name"`
}

// SettlementError covers both explicit rejections and timeouts; the
// coordinator treats them identically. Timeout marks the cases where the
// true settlement status is unknown, which matters for the logs.
type SettlementError struct {
	Reason  string
	Timeout bool
}

func (e *SettlementError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("settlement timed out (%s)", e.Reason)
	}
	return fmt.Sprintf("settlement failed: %s", e.Reason)
}

// Settler moves funds against a real instrument for an authorized amount.
type Settler interface {
	Settle(ctx context.Context, req SettleRequest) (string, error)
}

type settlementClient struct {
	base string
	http *http.Client
}

// NewSettler returns an HTTP settlement adapter for the gateway at base.
// Deadlines come from the caller's context; the client itself sets none.
func NewSettler(base string, hc *http.Client) Settler {
	if hc == nil {
		hc = &http.Client{}
	}
	return &settlementClient{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *settlementClient) Settle(ctx context.Context, req SettleRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding settle request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/settlements", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building settle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// The gateway's idempotency guarantees are unconfirmed; keying on the
	// authorization id at least lets it deduplicate an ambiguous retry.
	httpReq.Header.Set("Idempotency-Key", req.AuthorizationID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &SettlementError{Reason: models.DeclineReasonSettlementTimeout, Timeout: true}
		}
		return "", &SettlementError{Reason: "gateway_unreachable"}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", &SettlementError{Reason: rejectionReason(resp.Body)}
	}

	var payload struct {
		SettlementID string `json:"settlement_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.SettlementID == "" {
		return "", &SettlementError{Reason: "bad_gateway_response"}
	}
	return payload.SettlementID, nil
}

// rejectionReason extracts the gateway's reason code when present, e.g.
// insufficient_funds or fraud_hold.
func rejectionReason(body io.Reader) string {
	var payload struct {
		Reason string `json:"reason"`
	}
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Reason != "" {
		return payload.Reason
	}
	return models.DeclineReasonSettlementFailed
}
