package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types delivered by the issuing network. Only authorization-created
// events trigger routing; transaction-created events are logged for the
// record and acknowledged.
const (
	EventTypeAuthorizationCreated = "issuing_authorization.created"
	EventTypeTransactionCreated   = "issuing_transaction.created"
)

// WebhookEvent is the wire form of an event as delivered by the issuing
// network's webhook.
type WebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object EventObject `json:"object"`
	} `json:"data"`
}

// EventObject is the authorization (or transaction) nested in an event.
type EventObject struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	MerchantData struct {
		MCC  string `json:"mcc"`
		Name string `json:"name"`
	} `json:"merchant_data"`
	Status string `json:"status"`
}

// AuthorizationEvent is the immutable record of one authorization request.
// It is created by the upstream network and read-only to this system.
type AuthorizationEvent struct {
	EventID              string
	AuthorizationID      string
	Amount               int64
	Currency             string
	MerchantCategoryCode string
	MerchantName         string
	ReceivedAt           time.Time
}

// ParseWebhookEvent decodes and validates an event payload. Callers must
// verify the signature over the exact raw bytes first; any re-encoding
// changes the signature input.
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("decoding event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if event.Data.Object.ID == "" {
		return nil, fmt.Errorf("event object id is required")
	}
	if event.Type == EventTypeAuthorizationCreated {
		if event.Data.Object.Amount <= 0 {
			return nil, fmt.Errorf("authorization amount must be positive")
		}
		if event.Data.Object.Currency == "" {
			return nil, fmt.Errorf("authorization currency is required")
		}
	}
	return &event, nil
}

// AuthorizationEvent converts the wire form into the transient in-process
// record handled by the coordinator.
func (e *WebhookEvent) AuthorizationEvent(receivedAt time.Time) *AuthorizationEvent {
	name := e.Data.Object.MerchantData.Name
	if name == "" {
		name = "Unknown Merchant"
	}
	return &AuthorizationEvent{
		EventID:              e.ID,
		AuthorizationID:      e.Data.Object.ID,
		Amount:               e.Data.Object.Amount,
		Currency:             e.Data.Object.Currency,
		MerchantCategoryCode: e.Data.Object.MerchantData.MCC,
		MerchantName:         name,
		ReceivedAt:           receivedAt,
	}
}
