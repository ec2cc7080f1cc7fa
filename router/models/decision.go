package models

import "time"

type SettlementOutcome string

const (
	SettlementSucceeded SettlementOutcome = "succeeded"
	SettlementFailed    SettlementOutcome = "failed"
)

type FinalStatus string

const (
	StatusApproved FinalStatus = "approved"
	StatusDeclined FinalStatus = "declined"
)

// Decline reason codes preserved on the decision record and reported to the
// issuing network.
const (
	DeclineReasonSettlementFailed  = "settlement_failed"
	DeclineReasonSettlementTimeout = "settlement_timeout"
	DeclineReasonApprovalFailed    = "approval_failed"
)

// RoutingDecision is the durable record of which instrument was chosen and
// the final approve/decline outcome for one authorization. Immutable once
// its final status is set.
//
// Invariant: FinalStatus == approved implies SettlementOutcome == succeeded.
// The converse does not hold: a settlement whose upstream approval could not
// be confirmed is recorded as declined with NeedsReconciliation set, so the
// funds movement is never silently forgotten.
type RoutingDecision struct {
	AuthorizationID      string            `json:"authorization_id"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	MerchantCategoryCode string            `json:"mcc"`
	MerchantName         string            `json:"merchant_name"`
	Category             string            `json:"category"`
	InstrumentID         string            `json:"selected_instrument_id"`
	SettlementID         string            `json:"settlement_id,omitempty"`
	SettlementOutcome    SettlementOutcome `json:"settlement_outcome"`
	FinalStatus          FinalStatus       `json:"final_status"`
	DeclineReason        string            `json:"decline_reason,omitempty"`
	NeedsReconciliation  bool              `json:"needs_reconciliation,omitempty"`
	DecidedAt            time.Time         `json:"decided_at"`
}
