package dto

import "time"

// ConsumeRequest asks the metering engine to debit credits for one action.
type ConsumeRequest struct {
	Amount  int64  `json:"amount" validate:"required,gt=0"`
	RefType string `json:"ref_type" validate:"required,max=64"`
	RefID   string `json:"ref_id" validate:"max=128"`
	// IdempotencyKey dedupes retries of the same logical action. Minted
	// server-side when omitted.
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
}

// DemoQuotaDTO reports demo-search quota state for anonymous callers.
type DemoQuotaDTO struct {
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

// CreditStatusResponse is returned by the status endpoint. Unlimited is set
// for active subscribers; Balance is omitted in that case.
type CreditStatusResponse struct {
	Balance      *int64        `json:"balance,omitempty"`
	Unlimited    bool          `json:"unlimited"`
	IsSubscriber bool          `json:"is_subscriber"`
	Demo         *DemoQuotaDTO `json:"demo,omitempty"`
}

// ConsumeResponse is returned on a successful consume. Paid consumption
// reports the new balance; demo consumption reports quota state instead.
type ConsumeResponse struct {
	Balance    *int64        `json:"balance,omitempty"`
	Subscriber bool          `json:"subscriber,omitempty"`
	Replayed   bool          `json:"replayed,omitempty"`
	Demo       *DemoQuotaDTO `json:"demo,omitempty"`
}

// ErrorResponse is the machine-readable failure shape. Code distinguishes
// business-expected failures (insufficient_credits, demo_quota_exhausted)
// from system errors so the frontend can render an upgrade path.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Balance   *int64 `json:"balance,omitempty"`
	Requested *int64 `json:"requested,omitempty"`
}

// LedgerEntryDTO is the audit view of a ledger entry.
type LedgerEntryDTO struct {
	ID             int64             `json:"id"`
	AccountID      string            `json:"account_id"`
	Amount         int64             `json:"amount"`
	Source         string            `json:"source"`
	RefType        string            `json:"ref_type"`
	RefID          string            `json:"ref_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
