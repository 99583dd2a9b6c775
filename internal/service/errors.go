package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount rejects non-positive amounts at the API boundary.
	// Sign is applied internally by Credit/Debit, never by callers.
	ErrInvalidAmount = errors.New("invalid_amount")

	// ErrInvalidSource rejects ledger sources outside the closed enum.
	ErrInvalidSource = errors.New("invalid_source")

	// ErrMissingIdempotencyKey rejects ledger writes without a key; a retry
	// without a stable key cannot be deduplicated.
	ErrMissingIdempotencyKey = errors.New("missing_idempotency_key")

	// ErrInvalidAction rejects unrecognized admin actions.
	ErrInvalidAction = errors.New("invalid_action")

	// ErrReasonRequired rejects admin adjustments without an audit reason.
	ErrReasonRequired = errors.New("reason_required")

	// ErrDemoQuotaExhausted signals the demo session has no searches left
	// for the current window.
	ErrDemoQuotaExhausted = errors.New("demo_quota_exhausted")
)

// InsufficientCreditsError is business-expected: the caller should render an
// upgrade or purchase prompt, not a generic failure. It carries the current
// balance and the requested amount for that purpose.
type InsufficientCreditsError struct {
	Balance   int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient_credits: have %d, requested %d", e.Balance, e.Requested)
}
