package model

import "time"

// Source classifies what kind of credit movement a ledger entry records.
type Source string

const (
	SourceSubscriptionGrant Source = "subscription_grant"
	SourcePurchase          Source = "purchase"
	SourceUsage             Source = "usage"
	SourceAdminAdjustment   Source = "admin_adjustment"
	SourceRefund            Source = "refund"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceSubscriptionGrant, SourcePurchase, SourceUsage, SourceAdminAdjustment, SourceRefund:
		return true
	}
	return false
}

// LedgerEntry is one immutable credit movement for an account. Entries are
// never updated or deleted; corrections are recorded as new entries. Amount
// is signed: positive entries add credits, negative entries consume them.
type LedgerEntry struct {
	ID             int64             `db:"id" json:"id"`
	AccountID      string            `db:"account_id" json:"account_id"`
	Amount         int64             `db:"amount" json:"amount"`
	Source         Source            `db:"source" json:"source"`
	RefType        string            `db:"ref_type" json:"ref_type"`
	RefID          string            `db:"ref_id" json:"ref_id"`
	IdempotencyKey string            `db:"idempotency_key" json:"idempotency_key"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}
