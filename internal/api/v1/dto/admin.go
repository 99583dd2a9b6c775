package dto

// AdjustmentRequest is an operator-initiated credit movement. Reason is
// mandatory; it lands in the ledger entry metadata for audit.
type AdjustmentRequest struct {
	Action          string `json:"action" validate:"required,oneof=add deduct"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	TargetAccountID string `json:"target_account_id" validate:"required,max=128"`
	Reason          string `json:"reason" validate:"required,max=512"`
}

// AdjustmentResponse reports the target's balance after the movement.
type AdjustmentResponse struct {
	TargetAccountID string `json:"target_account_id"`
	Balance         int64  `json:"balance"`
}
