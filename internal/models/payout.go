package models

import (
	"time"
)

const (
	PayoutStatusRequested  = "REQUESTED"
	PayoutStatusApproved   = "APPROVED"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusPaid       = "PAID"
	PayoutStatusRejected   = "REJECTED"
)

// ValidPayoutTransitions is the payout state machine. A processor failure is
// not a state of its own: the compensating handler moves APPROVED or
// PROCESSING back to REQUESTED so the payout can be retried.
var ValidPayoutTransitions = map[string][]string{
	PayoutStatusRequested:  {PayoutStatusApproved, PayoutStatusRejected},
	PayoutStatusApproved:   {PayoutStatusProcessing, PayoutStatusRequested},
	PayoutStatusProcessing: {PayoutStatusPaid, PayoutStatusRequested},
}

func CanTransitionPayout(current, target string) bool {
	allowed, ok := ValidPayoutTransitions[current]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// Payout is one payout attempt for a creator. Status moves through the state
// machine above; every transition is guarded by a compare-and-swap on the
// current status and mirrored by an append-only audit entry.
type Payout struct {
	ID                string     `json:"id" db:"id"`
	CreatorID         string     `json:"creator_id" db:"creator_id"`
	AmountCents       int64      `json:"amount_cents" db:"amount_cents"`
	Currency          string     `json:"currency" db:"currency"`
	Status            string     `json:"status" db:"status"`
	RequestedAt       time.Time  `json:"requested_at" db:"requested_at"`
	RequestedBy       string     `json:"requested_by" db:"requested_by"`
	ApprovedAt        *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	ApprovedBy        *string    `json:"approved_by,omitempty" db:"approved_by"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty" db:"rejected_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt          *time.Time `json:"failed_at,omitempty" db:"failed_at"`
	ExternalPayoutRef string     `json:"external_payout_ref" db:"external_payout_ref"`
	FailureReason     string     `json:"failure_reason,omitempty" db:"failure_reason"`
	RejectionReason   string     `json:"rejection_reason,omitempty" db:"rejection_reason"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}
