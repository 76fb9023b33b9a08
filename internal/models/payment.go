package models

import (
	"time"
)

const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusSucceeded         = "SUCCEEDED"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Payout lifecycle of a single payment. HELD funds sit inside the holding
// period and must never count towards a payout; READY funds are eligible;
// PROCESSING funds are attached to an in-flight payout; PAID is terminal.
const (
	PaymentPayoutHeld       = "HELD"
	PaymentPayoutReady      = "READY"
	PaymentPayoutProcessing = "PROCESSING"
	PaymentPayoutPaid       = "PAID"
)

// Payment is one money-collection attempt. Invariants:
// PlatformFeeCents + CreatorAmountCents == AmountCents, and
// PayoutReleaseAt = CreatedAt + holding period.
type Payment struct {
	ID                 string     `json:"id" db:"id"`
	BookingID          string     `json:"booking_id" db:"booking_id"`
	CreatorID          string     `json:"creator_id" db:"creator_id"`
	AmountCents        int64      `json:"amount_cents" db:"amount_cents"`
	Currency           string     `json:"currency" db:"currency"`
	PlatformFeeCents   int64      `json:"platform_fee_cents" db:"platform_fee_cents"`
	CreatorAmountCents int64      `json:"creator_amount_cents" db:"creator_amount_cents"`
	Status             string     `json:"status" db:"status"`
	PayoutStatus       string     `json:"payout_status" db:"payout_status"`
	PayoutReleaseAt    time.Time  `json:"payout_release_at" db:"payout_release_at"`
	PayoutID           *string    `json:"payout_id,omitempty" db:"payout_id"`
	ExternalPaymentRef string     `json:"external_payment_ref" db:"external_payment_ref"`
	RefundedCents      int64      `json:"refunded_cents" db:"refunded_cents"`
	Disputed           bool       `json:"disputed" db:"disputed"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
}
