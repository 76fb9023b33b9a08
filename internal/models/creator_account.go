package models

import (
	"time"
)

const (
	PayoutScheduleDaily   = "DAILY"
	PayoutScheduleWeekly  = "WEEKLY"
	PayoutScheduleMonthly = "MONTHLY"
	PayoutScheduleManual  = "MANUAL"
)

// CreatorAccount is the per-creator payout configuration. Currency is the
// ledger-authoritative settlement currency; it may drift from the currency
// the processor reports for the external account, which the reconciliation
// job detects and corrects.
type CreatorAccount struct {
	CreatorID          string    `json:"creator_id" db:"creator_id"`
	ExternalAccountID  string    `json:"external_account_id" db:"external_account_id"`
	IsOnboarded        bool      `json:"is_onboarded" db:"is_onboarded"`
	Currency           string    `json:"currency" db:"currency"`
	PayoutSchedule     string    `json:"payout_schedule" db:"payout_schedule"`
	PayoutMinimumCents int64     `json:"payout_minimum_cents" db:"payout_minimum_cents"`
	IsPayoutBlocked    bool      `json:"is_payout_blocked" db:"is_payout_blocked"`
	PayoutBlockReason  string    `json:"payout_block_reason,omitempty" db:"payout_block_reason"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
