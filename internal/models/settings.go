package models

import (
	"time"
)

const (
	PayoutModeAutomatic = "AUTOMATIC"
	PayoutModeManual    = "MANUAL"
)

// SettingsSnapshot is one immutable version of the platform settings.
// Updates insert a new row; readers always get the latest row as a value,
// so a mid-flight fee or eligibility calculation can never observe a
// concurrent admin edit.
type SettingsSnapshot struct {
	Version               int64     `json:"version" db:"id"`
	PlatformFeePercentage float64   `json:"platform_fee_percentage" db:"platform_fee_percentage"`
	PlatformFeeFixedCents int64     `json:"platform_fee_fixed_cents" db:"platform_fee_fixed_cents"`
	MinimumPayoutCents    int64     `json:"minimum_payout_cents" db:"minimum_payout_cents"`
	HoldingPeriodDays     int       `json:"holding_period_days" db:"holding_period_days"`
	PayoutMode            string    `json:"payout_mode" db:"payout_mode"`
	Currency              string    `json:"currency" db:"currency"`
	UpdatedBy             string    `json:"updated_by" db:"updated_by"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

// DefaultSettings are written on first read when no settings row exists.
// Safe for reads; money-moving paths still fail closed on their own checks.
func DefaultSettings() SettingsSnapshot {
	return SettingsSnapshot{
		PlatformFeePercentage: 20.0,
		PlatformFeeFixedCents: 0,
		MinimumPayoutCents:    1000,
		HoldingPeriodDays:     7,
		PayoutMode:            PayoutModeManual,
		Currency:              "EUR",
	}
}
