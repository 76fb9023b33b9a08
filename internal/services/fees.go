package services

import (
	"math"

	"github.com/creatorcall/backend/internal/models"
)

// FeeBreakdown is the split of a list price between the platform and the
// creator, in minor units. PlatformFeeCents + CreatorAmountCents always
// equals AmountCents exactly.
type FeeBreakdown struct {
	AmountCents        int64 `json:"amount_cents"`
	PlatformFeeCents   int64 `json:"platform_fee_cents"`
	CreatorAmountCents int64 `json:"creator_amount_cents"`
}

// ComputeFees turns a list price and a settings snapshot into the fee split.
// Pure and deterministic; the snapshot is passed by value so a concurrent
// settings edit cannot affect a calculation in flight.
//
// The float input is validated defensively: upstream JSON decoding can hand
// us NaN, infinities, or negative values, none of which may reach the ledger.
func ComputeFees(listPrice float64, snap models.SettingsSnapshot) (FeeBreakdown, error) {
	if math.IsNaN(listPrice) || math.IsInf(listPrice, 0) || listPrice <= 0 {
		return FeeBreakdown{}, ErrInvalidAmount
	}
	if math.IsNaN(snap.PlatformFeePercentage) || math.IsInf(snap.PlatformFeePercentage, 0) ||
		snap.PlatformFeePercentage < 0 || snap.PlatformFeePercentage > 100 {
		return FeeBreakdown{}, ErrInvalidAmount
	}
	if snap.PlatformFeeFixedCents < 0 {
		return FeeBreakdown{}, ErrInvalidAmount
	}

	amount := int64(math.Round(listPrice * 100))
	if amount <= 0 {
		return FeeBreakdown{}, ErrInvalidAmount
	}

	return ComputeFeesCents(amount, snap)
}

// ComputeFeesCents is the minor-unit core of the calculator, used directly
// when the price is already a stored cents value.
func ComputeFeesCents(amountCents int64, snap models.SettingsSnapshot) (FeeBreakdown, error) {
	if amountCents <= 0 {
		return FeeBreakdown{}, ErrInvalidAmount
	}

	fee := int64(math.Round(float64(amountCents)*snap.PlatformFeePercentage/100)) + snap.PlatformFeeFixedCents
	if fee < 0 {
		fee = 0
	}
	if fee > amountCents {
		fee = amountCents
	}

	return FeeBreakdown{
		AmountCents:        amountCents,
		PlatformFeeCents:   fee,
		CreatorAmountCents: amountCents - fee,
	}, nil
}
