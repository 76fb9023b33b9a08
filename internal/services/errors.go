package services

import (
	"errors"
)

// Validation errors: bad input, never retried.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyReason   = errors.New("rejection reason must not be empty")
)

// State-conflict errors: a race was resolved correctly and the caller lost.
var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSlotNotAvailable  = errors.New("slot not available")
	ErrSlotAlreadyBooked = errors.New("slot already booked")
	ErrSlotExpired       = errors.New("slot expired")
	ErrInvalidState      = errors.New("invalid state for transition")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrPayoutNotFound    = errors.New("payout not found")
)

// Eligibility and configuration errors: the operation fails closed.
var (
	ErrManualRequestNotAllowed = errors.New("manual payout request not allowed for this schedule")
	ErrNotEligible             = errors.New("payout not eligible")
	ErrNotConfigured           = errors.New("processor account not configured")
	ErrMalformedWebhook        = errors.New("malformed webhook payload")
)

// IntegrityViolation marks a charge that succeeded without a deliverable.
// It is always escalated for refund, never swallowed.
type IntegrityViolation struct {
	ExternalRef string
	SlotID      string
	UserID      string
	Cause       error
}

func (e *IntegrityViolation) Error() string {
	return "integrity violation: charge " + e.ExternalRef + " has no reservable slot: " + e.Cause.Error()
}

func (e *IntegrityViolation) Unwrap() error { return e.Cause }

// IsConflict reports whether err is a state-conflict error that should be
// surfaced to the loser of a race rather than treated as a server fault.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSlotAlreadyBooked) ||
		errors.Is(err, ErrSlotNotAvailable) ||
		errors.Is(err, ErrSlotExpired) ||
		errors.Is(err, ErrInvalidState)
}
