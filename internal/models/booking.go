package models

import (
	"time"
)

const (
	BookingStatusPending   = "PENDING"
	BookingStatusConfirmed = "CONFIRMED"
	BookingStatusCompleted = "COMPLETED"
	BookingStatusCancelled = "CANCELLED"
)

// Booking links a buyer to a slot. SlotID is unique across bookings at the
// database level, which makes slot reservation at-most-once even when the
// same webhook is delivered twice.
type Booking struct {
	ID                 string    `json:"id" db:"id"`
	UserID             string    `json:"user_id" db:"user_id"`
	SlotID             string    `json:"slot_id" db:"slot_id"`
	Status             string    `json:"status" db:"status"`
	TotalPriceCents    int64     `json:"total_price_cents" db:"total_price_cents"`
	Currency           string    `json:"currency" db:"currency"`
	ExternalPaymentRef string    `json:"external_payment_ref" db:"external_payment_ref"`
	CallRoomURL        string    `json:"call_room_url,omitempty" db:"call_room_url"`
	CreatedAt          time.Time `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time `json:"updated_at" db:"updated_at"`
}
