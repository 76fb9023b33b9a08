package models

import (
	"time"
)

const (
	SlotStatusAvailable = "AVAILABLE"
	SlotStatusBooked    = "BOOKED"
)

// Slot is a sellable time window owned by a creator. A slot moves
// AVAILABLE -> BOOKED exactly once; the bookings.slot_id unique constraint
// is the storage-level guarantee behind that.
type Slot struct {
	ID              string    `json:"id" db:"id"`
	CreatorID       string    `json:"creator_id" db:"creator_id"`
	PriceCents      int64     `json:"price_cents" db:"price_cents"`
	Currency        string    `json:"currency" db:"currency"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Status          string    `json:"status" db:"status"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
