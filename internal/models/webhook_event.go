package models

import (
	"time"
)

const (
	WebhookEventReceived  = "RECEIVED"
	WebhookEventProcessed = "PROCESSED"
	WebhookEventFailed    = "FAILED"
)

// WebhookEvent is the durable dedup log for processor callbacks. The unique
// constraint on ProviderEventID is what makes at-least-once delivery safe;
// the redis lookup in front of it is only a fast path. Only PROCESSED rows
// reject a redelivery: FAILED and RECEIVED rows accept the retry so a
// transient error never dead-letters an event.
type WebhookEvent struct {
	ID              string     `json:"id" db:"id"`
	ProviderEventID string     `json:"provider_event_id" db:"provider_event_id"`
	EventType       string     `json:"event_type" db:"event_type"`
	Payload         string     `json:"payload" db:"payload"`
	Status          string     `json:"status" db:"status"`
	ProcessingError string     `json:"processing_error,omitempty" db:"processing_error"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}
