package models

import (
	"time"
)

// ActorKind is a closed set so authorization and reporting code can switch
// over it exhaustively instead of parsing free-form strings.
type ActorKind string

const (
	ActorAdmin   ActorKind = "ADMIN"
	ActorCreator ActorKind = "CREATOR"
	ActorSystem  ActorKind = "SYSTEM"
	ActorGuest   ActorKind = "GUEST"
)

// Actor identifies who performed a financial transition.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

func SystemActor() Actor {
	return Actor{Kind: ActorSystem, ID: "system"}
}

// Audit actions recorded per financial transition.
const (
	AuditActionRequested         = "REQUESTED"
	AuditActionApproved          = "APPROVED"
	AuditActionTriggered         = "TRIGGERED"
	AuditActionPaid              = "PAID"
	AuditActionFailed            = "FAILED"
	AuditActionRejected          = "REJECTED"
	AuditActionPaymentRecorded   = "PAYMENT_RECORDED"
	AuditActionPaymentFailed     = "PAYMENT_FAILED"
	AuditActionRefundFlagged     = "REFUND_FLAGGED"
	AuditActionRefundCompleted   = "REFUND_COMPLETED"
	AuditActionDisputeOpened     = "DISPUTE_OPENED"
	AuditActionDisputeClosed     = "DISPUTE_CLOSED"
	AuditActionCurrencyCorrected = "CURRENCY_CORRECTED"
	AuditActionSettingsUpdated   = "SETTINGS_UPDATED"
)

// AuditLogEntry is append-only. Rows are written once inside the same
// transaction as the transition they describe and are never updated or
// deleted, so the history survives later corrections to the payout rows.
type AuditLogEntry struct {
	ID          string    `json:"id" db:"id"`
	CreatorID   string    `json:"creator_id" db:"creator_id"`
	PayoutID    *string   `json:"payout_id,omitempty" db:"payout_id"`
	Action      string    `json:"action" db:"action"`
	AmountCents int64     `json:"amount_cents" db:"amount_cents"`
	Status      string    `json:"status" db:"status"`
	ActorKind   ActorKind `json:"actor_kind" db:"actor_kind"`
	ActorID     string    `json:"actor_id" db:"actor_id"`
	Reason      string    `json:"reason,omitempty" db:"reason"`
	Metadata    string    `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
