package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/google/uuid"
)

// AuditRecorder writes the append-only financial audit trail. Entries are
// inserted inside the same database transaction as the transition they
// describe: if the entry cannot be written, the transition must not commit.
type AuditRecorder struct{}

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

// AuditEntry is the input for one trail row.
type AuditEntry struct {
	CreatorID   string
	PayoutID    *string
	Action      string
	AmountCents int64
	Status      string
	Actor       models.Actor
	Reason      string
	Metadata    map[string]string
}

// RecordTx appends one entry within tx. The enclosing transaction is
// expected to roll back on error; an unaudited financial mutation is worse
// than a rejected one.
func (a *AuditRecorder) RecordTx(tx *sql.Tx, entry AuditEntry) error {
	metadata := "{}"
	if len(entry.Metadata) > 0 {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			metadata = string(data)
		}
	}

	_, err := tx.Exec(`
		INSERT INTO audit_log_entries
			(id, creator_id, payout_id, action, amount_cents, status, actor_kind, actor_id, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New().String(), entry.CreatorID, entry.PayoutID, entry.Action, entry.AmountCents,
		entry.Status, string(entry.Actor.Kind), entry.Actor.ID, entry.Reason, metadata, time.Now())
	if err != nil {
		return err
	}

	a.logOperational(entry)
	return nil
}

// ListForPayout returns the full trail for a payout, oldest first.
func (a *AuditRecorder) ListForPayout(db *sql.DB, payoutID string) ([]models.AuditLogEntry, error) {
	rows, err := db.Query(`
		SELECT id, creator_id, payout_id, action, amount_cents, status, actor_kind, actor_id, reason, metadata, created_at
		FROM audit_log_entries
		WHERE payout_id = $1
		ORDER BY created_at ASC`, payoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.AuditLogEntry{}
	for rows.Next() {
		var e models.AuditLogEntry
		var kind string
		if err := rows.Scan(&e.ID, &e.CreatorID, &e.PayoutID, &e.Action, &e.AmountCents,
			&e.Status, &kind, &e.ActorID, &e.Reason, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorKind = models.ActorKind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type operationalEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Action    string            `json:"action"`
	CreatorID string            `json:"creator_id"`
	PayoutID  string            `json:"payout_id,omitempty"`
	Amount    int64             `json:"amount_cents"`
	Status    string            `json:"status"`
	Actor     string            `json:"actor"`
	Reason    string            `json:"reason,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// logOperational mirrors every trail row onto the process log for operators.
func (a *AuditRecorder) logOperational(entry AuditEntry) {
	event := operationalEvent{
		Timestamp: time.Now(),
		Action:    entry.Action,
		CreatorID: entry.CreatorID,
		Amount:    entry.AmountCents,
		Status:    entry.Status,
		Actor:     string(entry.Actor.Kind) + ":" + entry.Actor.ID,
		Reason:    entry.Reason,
		Details:   entry.Metadata,
	}
	if entry.PayoutID != nil {
		event.PayoutID = *entry.PayoutID
	}
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
