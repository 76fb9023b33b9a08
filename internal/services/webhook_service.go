package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/creatorcall/backend/internal/processor"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// WebhookService reconciles asynchronous processor events with the ledger.
// Every handler is idempotent: the durable event log plus the
// bookings.slot_id unique constraint make at-least-once delivery safe.
type WebhookService struct {
	db           *sql.DB
	redis        *redis.Client
	reservations *ReservationService
	payments     *PaymentService
	payouts      *PayoutService
	accounts     *CreatorAccountService
	settings     *SettingsService
	reconciler   CurrencyReconciler
	audit        *AuditRecorder
	notifier     Notifier
}

// CurrencyReconciler revalidates a creator's settlement currency against
// processor truth. Satisfied by ReconciliationService.
type CurrencyReconciler interface {
	ReconcileCreator(ctx context.Context, creatorID string, dryRun bool) (*DriftReport, error)
}

func NewWebhookService(db *sql.DB, rdb *redis.Client, reservations *ReservationService, payments *PaymentService, payouts *PayoutService, accounts *CreatorAccountService, settings *SettingsService, reconciler CurrencyReconciler, notifier Notifier) *WebhookService {
	return &WebhookService{
		db:           db,
		redis:        rdb,
		reservations: reservations,
		payments:     payments,
		payouts:      payouts,
		accounts:     accounts,
		settings:     settings,
		reconciler:   reconciler,
		audit:        NewAuditRecorder(),
		notifier:     notifier,
	}
}

// Intake records the event durably before any processing. Returns false only
// when the event already ran to completion: a delivery that collides with a
// FAILED or still-RECEIVED row is accepted again, so the processor's retry
// can finish work a transient error interrupted instead of dead-ending it.
func (ws *WebhookService) Intake(ctx context.Context, event *processor.Event, rawPayload []byte) (bool, error) {
	// Redis fast path: cheap rejection of duplicate bursts. The key is only
	// written by markEvent after successful processing, so it can never hide
	// a retryable failure. The database row below remains the authority.
	if ws.redis != nil {
		key := "webhook:evt:" + event.ID
		seen, err := ws.redis.Exists(ctx, key).Result()
		if err == nil && seen > 0 {
			return false, nil
		}
	}

	result, err := ws.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider_event_id, event_type, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider_event_id) DO UPDATE
		SET status = EXCLUDED.status, processing_error = ''
		WHERE webhook_events.status <> $7`,
		uuid.New().String(), event.ID, event.Type, string(rawPayload),
		models.WebhookEventReceived, time.Now(), models.WebhookEventProcessed)
	if err != nil {
		return false, err
	}
	accepted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return accepted > 0, nil
}

// Handle dispatches one deduplicated event and records the outcome on the
// event row.
func (ws *WebhookService) Handle(ctx context.Context, event *processor.Event) error {
	var err error
	switch event.Type {
	case processor.EventPaymentSucceeded:
		err = ws.handlePaymentSucceeded(ctx, event)
	case processor.EventPaymentFailed:
		err = ws.handlePaymentFailed(ctx, event)
	case processor.EventRefundCompleted:
		err = ws.handleRefundCompleted(ctx, event)
	case processor.EventDisputeOpened:
		err = ws.handleDispute(ctx, event, true)
	case processor.EventDisputeClosed:
		err = ws.handleDispute(ctx, event, false)
	case processor.EventPayoutPaid:
		err = ws.handlePayoutPaid(ctx, event)
	case processor.EventPayoutFailed:
		err = ws.handlePayoutFailed(ctx, event)
	case processor.EventAccountUpdated:
		err = ws.handleAccountUpdated(ctx, event)
	default:
		log.Printf("[WEBHOOK] Ignoring unhandled event type %s (%s)", event.Type, event.ID)
	}

	ws.markEvent(ctx, event.ID, err)
	return err
}

// paymentEventData is the shape shared by payment-scoped events.
type paymentEventData struct {
	PaymentRef    string            `json:"payment_ref"`
	FailureReason string            `json:"failure_reason,omitempty"`
	RefundedCents int64             `json:"refunded_cents,omitempty"`
	Full          bool              `json:"full,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

type payoutEventData struct {
	PayoutRef     string `json:"payout_ref"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type accountEventData struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

// handlePaymentSucceeded is the authoritative booking path: the charge is
// confirmed, so the reservation, the payment row and the audit entry are
// committed in one transaction. Notifications and call-room provisioning
// run after commit and are best effort.
func (ws *WebhookService) handlePaymentSucceeded(ctx context.Context, event *processor.Event) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable payment event payload")
		return ErrMalformedWebhook
	}

	meta, err := parseIntentMetadata(data.Metadata)
	if err != nil {
		ws.alertOperators(event, err.Error())
		return ErrMalformedWebhook
	}

	snap, err := ws.settings.Snapshot()
	if err != nil {
		return err
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	booking, err := ws.reservations.ReserveSlotTx(ctx, tx, meta.SlotID, meta.UserID, meta.AmountCents, meta.Currency, data.PaymentRef)
	if err != nil {
		tx.Rollback()
		if IsConflict(err) || errors.Is(err, ErrSlotNotFound) {
			// The charge succeeded but the slot cannot be granted. Money
			// must never be kept without a deliverable: flag for refund.
			return ws.flagForRefund(ctx, event, meta, data.PaymentRef, err)
		}
		return err
	}

	payment, err := ws.payments.CreateTx(ctx, tx, booking.ID, meta.CreatorID, FeeBreakdown{
		AmountCents:        meta.AmountCents,
		PlatformFeeCents:   meta.PlatformFeeCents,
		CreatorAmountCents: meta.CreatorAmountCents,
	}, meta.Currency, data.PaymentRef, snap.HoldingPeriodDays)
	if err != nil {
		return err
	}

	if err := ws.audit.RecordTx(tx, AuditEntry{
		CreatorID:   meta.CreatorID,
		Action:      models.AuditActionPaymentRecorded,
		AmountCents: payment.AmountCents,
		Status:      models.PaymentStatusSucceeded,
		Actor:       models.SystemActor(),
		Metadata: map[string]string{
			"booking_id":  booking.ID,
			"payment_ref": data.PaymentRef,
			"slot_id":     meta.SlotID,
		},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	// Financial state is committed; everything below must not undo it.
	ws.provisionCallRoom(ctx, booking)
	ws.notifier.Notify(meta.UserID, NotifyBookingConfirmed, "Booking confirmed",
		"Your call is booked.", "/bookings/"+booking.ID, map[string]string{"booking_id": booking.ID})
	ws.notifier.Notify(meta.CreatorID, NotifySlotSold, "Slot booked",
		"One of your slots has been booked and paid.", "/bookings/"+booking.ID, map[string]string{"booking_id": booking.ID})
	return nil
}

// flagForRefund records the integrity violation: a successful charge with
// no reservable slot. Escalated, never swallowed.
func (ws *WebhookService) flagForRefund(ctx context.Context, event *processor.Event, meta *intentMetadata, paymentRef string, cause error) error {
	violation := &IntegrityViolation{
		ExternalRef: paymentRef,
		SlotID:      meta.SlotID,
		UserID:      meta.UserID,
		Cause:       cause,
	}
	log.Printf("[WEBHOOK] CRITICAL: %v (event %s)", violation, event.ID)

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refund_flags (id, external_payment_ref, slot_id, user_id, amount_cents, currency, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_payment_ref) DO NOTHING`,
		uuid.New().String(), paymentRef, meta.SlotID, meta.UserID,
		meta.AmountCents, meta.Currency, cause.Error(), time.Now()); err != nil {
		return err
	}

	if err := ws.audit.RecordTx(tx, AuditEntry{
		CreatorID:   meta.CreatorID,
		Action:      models.AuditActionRefundFlagged,
		AmountCents: meta.AmountCents,
		Status:      "REFUND_REQUIRED",
		Actor:       models.SystemActor(),
		Reason:      cause.Error(),
		Metadata:    map[string]string{"payment_ref": paymentRef, "slot_id": meta.SlotID},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	ws.notifier.Notify("ops", NotifyOpsAlert, "Refund required",
		fmt.Sprintf("Charge %s succeeded but slot %s could not be granted", paymentRef, meta.SlotID),
		"", map[string]string{"payment_ref": paymentRef})
	ws.notifier.Notify(meta.UserID, NotifyPaymentFailed, "Slot no longer available",
		"This slot was taken before your payment completed. Your payment will be refunded.", "", nil)
	return nil
}

func (ws *WebhookService) handlePaymentFailed(ctx context.Context, event *processor.Event) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable payment event payload")
		return ErrMalformedWebhook
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ws.audit.RecordTx(tx, AuditEntry{
		CreatorID: data.Metadata[MetaCreatorID],
		Action:    models.AuditActionPaymentFailed,
		Status:    models.PaymentStatusFailed,
		Actor:     models.SystemActor(),
		Reason:    data.FailureReason,
		Metadata:  map[string]string{"payment_ref": data.PaymentRef, "slot_id": data.Metadata[MetaSlotID]},
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	userID := data.Metadata[MetaUserID]
	if userID != "" {
		ws.notifier.Notify(userID, NotifyPaymentFailed, "Payment failed",
			"Your payment did not complete. The slot was not booked.", "", nil)
	}
	log.Printf("[WEBHOOK] Payment %s failed: %s", data.PaymentRef, data.FailureReason)
	return nil
}

func (ws *WebhookService) handleRefundCompleted(ctx context.Context, event *processor.Event) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable refund event payload")
		return ErrMalformedWebhook
	}

	payment, err := ws.payments.GetByExternalRef(ctx, data.PaymentRef)
	if err == sql.ErrNoRows {
		// Refund of a flagged charge that never produced a payment row.
		log.Printf("[WEBHOOK] Refund for unknown payment ref %s, resolving refund flag", data.PaymentRef)
		_, err := ws.db.ExecContext(ctx,
			`UPDATE refund_flags SET resolved_at = $1 WHERE external_payment_ref = $2`,
			time.Now(), data.PaymentRef)
		return err
	}
	if err != nil {
		return err
	}

	full := data.Full || data.RefundedCents >= payment.AmountCents

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ws.payments.MarkRefundedTx(ctx, tx, payment.ID, data.RefundedCents, full); err != nil {
		return err
	}

	if full {
		if err := ws.reservations.CancelBookingTx(ctx, tx, payment.BookingID); err != nil && !errors.Is(err, ErrBookingNotFound) {
			return err
		}
	}

	if err := ws.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payment.CreatorID,
		Action:      models.AuditActionRefundCompleted,
		AmountCents: data.RefundedCents,
		Status:      payment.Status,
		Actor:       models.SystemActor(),
		Metadata:    map[string]string{"payment_ref": data.PaymentRef, "full": strconv.FormatBool(full)},
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	booking, err := ws.reservations.GetBooking(ctx, payment.BookingID)
	if err == nil {
		ws.notifier.Notify(booking.UserID, NotifyRefundIssued, "Refund issued",
			"Your payment has been refunded.", "", map[string]string{"booking_id": booking.ID})
	}
	return nil
}

func (ws *WebhookService) handleDispute(ctx context.Context, event *processor.Event, opened bool) error {
	var data paymentEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable dispute event payload")
		return ErrMalformedWebhook
	}

	payment, err := ws.payments.GetByExternalRef(ctx, data.PaymentRef)
	if err != nil {
		return err
	}

	if err := ws.payments.SetDisputed(ctx, payment.ID, opened); err != nil {
		return err
	}

	action := models.AuditActionDisputeOpened
	blockReason := "open dispute on payment " + data.PaymentRef
	if !opened {
		action = models.AuditActionDisputeClosed
		blockReason = ""
	}
	if err := ws.accounts.SetPayoutBlocked(ctx, payment.CreatorID, opened, blockReason); err != nil {
		return err
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ws.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payment.CreatorID,
		Action:      action,
		AmountCents: payment.AmountCents,
		Status:      payment.Status,
		Actor:       models.SystemActor(),
		Metadata:    map[string]string{"payment_ref": data.PaymentRef},
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (ws *WebhookService) handlePayoutPaid(ctx context.Context, event *processor.Event) error {
	var data payoutEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable payout event payload")
		return ErrMalformedWebhook
	}
	return ws.payouts.MarkPaid(ctx, data.PayoutRef)
}

func (ws *WebhookService) handlePayoutFailed(ctx context.Context, event *processor.Event) error {
	var data payoutEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable payout event payload")
		return ErrMalformedWebhook
	}
	reason := data.FailureReason
	if reason == "" {
		reason = "processor reported payout failure"
	}
	return ws.payouts.MarkFailed(ctx, data.PayoutRef, reason)
}

func (ws *WebhookService) handleAccountUpdated(ctx context.Context, event *processor.Event) error {
	var data accountEventData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		ws.alertOperators(event, "undecodable account event payload")
		return ErrMalformedWebhook
	}

	acct, err := ws.accounts.FindByExternalAccount(ctx, data.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			log.Printf("[WEBHOOK] Account update for unknown account %s", data.AccountID)
			return nil
		}
		return err
	}

	onboarded := data.ChargesEnabled && data.PayoutsEnabled && data.DetailsSubmitted
	if err := ws.accounts.SetOnboarded(ctx, acct.CreatorID, onboarded); err != nil {
		return err
	}

	// Capability changes often come with a settlement-currency change, so
	// revalidate this creator immediately instead of waiting for the daily
	// sweep. Best effort: the sweep remains the backstop.
	if ws.reconciler != nil {
		if _, err := ws.reconciler.ReconcileCreator(ctx, acct.CreatorID, false); err != nil {
			log.Printf("[WEBHOOK] Currency reconciliation after account update failed for %s: %v", acct.CreatorID, err)
		}
	}
	return nil
}

func (ws *WebhookService) markEvent(ctx context.Context, providerEventID string, handleErr error) {
	status := models.WebhookEventProcessed
	processingError := ""
	if handleErr != nil {
		status = models.WebhookEventFailed
		processingError = handleErr.Error()
	}
	if _, err := ws.db.ExecContext(ctx, `
		UPDATE webhook_events SET status = $1, processing_error = $2, processed_at = $3
		WHERE provider_event_id = $4`,
		status, processingError, time.Now(), providerEventID); err != nil {
		log.Printf("[WEBHOOK] Failed to mark event %s: %v", providerEventID, err)
	}

	// The fast-path key is written only for completed events, so a retry of
	// a failed attempt never gets swallowed before it reaches the database.
	if handleErr == nil && ws.redis != nil {
		key := "webhook:evt:" + providerEventID
		if err := ws.redis.Set(ctx, key, 1, 24*time.Hour).Err(); err != nil {
			log.Printf("[WEBHOOK] Failed to cache processed event %s: %v", providerEventID, err)
		}
	}
}

func (ws *WebhookService) alertOperators(event *processor.Event, detail string) {
	log.Printf("[WEBHOOK] ALERT: malformed event %s (%s): %s", event.ID, event.Type, detail)
	ws.notifier.Notify("ops", NotifyOpsAlert, "Malformed webhook",
		fmt.Sprintf("Event %s (%s): %s", event.ID, event.Type, detail), "", nil)
}

// provisionCallRoom asks the call-room collaborator for a room. Failure is
// logged and retried out of band; the paid booking stands either way.
func (ws *WebhookService) provisionCallRoom(ctx context.Context, booking *models.Booking) {
	roomURL := "/rooms/" + booking.ID
	if _, err := ws.db.ExecContext(ctx, `
		UPDATE bookings SET call_room_url = $1, updated_at = $2 WHERE id = $3`,
		roomURL, time.Now(), booking.ID); err != nil {
		log.Printf("[WEBHOOK] Call room provisioning failed for booking %s: %v", booking.ID, err)
	}
}

// intentMetadata is the reconstruction bag written at intent time.
type intentMetadata struct {
	SlotID             string
	UserID             string
	CreatorID          string
	AmountCents        int64
	PlatformFeeCents   int64
	CreatorAmountCents int64
	Currency           string
	FlowVersion        string
}

func parseIntentMetadata(meta map[string]string) (*intentMetadata, error) {
	if meta == nil {
		return nil, errors.New("missing intent metadata")
	}

	required := []string{MetaSlotID, MetaUserID, MetaCreatorID, MetaAmountCents, MetaPlatformFee, MetaCreatorAmount, MetaCurrency}
	for _, key := range required {
		if meta[key] == "" {
			return nil, fmt.Errorf("intent metadata missing %s", key)
		}
	}

	amount, err := strconv.ParseInt(meta[MetaAmountCents], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", MetaAmountCents, err)
	}
	fee, err := strconv.ParseInt(meta[MetaPlatformFee], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", MetaPlatformFee, err)
	}
	creatorAmount, err := strconv.ParseInt(meta[MetaCreatorAmount], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", MetaCreatorAmount, err)
	}
	if fee+creatorAmount != amount {
		return nil, fmt.Errorf("fee split %d+%d does not sum to amount %d", fee, creatorAmount, amount)
	}

	return &intentMetadata{
		SlotID:             meta[MetaSlotID],
		UserID:             meta[MetaUserID],
		CreatorID:          meta[MetaCreatorID],
		AmountCents:        amount,
		PlatformFeeCents:   fee,
		CreatorAmountCents: creatorAmount,
		Currency:           meta[MetaCurrency],
		FlowVersion:        meta[MetaFlowVersion],
	}, nil
}
