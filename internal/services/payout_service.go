package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/creatorcall/backend/internal/processor"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PayoutService drives the payout lifecycle REQUESTED -> APPROVED ->
// PROCESSING -> PAID, with REJECTED as an admin exit and a compensating
// rollback to REQUESTED whenever the processor refuses a transfer. Every
// transition is a compare-and-swap on the current status plus an audit
// entry in the same transaction, so concurrent admin actions cannot both
// succeed and no transition goes unrecorded.
type PayoutService struct {
	db          *sql.DB
	payments    *PaymentService
	accounts    *CreatorAccountService
	eligibility *EligibilityService
	processor   processor.Client
	audit       *AuditRecorder
	notifier    Notifier
	validator   *ValidationHelper
}

func NewPayoutService(db *sql.DB, payments *PaymentService, accounts *CreatorAccountService, eligibility *EligibilityService, proc processor.Client, notifier Notifier) *PayoutService {
	return &PayoutService{
		db:          db,
		payments:    payments,
		accounts:    accounts,
		eligibility: eligibility,
		processor:   proc,
		audit:       NewAuditRecorder(),
		notifier:    notifier,
		validator:   NewValidationHelper(),
	}
}

// EligibilityError carries the failed checks back to the caller before any
// processor call was made.
type EligibilityError struct {
	Result *EligibilityResult
}

func (e *EligibilityError) Error() string {
	return "payout not eligible: " + strings.Join(e.Result.Reasons, "; ")
}

// Request creates a payout in REQUESTED. Creator-initiated requests are
// only allowed on MANUAL schedules; the scheduler uses the SYSTEM actor.
// Eligibility is re-validated here even for automatic payouts.
func (s *PayoutService) Request(ctx context.Context, creatorID string, amountCents int64, actor models.Actor) (*models.Payout, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}

	acct, err := s.accounts.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if actor.Kind == models.ActorCreator && acct.PayoutSchedule != models.PayoutScheduleManual {
		return nil, ErrManualRequestNotAllowed
	}

	result, err := s.eligibility.Evaluate(ctx, creatorID, amountCents)
	if err != nil {
		return nil, err
	}
	if !result.Eligible {
		return nil, &EligibilityError{Result: result}
	}

	payout := &models.Payout{
		ID:          uuid.New().String(),
		CreatorID:   creatorID,
		AmountCents: amountCents,
		Currency:    acct.Currency,
		Status:      models.PayoutStatusRequested,
		RequestedAt: time.Now(),
		RequestedBy: actor.ID,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payouts (id, creator_id, amount_cents, currency, status, requested_at, requested_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6, $6)`,
		payout.ID, payout.CreatorID, payout.AmountCents, payout.Currency,
		payout.Status, payout.RequestedAt, payout.RequestedBy); err != nil {
		return nil, err
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   creatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionRequested,
		AmountCents: amountCents,
		Status:      models.PayoutStatusRequested,
		Actor:       actor,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payout, nil
}

// Approve moves REQUESTED -> APPROVED and immediately attempts the
// processor transfer. A double-click approve loses the CAS and gets
// ErrInvalidState instead of silently approving twice. The eligible balance
// is re-read here, not trusted from request time: refunds and disputes may
// have shrunk it while the payout sat in the queue.
func (s *PayoutService) Approve(ctx context.Context, payoutID, adminID string) (*models.Payout, error) {
	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	ready, err := s.payments.ReadyBalance(ctx, payout.CreatorID)
	if err != nil {
		return nil, err
	}
	if payout.AmountCents > ready {
		return nil, &EligibilityError{Result: &EligibilityResult{
			Checks: map[string]bool{CheckSufficientBalance: false},
			Reasons: []string{fmt.Sprintf(
				"amount %d exceeds the eligible balance %d at approval time", payout.AmountCents, ready)},
		}}
	}

	actor := models.Actor{Kind: models.ActorAdmin, ID: adminID}
	if adminID == "scheduler" {
		actor = models.SystemActor()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, approved_at = $2, approved_by = $3, updated_at = $2
		WHERE id = $4 AND status = $5`,
		models.PayoutStatusApproved, now, actor.ID, payoutID, models.PayoutStatusRequested)
	if err != nil {
		return nil, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrInvalidState
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payout.CreatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionApproved,
		AmountCents: payout.AmountCents,
		Status:      models.PayoutStatusApproved,
		Actor:       actor,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if err := s.process(ctx, payout, actor); err != nil {
		return nil, err
	}
	return s.Get(ctx, payoutID)
}

// process attempts the transfer at the processor and moves APPROVED ->
// PROCESSING, or compensates back to REQUESTED on failure. A timeout is an
// unknown outcome: the transfer is looked up by its idempotency key (the
// payout id) before anything else, so a transfer that actually went through
// is adopted rather than doubled, and only a confirmed miss is re-created.
func (s *PayoutService) process(ctx context.Context, payout *models.Payout, actor models.Actor) error {
	acct, err := s.accounts.Get(ctx, payout.CreatorID)
	if err != nil {
		return s.compensate(ctx, payout, "payout account unavailable: "+err.Error(), actor)
	}

	req := processor.PayoutRequest{
		AmountCents:        payout.AmountCents,
		Currency:           acct.Currency,
		DestinationAccount: acct.ExternalAccountID,
		IdempotencyKey:     payout.ID,
		Metadata: map[string]string{
			"payout_id":  payout.ID,
			"creator_id": payout.CreatorID,
		},
	}

	transfer, err := s.processor.CreatePayout(ctx, req)
	if err != nil && processor.IsTimeout(err) {
		log.Printf("[PAYOUT] Transfer call timed out for %s, polling for the outcome", payout.ID)
		transfer, err = s.recoverTransfer(ctx, payout, req)
	}
	if err != nil {
		return s.compensate(ctx, payout, err.Error(), actor)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, external_payout_ref = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.PayoutStatusProcessing, transfer.ID, now, payout.ID, models.PayoutStatusApproved)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidState
	}

	if err := s.payments.AttachToPayoutTx(ctx, tx, payout.CreatorID, payout.ID, payout.AmountCents); err != nil {
		return err
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payout.CreatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionTriggered,
		AmountCents: payout.AmountCents,
		Status:      models.PayoutStatusProcessing,
		Actor:       actor,
		Metadata:    map[string]string{"external_payout_ref": transfer.ID},
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// recoverTransfer resolves a timed-out create. The transfer may or may not
// exist at the processor, so it is polled by the idempotency key first; the
// create is retried under the same key only when the processor confirms it
// has no record of it.
func (s *PayoutService) recoverTransfer(ctx context.Context, payout *models.Payout, req processor.PayoutRequest) (*processor.Transfer, error) {
	transfer, err := s.processor.GetPayout(ctx, payout.ID)
	if err == nil {
		log.Printf("[PAYOUT] Poll found transfer %s for payout %s, adopting it", transfer.ID, payout.ID)
		return transfer, nil
	}
	if processor.IsTimeout(err) {
		// Still unknown. Compensation is safe: the idempotency key blocks a
		// double transfer when the payout is re-approved.
		return nil, err
	}
	log.Printf("[PAYOUT] Poll found no transfer for payout %s (%v), retrying create", payout.ID, err)
	return s.processor.CreatePayout(ctx, req)
}

// compensate rolls a payout that failed at the processor back to REQUESTED,
// clearing the approval so it can be retried. No money moved, so state
// rollback is the whole remedy; the FAILED audit entry keeps the attempt
// on record.
func (s *PayoutService) compensate(ctx context.Context, payout *models.Payout, reason string, actor models.Actor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, approved_at = NULL, approved_by = NULL, failed_at = $2, failure_reason = $3, updated_at = $2
		WHERE id = $4 AND status IN ($5, $6)`,
		models.PayoutStatusRequested, now, reason, payout.ID,
		models.PayoutStatusApproved, models.PayoutStatusProcessing)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidState
	}

	if err := s.payments.DetachFromPayoutTx(ctx, tx, payout.ID); err != nil {
		return err
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payout.CreatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionFailed,
		AmountCents: payout.AmountCents,
		Status:      models.PayoutStatusRequested,
		Actor:       actor,
		Reason:      reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.notifier.Notify(payout.CreatorID, NotifyPayoutFailed, "Payout attempt failed",
		"Your payout could not be processed and has been queued for retry.", "", nil)
	return nil
}

// Reject is the admin exit from REQUESTED. Terminal, reason mandatory.
func (s *PayoutService) Reject(ctx context.Context, payoutID, adminID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrEmptyReason
	}

	payout, err := s.Get(ctx, payoutID)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, rejected_at = $2, rejection_reason = $3, updated_at = $2
		WHERE id = $4 AND status = $5`,
		models.PayoutStatusRejected, now, reason, payoutID, models.PayoutStatusRequested)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInvalidState
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payout.CreatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionRejected,
		AmountCents: payout.AmountCents,
		Status:      models.PayoutStatusRejected,
		Actor:       models.Actor{Kind: models.ActorAdmin, ID: adminID},
		Reason:      reason,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.notifier.Notify(payout.CreatorID, NotifyPayoutRejected, "Payout rejected", reason, "", nil)
	return nil
}

// MarkPaid settles a payout from the processor's terminal event:
// PROCESSING -> PAID, all consumed payments -> PAID.
func (s *PayoutService) MarkPaid(ctx context.Context, externalRef string) error {
	payout, err := s.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, completed_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4`,
		models.PayoutStatusPaid, now, payout.ID, models.PayoutStatusProcessing)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Duplicate delivery of the paid event: already settled.
		if payout.Status == models.PayoutStatusPaid {
			return nil
		}
		return ErrInvalidState
	}

	if err := s.payments.MarkPaidForPayoutTx(ctx, tx, payout.ID); err != nil {
		return err
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID:   payout.CreatorID,
		PayoutID:    &payout.ID,
		Action:      models.AuditActionPaid,
		AmountCents: payout.AmountCents,
		Status:      models.PayoutStatusPaid,
		Actor:       models.SystemActor(),
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.notifier.Notify(payout.CreatorID, NotifyPayoutPaid, "Payout sent",
		"Your payout has been paid out to your bank account.", "", nil)
	return nil
}

// MarkFailed compensates a payout the processor reported as failed after
// acceptance.
func (s *PayoutService) MarkFailed(ctx context.Context, externalRef, reason string) error {
	payout, err := s.GetByExternalRef(ctx, externalRef)
	if err != nil {
		return err
	}
	if payout.Status == models.PayoutStatusRequested {
		// Already compensated; duplicate event.
		return nil
	}
	return s.compensate(ctx, payout, reason, models.SystemActor())
}

// Get loads one payout row.
func (s *PayoutService) Get(ctx context.Context, payoutID string) (*models.Payout, error) {
	return s.scanPayout(s.db.QueryRowContext(ctx, payoutSelect+` WHERE id = $1`, payoutID))
}

// GetByExternalRef resolves a processor transfer reference.
func (s *PayoutService) GetByExternalRef(ctx context.Context, externalRef string) (*models.Payout, error) {
	return s.scanPayout(s.db.QueryRowContext(ctx, payoutSelect+` WHERE external_payout_ref = $1`, externalRef))
}

const payoutSelect = `
	SELECT id, creator_id, amount_cents, currency, status, requested_at, requested_by,
	       approved_at, approved_by, rejected_at, completed_at, failed_at,
	       external_payout_ref, failure_reason, rejection_reason, created_at, updated_at
	FROM payouts`

func (s *PayoutService) scanPayout(row *sql.Row) (*models.Payout, error) {
	var p models.Payout
	var externalRef, failureReason, rejectionReason sql.NullString
	err := row.Scan(
		&p.ID, &p.CreatorID, &p.AmountCents, &p.Currency, &p.Status, &p.RequestedAt, &p.RequestedBy,
		&p.ApprovedAt, &p.ApprovedBy, &p.RejectedAt, &p.CompletedAt, &p.FailedAt,
		&externalRef, &failureReason, &rejectionReason, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ExternalPayoutRef = externalRef.String
	p.FailureReason = failureReason.String
	p.RejectionReason = rejectionReason.String
	return &p, nil
}

// ReleaseHeldPayments runs the holding-period release. Scheduler entry.
func (s *PayoutService) ReleaseHeldPayments(ctx context.Context) error {
	released, err := s.payments.ReleaseDue(ctx)
	if err != nil {
		return err
	}
	if released > 0 {
		log.Printf("[PAYOUT] Released %d held payments to READY", released)
	}
	return nil
}

// RunScheduled requests and approves payouts for creators on automatic
// schedules whose eligible balance passes all checks. Each creator is
// isolated: one failure never aborts the run.
func (s *PayoutService) RunScheduled(ctx context.Context) {
	accounts, err := s.accounts.ListConnected(ctx)
	if err != nil {
		log.Printf("[PAYOUT] Scheduled run: failed to list accounts: %v", err)
		return
	}

	for _, acct := range accounts {
		if acct.PayoutSchedule == models.PayoutScheduleManual || acct.IsPayoutBlocked {
			continue
		}

		ready, err := s.payments.ReadyBalance(ctx, acct.CreatorID)
		if err != nil {
			log.Printf("[PAYOUT] Scheduled run: balance lookup failed for %s: %v", acct.CreatorID, err)
			continue
		}
		if ready <= 0 {
			continue
		}

		payout, err := s.Request(ctx, acct.CreatorID, ready, models.SystemActor())
		if err != nil {
			var ee *EligibilityError
			if errors.As(err, &ee) {
				log.Printf("[PAYOUT] Scheduled run: %s not eligible: %s", acct.CreatorID, strings.Join(ee.Result.Reasons, "; "))
			} else {
				log.Printf("[PAYOUT] Scheduled run: request failed for %s: %v", acct.CreatorID, err)
			}
			continue
		}

		if _, err := s.Approve(ctx, payout.ID, "scheduler"); err != nil {
			log.Printf("[PAYOUT] Scheduled run: approve failed for payout %s: %v", payout.ID, err)
		}
	}
}

// RequestPayout handles a creator's manual payout request
// @Summary Request payout
// @Description Create a payout request for the authenticated creator (manual schedule only)
// @Tags payouts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount_cents=int64} true "Requested amount in cents"
// @Success 201 {object} models.Payout
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} object{error=string,reasons=[]string}
// @Router /payouts [post]
func (s *PayoutService) RequestPayout(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := r.Context().Value("userID").(string)
	if !ok || creatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payout, err := s.Request(r.Context(), creatorID, req.AmountCents, models.Actor{Kind: models.ActorCreator, ID: creatorID})
	if err != nil {
		var ee *EligibilityError
		switch {
		case errors.As(err, &ee):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "Payout not eligible",
				"reasons": ee.Result.Reasons,
				"checks":  ee.Result.Checks,
			})
		case errors.Is(err, ErrManualRequestNotAllowed):
			SendErrorResponse(w, "Manual payout requests are not enabled for this account", http.StatusForbidden, nil)
		case errors.Is(err, ErrInvalidAmount):
			SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
		case errors.Is(err, ErrNotConfigured):
			SendErrorResponse(w, "No payout account configured", http.StatusConflict, nil)
		default:
			log.Printf("[PAYOUT] Request failed for %s: %v", creatorID, err)
			SendErrorResponse(w, "Failed to create payout request", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payout)
}

// ApprovePayout handles admin approval
// @Summary Approve payout
// @Description Approve a requested payout and trigger the processor transfer
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {object} models.Payout
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} object{error=string,reasons=[]string}
// @Router /payouts/{payoutId}/approve [post]
func (s *PayoutService) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	payoutID := chi.URLParam(r, "payoutId")

	payout, err := s.Approve(r.Context(), payoutID, adminID)
	if err != nil {
		var ee *EligibilityError
		switch {
		case errors.Is(err, ErrPayoutNotFound):
			SendErrorResponse(w, "Payout not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInvalidState):
			SendErrorResponse(w, "Payout already processed", http.StatusConflict, nil)
		case errors.As(err, &ee):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "Payout not eligible",
				"reasons": ee.Result.Reasons,
				"checks":  ee.Result.Checks,
			})
		default:
			log.Printf("[PAYOUT] Approve failed for %s: %v", payoutID, err)
			SendErrorResponse(w, "Failed to approve payout", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payout)
}

// RejectPayout handles admin rejection
// @Summary Reject payout
// @Description Reject a requested payout with a mandatory reason
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Param request body object{reason=string} true "Rejection reason"
// @Success 200 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /payouts/{payoutId}/reject [post]
func (s *PayoutService) RejectPayout(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)
	payoutID := chi.URLParam(r, "payoutId")

	var req struct {
		Reason string `json:"reason" validate:"required,min=3"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := s.Reject(r.Context(), payoutID, adminID, req.Reason); err != nil {
		switch {
		case errors.Is(err, ErrEmptyReason):
			SendErrorResponse(w, "Rejection reason is required", http.StatusBadRequest, nil)
		case errors.Is(err, ErrPayoutNotFound):
			SendErrorResponse(w, "Payout not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrInvalidState):
			SendErrorResponse(w, "Payout already processed", http.StatusConflict, nil)
		default:
			log.Printf("[PAYOUT] Reject failed for %s: %v", payoutID, err)
			SendErrorResponse(w, "Failed to reject payout", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "rejected"})
}

// GetPayoutAudit returns the audit trail for a payout
// @Summary Payout audit trail
// @Description Full append-only history of a payout, independent of its current row
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param payoutId path string true "Payout ID"
// @Success 200 {array} models.AuditLogEntry
// @Failure 404 {object} ErrorResponse
// @Router /payouts/{payoutId}/audit [get]
func (s *PayoutService) GetPayoutAudit(w http.ResponseWriter, r *http.Request) {
	payoutID := chi.URLParam(r, "payoutId")

	if _, err := s.Get(r.Context(), payoutID); err != nil {
		if errors.Is(err, ErrPayoutNotFound) {
			SendErrorResponse(w, "Payout not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch payout", http.StatusInternalServerError, nil)
		}
		return
	}

	entries, err := s.audit.ListForPayout(s.db, payoutID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch audit trail", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
