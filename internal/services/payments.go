package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/google/uuid"
)

// PaymentService owns the payment rows and their payout-status lifecycle
// (HELD -> READY -> PROCESSING -> PAID).
type PaymentService struct {
	db *sql.DB
}

func NewPaymentService(db *sql.DB) *PaymentService {
	return &PaymentService{db: db}
}

// CreateTx inserts the payment row inside the reservation transaction.
// The row starts HELD with the release date derived from the holding
// period, never READY.
func (ps *PaymentService) CreateTx(ctx context.Context, tx *sql.Tx, bookingID, creatorID string, fees FeeBreakdown, currency, externalRef string, holdingPeriodDays int) (*models.Payment, error) {
	now := time.Now()
	payment := &models.Payment{
		ID:                 uuid.New().String(),
		BookingID:          bookingID,
		CreatorID:          creatorID,
		AmountCents:        fees.AmountCents,
		Currency:           currency,
		PlatformFeeCents:   fees.PlatformFeeCents,
		CreatorAmountCents: fees.CreatorAmountCents,
		Status:             models.PaymentStatusSucceeded,
		PayoutStatus:       models.PaymentPayoutHeld,
		PayoutReleaseAt:    now.AddDate(0, 0, holdingPeriodDays),
		ExternalPaymentRef: externalRef,
		CreatedAt:          now,
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments
			(id, booking_id, creator_id, amount_cents, currency, platform_fee_cents, creator_amount_cents,
			 status, payout_status, payout_release_at, external_payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		payment.ID, payment.BookingID, payment.CreatorID, payment.AmountCents, payment.Currency,
		payment.PlatformFeeCents, payment.CreatorAmountCents, payment.Status, payment.PayoutStatus,
		payment.PayoutReleaseAt, payment.ExternalPaymentRef, payment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// GetByExternalRef resolves a processor payment reference to the ledger row.
func (ps *PaymentService) GetByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error) {
	var p models.Payment
	err := ps.db.QueryRowContext(ctx, `
		SELECT id, booking_id, creator_id, amount_cents, currency, platform_fee_cents, creator_amount_cents,
		       status, payout_status, payout_release_at, external_payment_ref, refunded_cents, disputed, created_at, updated_at
		FROM payments
		WHERE external_payment_ref = $1`, externalRef).Scan(
		&p.ID, &p.BookingID, &p.CreatorID, &p.AmountCents, &p.Currency, &p.PlatformFeeCents,
		&p.CreatorAmountCents, &p.Status, &p.PayoutStatus, &p.PayoutReleaseAt,
		&p.ExternalPaymentRef, &p.RefundedCents, &p.Disputed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkRefundedTx records a completed refund. A fully refunded payment is
// pulled out of the payout pipeline unless a payout already consumed it.
func (ps *PaymentService) MarkRefundedTx(ctx context.Context, tx *sql.Tx, paymentID string, refundedCents int64, full bool) error {
	status := models.PaymentStatusPartiallyRefunded
	if full {
		status = models.PaymentStatusRefunded
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, refunded_cents = refunded_cents + $2, refunded_at = $3, updated_at = $3
		WHERE id = $4`,
		status, refundedCents, time.Now(), paymentID)
	return err
}

// SetDisputed flags or clears a dispute on the payment.
func (ps *PaymentService) SetDisputed(ctx context.Context, paymentID string, disputed bool) error {
	_, err := ps.db.ExecContext(ctx, `
		UPDATE payments SET disputed = $1, updated_at = $2 WHERE id = $3`,
		disputed, time.Now(), paymentID)
	return err
}

// ReleaseDue moves HELD payments whose release date has passed to READY.
// Run by the scheduler; returns how many rows were released.
func (ps *PaymentService) ReleaseDue(ctx context.Context) (int64, error) {
	result, err := ps.db.ExecContext(ctx, `
		UPDATE payments
		SET payout_status = $1, updated_at = $2
		WHERE payout_status = $3 AND payout_release_at <= $2 AND disputed = FALSE`,
		models.PaymentPayoutReady, time.Now(), models.PaymentPayoutHeld)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ReadyBalance sums the creator amounts currently eligible for payout.
func (ps *PaymentService) ReadyBalance(ctx context.Context, creatorID string) (int64, error) {
	var total sql.NullInt64
	err := ps.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(creator_amount_cents), 0)
		FROM payments
		WHERE creator_id = $1 AND payout_status = $2 AND disputed = FALSE AND status <> $3`,
		creatorID, models.PaymentPayoutReady, models.PaymentStatusRefunded).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// OverdueHeldCount counts HELD payments already past their release date.
// A non-zero count means held funds may be leaking into the processor's
// available balance before the ledger released them.
func (ps *PaymentService) OverdueHeldCount(ctx context.Context, creatorID string) (int, error) {
	var count int
	err := ps.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM payments
		WHERE creator_id = $1 AND payout_status = $2 AND payout_release_at <= $3`,
		creatorID, models.PaymentPayoutHeld, time.Now()).Scan(&count)
	return count, err
}

// AttachToPayoutTx moves up to amountCents of READY payments into
// PROCESSING under the given payout. Oldest first.
func (ps *PaymentService) AttachToPayoutTx(ctx context.Context, tx *sql.Tx, creatorID, payoutID string, amountCents int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, creator_amount_cents
		FROM payments
		WHERE creator_id = $1 AND payout_status = $2 AND disputed = FALSE AND status <> $3
		ORDER BY created_at ASC
		FOR UPDATE`, creatorID, models.PaymentPayoutReady, models.PaymentStatusRefunded)
	if err != nil {
		return err
	}

	var ids []string
	var covered int64
	for rows.Next() {
		var id string
		var amount int64
		if err := rows.Scan(&id, &amount); err != nil {
			rows.Close()
			return err
		}
		if covered >= amountCents {
			break
		}
		ids = append(ids, id)
		covered += amount
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	now := time.Now()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET payout_status = $1, payout_id = $2, updated_at = $3 WHERE id = $4`,
			models.PaymentPayoutProcessing, payoutID, now, id); err != nil {
			return err
		}
	}
	return nil
}

// DetachFromPayoutTx reverts the payments of a failed payout back to READY.
func (ps *PaymentService) DetachFromPayoutTx(ctx context.Context, tx *sql.Tx, payoutID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments SET payout_status = $1, payout_id = NULL, updated_at = $2
		WHERE payout_id = $3 AND payout_status = $4`,
		models.PaymentPayoutReady, time.Now(), payoutID, models.PaymentPayoutProcessing)
	return err
}

// MarkPaidForPayoutTx settles every payment consumed by a paid payout.
func (ps *PaymentService) MarkPaidForPayoutTx(ctx context.Context, tx *sql.Tx, payoutID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payments SET payout_status = $1, updated_at = $2
		WHERE payout_id = $3 AND payout_status = $4`,
		models.PaymentPayoutPaid, time.Now(), payoutID, models.PaymentPayoutProcessing)
	return err
}
