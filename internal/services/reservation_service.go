package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ReservationService owns the atomic check-and-create of a booking against
// a slot. Two lines of defense keep a slot from selling twice: the row lock
// taken while checking availability, and the unique constraint on
// bookings.slot_id for anything that slips past it (duplicate webhook
// deliveries, retried requests).
type ReservationService struct {
	db *sql.DB
}

func NewReservationService(db *sql.DB) *ReservationService {
	return &ReservationService{db: db}
}

// ReserveSlot books slotID for userID in one transaction. priceCents is the
// price snapshot taken at intent time, not re-read from the slot, so a
// creator repricing mid-checkout cannot change what the buyer was charged.
func (rs *ReservationService) ReserveSlot(ctx context.Context, slotID, userID string, priceCents int64, currency, externalRef string) (*models.Booking, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	booking, err := rs.ReserveSlotTx(ctx, tx, slotID, userID, priceCents, currency, externalRef)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return booking, nil
}

// ReserveSlotTx runs the reservation inside an existing transaction so the
// webhook handler can commit the booking and the payment row atomically.
func (rs *ReservationService) ReserveSlotTx(ctx context.Context, tx *sql.Tx, slotID, userID string, priceCents int64, currency, externalRef string) (*models.Booking, error) {
	slot, err := rs.lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.Status != models.SlotStatusAvailable {
		return nil, ErrSlotNotAvailable
	}

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bookings WHERE slot_id = $1`, slotID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrSlotAlreadyBooked
	}

	if slot.StartsAt.Before(time.Now()) {
		return nil, ErrSlotExpired
	}

	booking := &models.Booking{
		ID:                 uuid.New().String(),
		UserID:             userID,
		SlotID:             slotID,
		Status:             models.BookingStatusConfirmed,
		TotalPriceCents:    priceCents,
		Currency:           currency,
		ExternalPaymentRef: externalRef,
		CreatedAt:          time.Now(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, slot_id, status, total_price_cents, currency, external_payment_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		booking.ID, booking.UserID, booking.SlotID, booking.Status,
		booking.TotalPriceCents, booking.Currency, booking.ExternalPaymentRef, booking.CreatedAt)
	if err != nil {
		return nil, translateBookingErr(err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE slots SET status = $1, updated_at = $2 WHERE id = $3`,
		models.SlotStatusBooked, time.Now(), slotID); err != nil {
		return nil, err
	}

	return booking, nil
}

// ValidatePayable runs the availability checks read-only, for intent
// creation. It must not reserve anything: abandoned checkouts would
// otherwise block slots forever.
func (rs *ReservationService) ValidatePayable(ctx context.Context, slotID string) (*models.Slot, error) {
	slot, err := rs.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.Status != models.SlotStatusAvailable {
		return nil, ErrSlotNotAvailable
	}

	var existing int
	if err := rs.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM bookings WHERE slot_id = $1`, slotID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrSlotAlreadyBooked
	}

	if slot.StartsAt.Before(time.Now()) {
		return nil, ErrSlotExpired
	}

	return slot, nil
}

// GetSlot loads a slot without locking it.
func (rs *ReservationService) GetSlot(ctx context.Context, slotID string) (*models.Slot, error) {
	var slot models.Slot
	err := rs.db.QueryRowContext(ctx, `
		SELECT id, creator_id, price_cents, currency, starts_at, duration_minutes, status
		FROM slots
		WHERE id = $1`, slotID).Scan(
		&slot.ID, &slot.CreatorID, &slot.PriceCents, &slot.Currency,
		&slot.StartsAt, &slot.DurationMinutes, &slot.Status)
	if err == sql.ErrNoRows {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetBooking loads a booking by id.
func (rs *ReservationService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b models.Booking
	var callRoom sql.NullString
	err := rs.db.QueryRowContext(ctx, `
		SELECT id, user_id, slot_id, status, total_price_cents, currency, external_payment_ref, call_room_url, created_at, updated_at
		FROM bookings
		WHERE id = $1`, bookingID).Scan(
		&b.ID, &b.UserID, &b.SlotID, &b.Status, &b.TotalPriceCents,
		&b.Currency, &b.ExternalPaymentRef, &callRoom, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CallRoomURL = callRoom.String
	return &b, nil
}

// CancelBookingTx cancels a booking and releases its slot, used by the
// refund handler when a payment is fully refunded.
func (rs *ReservationService) CancelBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) error {
	var slotID string
	err := tx.QueryRowContext(ctx,
		`SELECT slot_id FROM bookings WHERE id = $1 FOR UPDATE`, bookingID).Scan(&slotID)
	if err == sql.ErrNoRows {
		return ErrBookingNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		models.BookingStatusCancelled, time.Now(), bookingID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE slots SET status = $1, updated_at = $2 WHERE id = $3 AND starts_at > $2`,
		models.SlotStatusAvailable, time.Now(), slotID)
	return err
}

// ConfirmLegacyBooking is the one-time migration seam for bookings that were
// created optimistically before payment under the old flow. It attaches the
// payment reference and confirms the booking; it never creates new rows.
func (rs *ReservationService) ConfirmLegacyBooking(ctx context.Context, bookingID, externalRef string) error {
	result, err := rs.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, external_payment_ref = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.BookingStatusConfirmed, externalRef, time.Now(), bookingID, models.BookingStatusPending)
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
	return nil
}

func (rs *ReservationService) lockSlot(ctx context.Context, tx *sql.Tx, slotID string) (*models.Slot, error) {
	var slot models.Slot
	err := tx.QueryRowContext(ctx, `
		SELECT id, creator_id, price_cents, currency, starts_at, duration_minutes, status
		FROM slots
		WHERE id = $1
		FOR UPDATE`, slotID).Scan(
		&slot.ID, &slot.CreatorID, &slot.PriceCents, &slot.Currency,
		&slot.StartsAt, &slot.DurationMinutes, &slot.Status)
	if err == sql.ErrNoRows {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// translateBookingErr maps the slot_id unique violation onto the domain
// conflict error so at-least-once webhook delivery surfaces as "already
// booked" rather than a generic storage failure.
func translateBookingErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrSlotAlreadyBooked
	}
	return err
}
