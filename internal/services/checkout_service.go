package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/creatorcall/backend/internal/processor"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// Metadata keys written at intent time. The webhook handler reconstructs
// the booking from these alone, without re-reading mutable state.
const (
	MetaSlotID        = "slot_id"
	MetaUserID        = "user_id"
	MetaCreatorID     = "creator_id"
	MetaAmountCents   = "amount_cents"
	MetaPlatformFee   = "platform_fee_cents"
	MetaCreatorAmount = "creator_amount_cents"
	MetaCurrency      = "currency"
	MetaFlowVersion   = "flow_version"

	FlowPaymentFirst = "payment_first"
)

// CheckoutService validates that a slot is payable and asks the processor
// for a payment intent. It never writes a booking or payment row: slots are
// only committed once the processor confirms the charge, so an abandoned
// checkout can never block a slot.
type CheckoutService struct {
	reservations *ReservationService
	settings     *SettingsService
	accounts     *CreatorAccountService
	processor    processor.Client
	redis        *redis.Client
}

func NewCheckoutService(reservations *ReservationService, settings *SettingsService, accounts *CreatorAccountService, proc processor.Client, rdb *redis.Client) *CheckoutService {
	return &CheckoutService{
		reservations: reservations,
		settings:     settings,
		accounts:     accounts,
		processor:    proc,
		redis:        rdb,
	}
}

// CheckoutIntent is what the UI needs to collect the payment.
type CheckoutIntent struct {
	ClientSecret string `json:"client_secret"`
	IntentID     string `json:"intent_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	CheckoutURL  string `json:"checkout_url,omitempty"`
}

// CreateIntent validates the slot, computes the fee split against the
// current settings snapshot and requests an intent from the processor in
// the creator's settlement currency.
func (cs *CheckoutService) CreateIntent(ctx context.Context, slotID, userID string) (*CheckoutIntent, error) {
	slot, err := cs.reservations.ValidatePayable(ctx, slotID)
	if err != nil {
		return nil, err
	}

	snap, err := cs.settings.Snapshot()
	if err != nil {
		return nil, err
	}

	fees, err := ComputeFeesCents(slot.PriceCents, snap)
	if err != nil {
		return nil, err
	}

	// The creator's ledger currency is the settlement currency, not the
	// platform's nominal one.
	currency := slot.Currency
	if acct, err := cs.accounts.Get(ctx, slot.CreatorID); err == nil && acct.Currency != "" {
		currency = acct.Currency
	}

	intent, err := cs.processor.CreatePaymentIntent(ctx, processor.IntentRequest{
		AmountCents: fees.AmountCents,
		Currency:    currency,
		Metadata: map[string]string{
			MetaSlotID:        slot.ID,
			MetaUserID:        userID,
			MetaCreatorID:     slot.CreatorID,
			MetaAmountCents:   strconv.FormatInt(fees.AmountCents, 10),
			MetaPlatformFee:   strconv.FormatInt(fees.PlatformFeeCents, 10),
			MetaCreatorAmount: strconv.FormatInt(fees.CreatorAmountCents, 10),
			MetaCurrency:      currency,
			MetaFlowVersion:   FlowPaymentFirst,
		},
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutIntent{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
		AmountCents:  fees.AmountCents,
		Currency:     currency,
		CheckoutURL:  intent.CheckoutURL,
	}, nil
}

// InitiateCheckout starts a checkout for a slot
// @Summary Initiate checkout
// @Description Validate the slot and create a payment intent; no booking is created until payment confirms
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Success 200 {object} CheckoutIntent
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /checkout/{slotId} [post]
func (cs *CheckoutService) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	slotID := chi.URLParam(r, "slotId")

	intent, err := cs.CreateIntent(r.Context(), slotID, userID)
	if err != nil {
		cs.writeCheckoutError(w, err)
		return
	}

	// Cache the intent per user so the QR endpoint can serve it without a
	// second processor round-trip. Best effort.
	if cs.redis != nil {
		if data, err := json.Marshal(intent); err == nil {
			key := fmt.Sprintf("checkout:%s:%s", slotID, userID)
			if err := cs.redis.Set(r.Context(), key, data, 15*time.Minute).Err(); err != nil {
				log.Printf("[CHECKOUT] Failed to cache intent: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// CheckoutQR returns a QR code for the checkout
// @Summary Checkout QR code
// @Description Generate a QR code encoding the hosted payment link for pay-by-QR clients
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Param slotId path string true "Slot ID"
// @Success 200 {object} object{qrImage=string}
// @Failure 404 {object} ErrorResponse
// @Router /checkout/{slotId}/qr [get]
func (cs *CheckoutService) CheckoutQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	slotID := chi.URLParam(r, "slotId")

	var intent *CheckoutIntent
	if cs.redis != nil {
		key := fmt.Sprintf("checkout:%s:%s", slotID, userID)
		if data, err := cs.redis.Get(r.Context(), key).Bytes(); err == nil {
			var cached CheckoutIntent
			if json.Unmarshal(data, &cached) == nil {
				intent = &cached
			}
		}
	}
	if intent == nil {
		created, err := cs.CreateIntent(r.Context(), slotID, userID)
		if err != nil {
			cs.writeCheckoutError(w, err)
			return
		}
		intent = created
	}

	payload := intent.CheckoutURL
	if payload == "" {
		payload = intent.ClientSecret
	}

	qr, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"qrImage": "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

// GetBookingStatus returns the state of a booking
// @Summary Get booking status
// @Description Retrieve a booking by its ID
// @Tags checkout
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} ErrorResponse
// @Router /bookings/{bookingId} [get]
func (cs *CheckoutService) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	booking, err := cs.reservations.GetBooking(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			SendErrorResponse(w, "Booking not found", http.StatusNotFound, nil)
		} else {
			SendErrorResponse(w, "Failed to fetch booking", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(booking)
}

func (cs *CheckoutService) writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSlotNotFound):
		SendErrorResponse(w, "Slot not found", http.StatusNotFound, nil)
	case IsConflict(err):
		SendErrorResponse(w, "This slot is no longer available, please choose another", http.StatusConflict, nil)
	default:
		log.Printf("[CHECKOUT] Intent creation failed: %v", err)
		SendErrorResponse(w, "Failed to start checkout", http.StatusInternalServerError, nil)
	}
}
