package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types delivered by the processor's webhook channel.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.failed"
	EventRefundCompleted  = "refund.completed"
	EventDisputeOpened    = "dispute.opened"
	EventDisputeClosed    = "dispute.closed"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
	EventAccountUpdated   = "account.updated"
)

// IntentRequest carries everything the settlement engine needs to
// reconstruct a booking from the webhook alone, without re-reading mutable
// state at confirmation time.
type IntentRequest struct {
	AmountCents        int64             `json:"amount_cents"`
	Currency           string            `json:"currency"`
	DestinationAccount string            `json:"destination_account,omitempty"`
	Metadata           map[string]string `json:"metadata"`
}

type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	CheckoutURL  string `json:"checkout_url,omitempty"`
}

type PayoutRequest struct {
	AmountCents        int64             `json:"amount_cents"`
	Currency           string            `json:"currency"`
	DestinationAccount string            `json:"destination_account"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Metadata           map[string]string `json:"metadata"`
}

type Transfer struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
}

// AccountStatus mirrors the capability flags a Stripe-like processor reports
// for a connected account.
type AccountStatus struct {
	AccountID        string   `json:"account_id"`
	ChargesEnabled   bool     `json:"charges_enabled"`
	PayoutsEnabled   bool     `json:"payouts_enabled"`
	DetailsSubmitted bool     `json:"details_submitted"`
	CurrentlyDue     []string `json:"currently_due"`
	DefaultCurrency  string   `json:"default_currency"`
}

type BalanceAmount struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Balance struct {
	Available []BalanceAmount `json:"available"`
	Pending   []BalanceAmount `json:"pending"`
}

// AvailableIn returns the available balance bucket for a currency. The
// second return distinguishes "no bucket in this currency" (a currency
// drift signal) from an ordinary zero balance.
func (b *Balance) AvailableIn(currency string) (int64, bool) {
	for _, a := range b.Available {
		if a.Currency == currency {
			return a.AmountCents, true
		}
	}
	return 0, false
}

// Event is an authenticated processor callback. Data is left raw so each
// handler can decode only the shape it needs.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// Error is returned for failed processor calls. Timeout marks an unknown
// outcome: the caller must reconcile via a status read instead of assuming
// the call failed.
type Error struct {
	Op      string
	Code    string
	Timeout bool
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processor %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("processor %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a processor call with unknown outcome.
func IsTimeout(err error) bool {
	if pe, ok := err.(*Error); ok {
		return pe.Timeout
	}
	return false
}

// Client is the capability contract the settlement engine requires from any
// payment processor. Implementations must bound every call with the context
// deadline.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Transfer, error)
	GetPayout(ctx context.Context, payoutID string) (*Transfer, error)
	GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error)
	GetBalance(ctx context.Context, accountID string) (*Balance, error)
}
