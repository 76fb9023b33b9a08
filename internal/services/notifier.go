package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Notification kinds fanned out after settlement transitions.
const (
	NotifyBookingConfirmed = "BOOKING_CONFIRMED"
	NotifySlotSold         = "SLOT_SOLD"
	NotifyPaymentFailed    = "PAYMENT_FAILED"
	NotifyRefundIssued     = "REFUND_ISSUED"
	NotifyPayoutPaid       = "PAYOUT_PAID"
	NotifyPayoutRejected   = "PAYOUT_REJECTED"
	NotifyPayoutFailed     = "PAYOUT_FAILED"
	NotifyOpsAlert         = "OPS_ALERT"
)

// Notifier delivers user-facing notifications. Calls are fire-and-forget:
// they run after the financial transaction commits and a delivery failure
// never rolls back or retries the financial step.
type Notifier interface {
	Notify(userID, kind, title, message, link string, metadata map[string]string)
}

type notification struct {
	UserID    string            `json:"user_id"`
	Kind      string            `json:"kind"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Link      string            `json:"link,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

const notificationQueue = "notification_queue"

// QueueNotifier pushes notifications onto a redis list consumed by the
// delivery workers. Tolerates a nil client: the queue is an optional
// collaborator, not part of the settlement engine's correctness.
type QueueNotifier struct {
	redis *redis.Client
}

func NewQueueNotifier(rdb *redis.Client) *QueueNotifier {
	return &QueueNotifier{redis: rdb}
}

func (n *QueueNotifier) Notify(userID, kind, title, message, link string, metadata map[string]string) {
	if n.redis == nil {
		log.Printf("[NOTIFY] (no queue) %s -> %s: %s", kind, userID, title)
		return
	}

	payload := notification{
		UserID:    userID,
		Kind:      kind,
		Title:     title,
		Message:   message,
		Link:      link,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[NOTIFY] Failed to marshal notification: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.redis.RPush(ctx, notificationQueue, data).Err(); err != nil {
		log.Printf("[NOTIFY] Failed to queue %s notification for %s: %v", kind, userID, err)
	}
}
