package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/creatorcall/backend/internal/models"
	"github.com/creatorcall/backend/internal/processor"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newWebhookServiceForTest(db *sql.DB, rdb *redis.Client, proc processor.Client, reconciler CurrencyReconciler, notifier Notifier) *WebhookService {
	reservations := NewReservationService(db)
	payments := NewPaymentService(db)
	accounts := NewCreatorAccountService(db)
	settings := NewSettingsService(db)
	payouts := NewPayoutService(db, payments, accounts, nil, proc, notifier)
	return NewWebhookService(db, rdb, reservations, payments, payouts, accounts, settings, reconciler, notifier)
}

// stubReconciler records which creators were revalidated.
type stubReconciler struct {
	creatorIDs []string
}

func (s *stubReconciler) ReconcileCreator(ctx context.Context, creatorID string, dryRun bool) (*DriftReport, error) {
	s.creatorIDs = append(s.creatorIDs, creatorID)
	return &DriftReport{}, nil
}

func validIntentMetadata() map[string]string {
	return map[string]string{
		MetaSlotID:        "slot-1",
		MetaUserID:        "user-1",
		MetaCreatorID:     "creator-1",
		MetaAmountCents:   "10000",
		MetaPlatformFee:   "2000",
		MetaCreatorAmount: "8000",
		MetaCurrency:      "EUR",
		MetaFlowVersion:   FlowPaymentFirst,
	}
}

func paymentSucceededEvent(t *testing.T, meta map[string]string) *processor.Event {
	data, err := json.Marshal(paymentEventData{PaymentRef: "pi_123", Metadata: meta})
	assert.NoError(t, err)
	return &processor.Event{
		ID:        "evt_1",
		Type:      processor.EventPaymentSucceeded,
		CreatedAt: time.Now(),
		Data:      data,
	}
}

func TestWebhookService_Intake(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh event is recorded", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, redisMock := redismock.NewClientMock()
		redisMock.ExpectExists("webhook:evt:evt_1").SetVal(0)

		dbMock.ExpectExec("INSERT INTO webhook_events").
			WillReturnResult(sqlmock.NewResult(1, 1))

		service := newWebhookServiceForTest(db, rdb, &MockProcessorClient{}, nil, &MockNotifier{})
		fresh, err := service.Intake(ctx, &processor.Event{ID: "evt_1", Type: processor.EventPaymentSucceeded}, []byte(`{}`))
		assert.NoError(t, err)
		assert.True(t, fresh)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("redis fast path rejects a completed duplicate", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, redisMock := redismock.NewClientMock()
		redisMock.ExpectExists("webhook:evt:evt_1").SetVal(1)

		service := newWebhookServiceForTest(db, rdb, &MockProcessorClient{}, nil, &MockNotifier{})
		fresh, err := service.Intake(ctx, &processor.Event{ID: "evt_1", Type: processor.EventPaymentSucceeded}, []byte(`{}`))
		assert.NoError(t, err)
		assert.False(t, fresh)
		// The database was never touched.
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("processed row is the dedup authority without redis", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		// ON CONFLICT fires and the guard filters out the PROCESSED row.
		dbMock.ExpectExec("INSERT INTO webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 0))

		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, &MockNotifier{})
		fresh, err := service.Intake(ctx, &processor.Event{ID: "evt_1", Type: processor.EventPaymentSucceeded}, []byte(`{}`))
		assert.NoError(t, err)
		assert.False(t, fresh)
	})

	t.Run("redelivery after a transient failure is accepted again", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, redisMock := redismock.NewClientMock()
		service := newWebhookServiceForTest(db, rdb, &MockProcessorClient{}, nil, &MockNotifier{})

		// First delivery: recorded, then the handler hits a transient error.
		redisMock.ExpectExists("webhook:evt:evt_1").SetVal(0)
		dbMock.ExpectExec("INSERT INTO webhook_events").
			WillReturnResult(sqlmock.NewResult(1, 1))

		fresh, err := service.Intake(ctx, &processor.Event{ID: "evt_1", Type: processor.EventPaymentSucceeded}, []byte(`{}`))
		assert.NoError(t, err)
		assert.True(t, fresh)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnError(errors.New("connection reset"))
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.Handle(ctx, paymentSucceededEvent(t, validIntentMetadata()))
		assert.Error(t, err)

		// Retry: the FAILED row accepts the redelivery, nothing dead-letters.
		redisMock.ExpectExists("webhook:evt:evt_1").SetVal(0)
		dbMock.ExpectExec("INSERT INTO webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		fresh, err = service.Intake(ctx, &processor.Event{ID: "evt_1", Type: processor.EventPaymentSucceeded}, []byte(`{}`))
		assert.NoError(t, err)
		assert.True(t, fresh)
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("fast-path key is written only after successful processing", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		rdb, redisMock := redismock.NewClientMock()
		service := newWebhookServiceForTest(db, rdb, &MockProcessorClient{}, nil, &MockNotifier{})

		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectSet("webhook:evt:evt_9", 1, 24*time.Hour).SetVal("OK")

		err = service.Handle(ctx, &processor.Event{ID: "evt_9", Type: "invoice.created", Data: []byte(`{}`)})
		assert.NoError(t, err)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}

func TestWebhookService_HandlePaymentSucceeded(t *testing.T) {
	ctx := context.Background()

	t.Run("books the slot and records the split payment atomically", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "user-1", NotifyBookingConfirmed, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		notifier.On("Notify", "creator-1", NotifySlotSold, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT (.+) FROM slots(.+)FOR UPDATE").
			WithArgs("slot-1").
			WillReturnRows(slotRows("slot-1", "creator-1", 10000, time.Now().Add(time.Hour), models.SlotStatusAvailable))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\) FROM bookings WHERE slot_id = \\$1").
			WithArgs("slot-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		dbMock.ExpectExec("INSERT INTO bookings").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("UPDATE slots SET status").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO payments").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO audit_log_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		// Post-commit call room provisioning.
		dbMock.ExpectExec("UPDATE bookings SET call_room_url").
			WillReturnResult(sqlmock.NewResult(0, 1))
		// Outcome recorded on the event row.
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.Handle(ctx, paymentSucceededEvent(t, validIntentMetadata()))
		assert.NoError(t, err)
		notifier.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("lost race flags the charge for refund", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "ops", NotifyOpsAlert, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		notifier.On("Notify", "user-1", NotifyPaymentFailed, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT (.+) FROM slots(.+)FOR UPDATE").
			WithArgs("slot-1").
			WillReturnRows(slotRows("slot-1", "creator-1", 10000, time.Now().Add(time.Hour), models.SlotStatusAvailable))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\) FROM bookings WHERE slot_id = \\$1").
			WithArgs("slot-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		dbMock.ExpectExec("INSERT INTO bookings").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_slot_id_key"})
		dbMock.ExpectRollback()

		// Refund flag and audit entry in their own transaction.
		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO refund_flags").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectExec("INSERT INTO audit_log_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.Handle(ctx, paymentSucceededEvent(t, validIntentMetadata()))
		assert.NoError(t, err)
		notifier.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("metadata with a broken fee split is malformed", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "ops", NotifyOpsAlert, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		meta := validIntentMetadata()
		meta[MetaPlatformFee] = "2001"

		err = service.Handle(ctx, paymentSucceededEvent(t, meta))
		assert.ErrorIs(t, err, ErrMalformedWebhook)
		notifier.AssertExpectations(t)
	})

	t.Run("missing metadata key is malformed", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "ops", NotifyOpsAlert, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		meta := validIntentMetadata()
		delete(meta, MetaSlotID)

		err = service.Handle(ctx, paymentSucceededEvent(t, meta))
		assert.ErrorIs(t, err, ErrMalformedWebhook)
	})
}

func TestWebhookService_HandlePaymentFailed(t *testing.T) {
	ctx := context.Background()

	t.Run("failed charge is audited and the buyer notified", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "user-1", NotifyPaymentFailed, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("INSERT INTO audit_log_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		data, _ := json.Marshal(paymentEventData{
			PaymentRef:    "pi_9",
			FailureReason: "card_declined",
			Metadata:      validIntentMetadata(),
		})
		err = service.Handle(ctx, &processor.Event{ID: "evt_6", Type: processor.EventPaymentFailed, Data: data})
		assert.NoError(t, err)
		notifier.AssertExpectations(t)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestWebhookService_HandlePayoutEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("payout paid settles via the payout service", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		notifier := &MockNotifier{}
		notifier.On("Notify", "creator-1", NotifyPayoutPaid, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, notifier)

		dbMock.ExpectQuery("SELECT (.+) FROM payouts").
			WithArgs("tr_1").
			WillReturnRows(payoutRow("payout-1", "creator-1", 8000, models.PayoutStatusProcessing))
		dbMock.ExpectBegin()
		dbMock.ExpectExec("UPDATE payouts").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE payments SET payout_status").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("INSERT INTO audit_log_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		data, _ := json.Marshal(payoutEventData{PayoutRef: "tr_1"})
		err = service.Handle(ctx, &processor.Event{ID: "evt_2", Type: processor.EventPayoutPaid, Data: data})
		assert.NoError(t, err)
		notifier.AssertExpectations(t)
	})

	t.Run("unhandled event type is acknowledged", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, &MockNotifier{})

		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err = service.Handle(ctx, &processor.Event{ID: "evt_3", Type: "invoice.created", Data: []byte(`{}`)})
		assert.NoError(t, err)
	})
}

func TestWebhookService_HandleAccountUpdated(t *testing.T) {
	ctx := context.Background()

	t.Run("capability flags flow into onboarding state", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, nil, &MockNotifier{})

		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("acct_123").
			WillReturnRows(accountRow("creator-1", "acct_123", "EUR", models.PayoutScheduleManual))
		dbMock.ExpectExec("UPDATE creator_accounts SET is_onboarded").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		data, _ := json.Marshal(accountEventData{
			AccountID:        "acct_123",
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		})
		err = service.Handle(ctx, &processor.Event{ID: "evt_4", Type: processor.EventAccountUpdated, Data: data})
		assert.NoError(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("capability change revalidates the settlement currency", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		reconciler := &stubReconciler{}
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, reconciler, &MockNotifier{})

		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("acct_123").
			WillReturnRows(accountRow("creator-1", "acct_123", "EUR", models.PayoutScheduleManual))
		dbMock.ExpectExec("UPDATE creator_accounts SET is_onboarded").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		data, _ := json.Marshal(accountEventData{
			AccountID:        "acct_123",
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		})
		err = service.Handle(ctx, &processor.Event{ID: "evt_7", Type: processor.EventAccountUpdated, Data: data})
		assert.NoError(t, err)
		assert.Equal(t, []string{"creator-1"}, reconciler.creatorIDs)
	})

	t.Run("unknown account is ignored", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		reconciler := &stubReconciler{}
		service := newWebhookServiceForTest(db, nil, &MockProcessorClient{}, reconciler, &MockNotifier{})

		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("acct_unknown").
			WillReturnError(sql.ErrNoRows)
		dbMock.ExpectExec("UPDATE webhook_events").
			WillReturnResult(sqlmock.NewResult(0, 1))

		data, _ := json.Marshal(accountEventData{AccountID: "acct_unknown"})
		err = service.Handle(ctx, &processor.Event{ID: "evt_5", Type: processor.EventAccountUpdated, Data: data})
		assert.NoError(t, err)
		assert.Empty(t, reconciler.creatorIDs)
	})
}
