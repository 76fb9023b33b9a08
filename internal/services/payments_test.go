package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/creatorcall/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPaymentService_ReleaseDue(t *testing.T) {
	ctx := context.Background()

	t.Run("releases held payments past their release date", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPaymentService(db)

		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentPayoutReady, sqlmock.AnyArg(), models.PaymentPayoutHeld).
			WillReturnResult(sqlmock.NewResult(0, 3))

		released, err := service.ReleaseDue(ctx)
		assert.NoError(t, err)
		assert.Equal(t, int64(3), released)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_ReadyBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("sums ready undisputed payments", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPaymentService(db)

		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(creator_amount_cents\\), 0\\)").
			WithArgs("creator-1", models.PaymentPayoutReady, models.PaymentStatusRefunded).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(24000))

		total, err := service.ReadyBalance(ctx, "creator-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(24000), total)
	})

	t.Run("no ready payments is a zero balance", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPaymentService(db)

		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(creator_amount_cents\\), 0\\)").
			WithArgs("creator-1", models.PaymentPayoutReady, models.PaymentStatusRefunded).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))

		total, err := service.ReadyBalance(ctx, "creator-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})
}

func TestPaymentService_AttachToPayoutTx(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes oldest payments until the amount is covered", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPaymentService(db)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery("SELECT id, creator_amount_cents").
			WithArgs("creator-1", models.PaymentPayoutReady, models.PaymentStatusRefunded).
			WillReturnRows(sqlmock.NewRows([]string{"id", "creator_amount_cents"}).
				AddRow("pay-1", int64(5000)).
				AddRow("pay-2", int64(5000)).
				AddRow("pay-3", int64(5000)))
		// 8000 requested: pay-1 and pay-2 cover it, pay-3 stays READY.
		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentPayoutProcessing, "payout-1", sqlmock.AnyArg(), "pay-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentPayoutProcessing, "payout-1", sqlmock.AnyArg(), "pay-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		dbMock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, service.AttachToPayoutTx(ctx, tx, "creator-1", "payout-1", 8000))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_DetachFromPayoutTx(t *testing.T) {
	ctx := context.Background()

	t.Run("reverts processing payments back to ready", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewPaymentService(db)

		dbMock.ExpectBegin()
		dbMock.ExpectExec("UPDATE payments").
			WithArgs(models.PaymentPayoutReady, sqlmock.AnyArg(), "payout-1", models.PaymentPayoutProcessing).
			WillReturnResult(sqlmock.NewResult(0, 2))
		dbMock.ExpectCommit()

		tx, err := db.Begin()
		assert.NoError(t, err)
		assert.NoError(t, service.DetachFromPayoutTx(ctx, tx, "payout-1"))
		assert.NoError(t, tx.Commit())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestPaymentService_OverdueHeldCount(t *testing.T) {
	ctx := context.Background()

	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPaymentService(db)

	dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
		WithArgs("creator-1", models.PaymentPayoutHeld, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := service.OverdueHeldCount(ctx, "creator-1")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
