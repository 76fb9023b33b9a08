package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/creatorcall/backend/internal/models"
	"github.com/creatorcall/backend/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func settingsRows(minimumCents int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "platform_fee_percentage", "platform_fee_fixed_cents", "minimum_payout_cents",
		"holding_period_days", "payout_mode", "currency", "updated_by", "created_at",
	}).AddRow(1, 20.0, 0, minimumCents, 7, models.PayoutModeManual, "EUR", "system", time.Now())
}

func eligibilityAccountRows(currency string, blocked bool, blockReason interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"creator_id", "external_account_id", "is_onboarded", "currency", "payout_schedule",
		"payout_minimum_cents", "is_payout_blocked", "payout_block_reason", "created_at", "updated_at",
	}).AddRow("creator-1", "acct_123", true, currency, models.PayoutScheduleManual, 0, blocked, blockReason, now, now)
}

func healthyAccountStatus() *processor.AccountStatus {
	return &processor.AccountStatus{
		AccountID:        "acct_123",
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
		DefaultCurrency:  "EUR",
	}
}

func eurBalance(availableCents int64) *processor.Balance {
	return &processor.Balance{
		Available: []processor.BalanceAmount{{AmountCents: availableCents, Currency: "EUR"}},
	}
}

func newEligibilityServiceForTest(db *sql.DB, proc processor.Client) *EligibilityService {
	return NewEligibilityService(NewPaymentService(db), NewCreatorAccountService(db), NewSettingsService(db), proc)
}

func TestEligibilityService_Evaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("all checks pass", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.True(t, result.Eligible)
		assert.Empty(t, result.Reasons)
		assert.Equal(t, "EUR", result.Currency)
		for name, ok := range result.Checks {
			assert.True(t, ok, name)
		}
	})

	t.Run("no payout account short-circuits", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnError(sql.ErrNoRows)

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckHasProcessorAccount])
		assert.Contains(t, result.Reasons, "no payout account configured")
		proc.AssertNotCalled(t, "GetAccountStatus")
	})

	t.Run("incomplete identity verification", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		status := healthyAccountStatus()
		status.CurrentlyDue = []string{"individual.id_number"}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(status, nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckKYCComplete])
		assert.True(t, result.Checks[CheckBankValidated])
	})

	t.Run("blocked account carries its reason", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", true, "open dispute"))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckNotBlocked])
		assert.Contains(t, result.Reasons, "payouts are blocked for this account: open dispute")
	})

	t.Run("amount below minimum", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(5000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 2000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckMeetsMinimum])
	})

	t.Run("missing currency bucket is reported as drift, not low balance", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(&processor.Balance{
			Available: []processor.BalanceAmount{{AmountCents: 50000, Currency: "USD"}},
		}, nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckCurrencyAvailable])
		assert.False(t, result.Checks[CheckSufficientBalance])
		assert.Contains(t, result.Reasons, "processor reports no balance in settlement currency EUR")
	})

	t.Run("insufficient live balance", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(3000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.True(t, result.Checks[CheckCurrencyAvailable])
		assert.False(t, result.Checks[CheckSufficientBalance])
	})

	t.Run("overdue held payments block the payout", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		result, err := service.Evaluate(ctx, "creator-1", 8000)
		assert.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.False(t, result.Checks[CheckHoldingPeriodCleared])
		assert.Contains(t, result.Reasons, "3 payments are still held past their release date")
	})

	t.Run("no requested amount validates the whole ready balance", func(t *testing.T) {
		db, dbMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		proc := &MockProcessorClient{}
		proc.On("GetAccountStatus", mock.Anything, "acct_123").Return(healthyAccountStatus(), nil)
		proc.On("GetBalance", mock.Anything, "acct_123").Return(eurBalance(20000), nil)
		service := newEligibilityServiceForTest(db, proc)

		dbMock.ExpectQuery("SELECT (.+) FROM platform_settings").
			WillReturnRows(settingsRows(1000))
		dbMock.ExpectQuery("SELECT (.+) FROM creator_accounts").
			WithArgs("creator-1").
			WillReturnRows(eligibilityAccountRows("EUR", false, nil))
		dbMock.ExpectQuery("SELECT COALESCE\\(SUM\\(creator_amount_cents\\), 0\\)").
			WithArgs("creator-1", models.PaymentPayoutReady, models.PaymentStatusRefunded).
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(12000))
		dbMock.ExpectQuery("SELECT COUNT\\(1\\)").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

		result, err := service.Evaluate(ctx, "creator-1", 0)
		assert.NoError(t, err)
		assert.True(t, result.Eligible)
	})
}
