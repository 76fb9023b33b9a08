package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/creatorcall/backend/internal/models"
)

// CreatorAccountService reads and maintains per-creator payout
// configuration. The currency column is the ledger's authoritative
// settlement currency; only the reconciliation job may change it.
type CreatorAccountService struct {
	db *sql.DB
}

func NewCreatorAccountService(db *sql.DB) *CreatorAccountService {
	return &CreatorAccountService{db: db}
}

func (cs *CreatorAccountService) Get(ctx context.Context, creatorID string) (*models.CreatorAccount, error) {
	var acct models.CreatorAccount
	var blockReason sql.NullString
	err := cs.db.QueryRowContext(ctx, `
		SELECT creator_id, external_account_id, is_onboarded, currency, payout_schedule,
		       payout_minimum_cents, is_payout_blocked, payout_block_reason, created_at, updated_at
		FROM creator_accounts
		WHERE creator_id = $1`, creatorID).Scan(
		&acct.CreatorID, &acct.ExternalAccountID, &acct.IsOnboarded, &acct.Currency,
		&acct.PayoutSchedule, &acct.PayoutMinimumCents, &acct.IsPayoutBlocked,
		&blockReason, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	acct.PayoutBlockReason = blockReason.String
	return &acct, nil
}

// ListConnected returns every creator with a processor account, for the
// reconciliation and automatic payout jobs.
func (cs *CreatorAccountService) ListConnected(ctx context.Context) ([]models.CreatorAccount, error) {
	rows, err := cs.db.QueryContext(ctx, `
		SELECT creator_id, external_account_id, is_onboarded, currency, payout_schedule,
		       payout_minimum_cents, is_payout_blocked, payout_block_reason, created_at, updated_at
		FROM creator_accounts
		WHERE external_account_id <> ''
		ORDER BY creator_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.CreatorAccount{}
	for rows.Next() {
		var acct models.CreatorAccount
		var blockReason sql.NullString
		if err := rows.Scan(
			&acct.CreatorID, &acct.ExternalAccountID, &acct.IsOnboarded, &acct.Currency,
			&acct.PayoutSchedule, &acct.PayoutMinimumCents, &acct.IsPayoutBlocked,
			&blockReason, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return nil, err
		}
		acct.PayoutBlockReason = blockReason.String
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// UpdateCurrencyTx corrects the ledger currency to the processor-reported
// value. Reserved for the reconciliation job; amounts are never converted.
func (cs *CreatorAccountService) UpdateCurrencyTx(ctx context.Context, tx *sql.Tx, creatorID, currency string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE creator_accounts SET currency = $1, updated_at = $2 WHERE creator_id = $3`,
		currency, time.Now(), creatorID)
	return err
}

// SetOnboarded refreshes the onboarding flag from processor account events.
func (cs *CreatorAccountService) SetOnboarded(ctx context.Context, creatorID string, onboarded bool) error {
	_, err := cs.db.ExecContext(ctx, `
		UPDATE creator_accounts SET is_onboarded = $1, updated_at = $2 WHERE creator_id = $3`,
		onboarded, time.Now(), creatorID)
	return err
}

// SetPayoutBlocked toggles the payout block, used by the dispute handlers.
func (cs *CreatorAccountService) SetPayoutBlocked(ctx context.Context, creatorID string, blocked bool, reason string) error {
	_, err := cs.db.ExecContext(ctx, `
		UPDATE creator_accounts SET is_payout_blocked = $1, payout_block_reason = $2, updated_at = $3 WHERE creator_id = $4`,
		blocked, reason, time.Now(), creatorID)
	return err
}

// FindByExternalAccount resolves a processor account id back to a creator,
// for account.updated events.
func (cs *CreatorAccountService) FindByExternalAccount(ctx context.Context, externalAccountID string) (*models.CreatorAccount, error) {
	var acct models.CreatorAccount
	var blockReason sql.NullString
	err := cs.db.QueryRowContext(ctx, `
		SELECT creator_id, external_account_id, is_onboarded, currency, payout_schedule,
		       payout_minimum_cents, is_payout_blocked, payout_block_reason, created_at, updated_at
		FROM creator_accounts
		WHERE external_account_id = $1`, externalAccountID).Scan(
		&acct.CreatorID, &acct.ExternalAccountID, &acct.IsOnboarded, &acct.Currency,
		&acct.PayoutSchedule, &acct.PayoutMinimumCents, &acct.IsPayoutBlocked,
		&blockReason, &acct.CreatedAt, &acct.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, err
	}
	acct.PayoutBlockReason = blockReason.String
	return &acct, nil
}
