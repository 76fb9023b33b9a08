package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/creatorcall/backend/internal/models"
	"github.com/creatorcall/backend/internal/processor"
)

// CurrencyDrift is one detected mismatch between the ledger's settlement
// currency and the currency the processor actually holds for the account.
type CurrencyDrift struct {
	CreatorID         string `json:"creator_id"`
	ExternalAccountID string `json:"external_account_id"`
	LedgerCurrency    string `json:"ledger_currency"`
	ProcessorCurrency string `json:"processor_currency"`
	Corrected         bool   `json:"corrected"`
}

// DriftReport summarizes one reconciliation run.
type DriftReport struct {
	DryRun    bool            `json:"dry_run"`
	Checked   int             `json:"checked"`
	Drifts    []CurrencyDrift `json:"drifts"`
	Errors    []string        `json:"errors,omitempty"`
	StartedAt time.Time       `json:"started_at"`
}

// ReconciliationService compares the ledger's per-creator settlement
// currency with the processor's reported default currency. The processor is
// the settlement authority, so on drift the ledger value is corrected to
// match. Amounts are never converted: payouts must always be requested in
// the currency the processor account actually holds.
type ReconciliationService struct {
	db        *sql.DB
	accounts  *CreatorAccountService
	processor processor.Client
	audit     *AuditRecorder
}

func NewReconciliationService(db *sql.DB, accounts *CreatorAccountService, proc processor.Client) *ReconciliationService {
	return &ReconciliationService{
		db:        db,
		accounts:  accounts,
		processor: proc,
		audit:     NewAuditRecorder(),
	}
}

// Reconcile runs the comparison for every connected creator. dryRun reports
// drift without mutating anything, for operational visibility before
// auto-correction is trusted.
func (rs *ReconciliationService) Reconcile(ctx context.Context, dryRun bool) (*DriftReport, error) {
	accounts, err := rs.accounts.ListConnected(ctx)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		DryRun:    dryRun,
		Drifts:    []CurrencyDrift{},
		StartedAt: time.Now(),
	}

	for i := range accounts {
		acct := &accounts[i]
		report.Checked++
		if err := rs.reconcileAccount(ctx, acct, dryRun, report); err != nil {
			report.Errors = append(report.Errors, acct.CreatorID+": "+err.Error())
		}
	}

	log.Printf("[RECONCILE] Checked %d accounts, %d drifts, %d errors (dry_run=%v)",
		report.Checked, len(report.Drifts), len(report.Errors), dryRun)
	return report, nil
}

// ReconcileCreator runs the comparison for a single creator, used by the
// account.updated webhook and the admin endpoint.
func (rs *ReconciliationService) ReconcileCreator(ctx context.Context, creatorID string, dryRun bool) (*DriftReport, error) {
	acct, err := rs.accounts.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	report := &DriftReport{
		DryRun:    dryRun,
		Checked:   1,
		Drifts:    []CurrencyDrift{},
		StartedAt: time.Now(),
	}
	if err := rs.reconcileAccount(ctx, acct, dryRun, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (rs *ReconciliationService) reconcileAccount(ctx context.Context, acct *models.CreatorAccount, dryRun bool, report *DriftReport) error {
	status, err := rs.processor.GetAccountStatus(ctx, acct.ExternalAccountID)
	if err != nil {
		return err
	}

	if status.DefaultCurrency == "" || status.DefaultCurrency == acct.Currency {
		return nil
	}

	drift := CurrencyDrift{
		CreatorID:         acct.CreatorID,
		ExternalAccountID: acct.ExternalAccountID,
		LedgerCurrency:    acct.Currency,
		ProcessorCurrency: status.DefaultCurrency,
	}
	log.Printf("[RECONCILE] WARNING: currency drift for creator %s: ledger=%s processor=%s",
		acct.CreatorID, acct.Currency, status.DefaultCurrency)

	if !dryRun {
		if err := rs.correct(ctx, acct, status.DefaultCurrency); err != nil {
			return err
		}
		drift.Corrected = true
	}

	report.Drifts = append(report.Drifts, drift)
	return nil
}

func (rs *ReconciliationService) correct(ctx context.Context, acct *models.CreatorAccount, currency string) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := rs.accounts.UpdateCurrencyTx(ctx, tx, acct.CreatorID, currency); err != nil {
		return err
	}

	if err := rs.audit.RecordTx(tx, AuditEntry{
		CreatorID: acct.CreatorID,
		Action:    models.AuditActionCurrencyCorrected,
		Status:    "CORRECTED",
		Actor:     models.SystemActor(),
		Reason:    "processor is the settlement authority",
		Metadata: map[string]string{
			"previous_currency": acct.Currency,
			"new_currency":      currency,
		},
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// RunCurrencyReconciliation triggers a reconciliation run
// @Summary Reconcile settlement currencies
// @Description Compare ledger currencies against processor-reported ones; corrects drift unless dry_run=true
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param dry_run query bool false "Report drift without correcting"
// @Param creatorId query string false "Limit to one creator"
// @Success 200 {object} DriftReport
// @Failure 500 {object} ErrorResponse
// @Router /reconciliation/currencies [post]
func (rs *ReconciliationService) RunCurrencyReconciliation(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	var report *DriftReport
	var err error
	if creatorID := r.URL.Query().Get("creatorId"); creatorID != "" {
		report, err = rs.ReconcileCreator(r.Context(), creatorID, dryRun)
	} else {
		report, err = rs.Reconcile(r.Context(), dryRun)
	}
	if err != nil {
		log.Printf("[RECONCILE] Run failed: %v", err)
		SendErrorResponse(w, "Reconciliation failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
