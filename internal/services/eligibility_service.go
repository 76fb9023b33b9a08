package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/creatorcall/backend/internal/processor"
)

// Eligibility check names, stable for API consumers.
const (
	CheckHasProcessorAccount  = "hasProcessorAccount"
	CheckKYCComplete          = "kycComplete"
	CheckBankValidated        = "bankValidated"
	CheckNotBlocked           = "notBlocked"
	CheckMeetsMinimum         = "meetsMinimum"
	CheckSufficientBalance    = "sufficientBalance"
	CheckHoldingPeriodCleared = "holdingPeriodCleared"
	CheckCurrencyAvailable    = "currencyAvailable"
)

// EligibilityResult is the full answer: the verdict, the human-readable
// reasons for a negative one, and every individual check so admins can see
// exactly which gate closed.
type EligibilityResult struct {
	Eligible bool            `json:"eligible"`
	Reasons  []string        `json:"reasons"`
	Checks   map[string]bool `json:"checks"`
	Currency string          `json:"currency"`
}

// EligibilityService decides whether a payout may proceed. Read-only: it
// mutates nothing and queries the processor live, because cached ledger
// balances can drift from processor truth.
type EligibilityService struct {
	payments  *PaymentService
	accounts  *CreatorAccountService
	settings  *SettingsService
	processor processor.Client
}

func NewEligibilityService(payments *PaymentService, accounts *CreatorAccountService, settings *SettingsService, proc processor.Client) *EligibilityService {
	return &EligibilityService{
		payments:  payments,
		accounts:  accounts,
		settings:  settings,
		processor: proc,
	}
}

// Evaluate runs every check for the creator. requestedCents <= 0 means "no
// specific amount yet"; amount-dependent checks then validate against the
// whole eligible balance.
func (es *EligibilityService) Evaluate(ctx context.Context, creatorID string, requestedCents int64) (*EligibilityResult, error) {
	result := &EligibilityResult{
		Reasons: []string{},
		Checks:  map[string]bool{},
	}

	snap, err := es.settings.Snapshot()
	if err != nil {
		return nil, err
	}

	acct, err := es.accounts.Get(ctx, creatorID)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			result.Checks[CheckHasProcessorAccount] = false
			result.Reasons = append(result.Reasons, "no payout account configured")
			return result, nil
		}
		return nil, err
	}
	result.Currency = acct.Currency

	hasAccount := acct.ExternalAccountID != ""
	result.Checks[CheckHasProcessorAccount] = hasAccount
	if !hasAccount {
		result.Reasons = append(result.Reasons, "no payout account configured")
		return result, nil
	}

	status, err := es.processor.GetAccountStatus(ctx, acct.ExternalAccountID)
	if err != nil {
		return nil, err
	}

	kyc := status.ChargesEnabled && status.DetailsSubmitted && len(status.CurrentlyDue) == 0
	result.Checks[CheckKYCComplete] = kyc
	if !kyc {
		result.Reasons = append(result.Reasons, "identity verification incomplete")
	}

	result.Checks[CheckBankValidated] = status.PayoutsEnabled
	if !status.PayoutsEnabled {
		result.Reasons = append(result.Reasons, "bank account not validated for payouts")
	}

	result.Checks[CheckNotBlocked] = !acct.IsPayoutBlocked
	if acct.IsPayoutBlocked {
		reason := "payouts are blocked for this account"
		if acct.PayoutBlockReason != "" {
			reason += ": " + acct.PayoutBlockReason
		}
		result.Reasons = append(result.Reasons, reason)
	}

	minimum := snap.MinimumPayoutCents
	if acct.PayoutMinimumCents > minimum {
		minimum = acct.PayoutMinimumCents
	}
	amountToCheck := requestedCents
	if amountToCheck <= 0 {
		ready, err := es.payments.ReadyBalance(ctx, creatorID)
		if err != nil {
			return nil, err
		}
		amountToCheck = ready
	}
	meetsMinimum := amountToCheck >= minimum
	result.Checks[CheckMeetsMinimum] = meetsMinimum
	if !meetsMinimum {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("amount %d is below the minimum payout of %d", amountToCheck, minimum))
	}

	// Processor truth, not the cached ledger number. A missing currency
	// bucket is the drift failure mode, reported on its own, never folded
	// into "insufficient balance".
	balance, err := es.processor.GetBalance(ctx, acct.ExternalAccountID)
	if err != nil {
		return nil, err
	}
	available, currencyFound := balance.AvailableIn(acct.Currency)
	result.Checks[CheckCurrencyAvailable] = currencyFound
	if !currencyFound {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("processor reports no balance in settlement currency %s", acct.Currency))
		result.Checks[CheckSufficientBalance] = false
	} else {
		sufficient := amountToCheck <= available
		result.Checks[CheckSufficientBalance] = sufficient
		if !sufficient {
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("requested %d exceeds available balance %d %s", amountToCheck, available, acct.Currency))
		}
	}

	overdue, err := es.payments.OverdueHeldCount(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	result.Checks[CheckHoldingPeriodCleared] = overdue == 0
	if overdue > 0 {
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("%d payments are still held past their release date", overdue))
	}

	result.Eligible = true
	for _, ok := range result.Checks {
		if !ok {
			result.Eligible = false
			break
		}
	}
	return result, nil
}

// GetEligibility reports the caller's payout eligibility
// @Summary Payout eligibility
// @Description Evaluate all payout eligibility checks for the authenticated creator
// @Tags payouts
// @Produce json
// @Security BearerAuth
// @Param amount query int false "Requested amount in cents"
// @Success 200 {object} EligibilityResult
// @Failure 401 {object} ErrorResponse
// @Router /payouts/eligibility [get]
func (es *EligibilityService) GetEligibility(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := r.Context().Value("userID").(string)
	if !ok || creatorID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var requested int64
	if raw := r.URL.Query().Get("amount"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
			return
		}
		requested = parsed
	}

	result, err := es.Evaluate(r.Context(), creatorID, requested)
	if err != nil {
		log.Printf("[ELIGIBILITY] Evaluation failed for %s: %v", creatorID, err)
		SendErrorResponse(w, "Failed to evaluate eligibility", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
