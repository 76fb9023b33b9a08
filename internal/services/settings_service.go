package services

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/creatorcall/backend/internal/models"
)

// SettingsService reads and versions the platform settings. Settings rows
// are never updated in place: an admin edit inserts a new version, and
// readers take the latest row as an immutable snapshot.
type SettingsService struct {
	db        *sql.DB
	audit     *AuditRecorder
	validator *ValidationHelper
}

func NewSettingsService(db *sql.DB) *SettingsService {
	return &SettingsService{
		db:        db,
		audit:     NewAuditRecorder(),
		validator: NewValidationHelper(),
	}
}

// Snapshot returns the current settings, creating the default row on first
// read so money paths never operate on a missing configuration.
func (s *SettingsService) Snapshot() (models.SettingsSnapshot, error) {
	snap, err := s.latest()
	if err == nil {
		return snap, nil
	}
	if err != sql.ErrNoRows {
		return models.SettingsSnapshot{}, err
	}

	defaults := models.DefaultSettings()
	defaults.UpdatedBy = "system"
	if err := s.insert(defaults); err != nil {
		return models.SettingsSnapshot{}, err
	}
	log.Printf("[SETTINGS] No settings row found, created defaults")
	return s.latest()
}

func (s *SettingsService) latest() (models.SettingsSnapshot, error) {
	var snap models.SettingsSnapshot
	err := s.db.QueryRow(`
		SELECT id, platform_fee_percentage, platform_fee_fixed_cents, minimum_payout_cents,
		       holding_period_days, payout_mode, currency, updated_by, created_at
		FROM platform_settings
		ORDER BY id DESC
		LIMIT 1`).Scan(
		&snap.Version, &snap.PlatformFeePercentage, &snap.PlatformFeeFixedCents,
		&snap.MinimumPayoutCents, &snap.HoldingPeriodDays, &snap.PayoutMode,
		&snap.Currency, &snap.UpdatedBy, &snap.CreatedAt)
	return snap, err
}

func (s *SettingsService) insert(snap models.SettingsSnapshot) error {
	_, err := s.db.Exec(`
		INSERT INTO platform_settings
			(platform_fee_percentage, platform_fee_fixed_cents, minimum_payout_cents,
			 holding_period_days, payout_mode, currency, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		snap.PlatformFeePercentage, snap.PlatformFeeFixedCents, snap.MinimumPayoutCents,
		snap.HoldingPeriodDays, snap.PayoutMode, snap.Currency, snap.UpdatedBy, time.Now())
	return err
}

type updateSettingsRequest struct {
	PlatformFeePercentage float64 `json:"platform_fee_percentage" validate:"min=0,max=100"`
	PlatformFeeFixedCents int64   `json:"platform_fee_fixed_cents" validate:"min=0"`
	MinimumPayoutCents    int64   `json:"minimum_payout_cents" validate:"min=0"`
	HoldingPeriodDays     int     `json:"holding_period_days" validate:"min=0,max=365"`
	PayoutMode            string  `json:"payout_mode" validate:"required,oneof=AUTOMATIC MANUAL"`
	Currency              string  `json:"currency" validate:"required,len=3"`
}

// UpdateSettings handles admin settings changes
// @Summary Update platform settings
// @Description Insert a new platform settings version; prior versions are kept
// @Tags admin
// @Accept json
// @Produce json
// @Param settings body updateSettingsRequest true "New settings"
// @Success 200 {object} models.SettingsSnapshot
// @Failure 400 {object} ErrorResponse
// @Router /settings [put]
func (s *SettingsService) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to update settings", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO platform_settings
			(platform_fee_percentage, platform_fee_fixed_cents, minimum_payout_cents,
			 holding_period_days, payout_mode, currency, updated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.PlatformFeePercentage, req.PlatformFeeFixedCents, req.MinimumPayoutCents,
		req.HoldingPeriodDays, req.PayoutMode, req.Currency, adminID, time.Now()); err != nil {
		SendErrorResponse(w, "Failed to update settings", http.StatusInternalServerError, nil)
		return
	}

	if err := s.audit.RecordTx(tx, AuditEntry{
		CreatorID: "platform",
		Action:    models.AuditActionSettingsUpdated,
		Status:    "APPLIED",
		Actor:     models.Actor{Kind: models.ActorAdmin, ID: adminID},
		Metadata: map[string]string{
			"payout_mode": req.PayoutMode,
			"currency":    req.Currency,
		},
	}); err != nil {
		SendErrorResponse(w, "Failed to update settings", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		SendErrorResponse(w, "Failed to update settings", http.StatusInternalServerError, nil)
		return
	}

	snap, err := s.latest()
	if err != nil {
		SendErrorResponse(w, "Failed to load settings", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
