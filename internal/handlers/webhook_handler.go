package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/creatorcall/backend/internal/processor"
	"github.com/creatorcall/backend/internal/services"
)

// SignatureVerifier authenticates a raw webhook payload before any of it
// is trusted.
type SignatureVerifier interface {
	VerifyEventSignature(payload []byte, signature string) error
}

// WebhookHandler is the HTTP intake for processor events. Events arrive
// at-least-once, out of order and possibly delayed; the handler
// authenticates, deduplicates, then hands off to the reconciliation
// service.
type WebhookHandler struct {
	service  *services.WebhookService
	verifier SignatureVerifier
}

func NewWebhookHandler(service *services.WebhookService, verifier SignatureVerifier) *WebhookHandler {
	return &WebhookHandler{
		service:  service,
		verifier: verifier,
	}
}

// HandleEvent receives a processor webhook
// @Summary Processor webhook intake
// @Description Authenticated, deduplicated intake for asynchronous processor events
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Signature header string true "HMAC-SHA256 hex signature of the body"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /webhooks/processor [post]
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Failed to read body", http.StatusBadRequest, nil)
		return
	}

	signature := r.Header.Get("X-Signature")
	if err := h.verifier.VerifyEventSignature(payload, signature); err != nil {
		log.Printf("[WEBHOOK] Rejected unauthenticated event: %v", err)
		services.SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var event processor.Event
	if err := json.Unmarshal(payload, &event); err != nil || event.ID == "" || event.Type == "" {
		log.Printf("[WEBHOOK] Undecodable event payload: %v", err)
		services.SendErrorResponse(w, "Malformed event", http.StatusBadRequest, nil)
		return
	}

	fresh, err := h.service.Intake(r.Context(), &event, payload)
	if err != nil {
		log.Printf("[WEBHOOK] Intake failed for event %s: %v", event.ID, err)
		services.SendErrorResponse(w, "Failed to record event", http.StatusInternalServerError, nil)
		return
	}
	if !fresh {
		// Duplicate delivery: acknowledge so the processor stops retrying.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "already_processed"})
		return
	}

	if err := h.service.Handle(r.Context(), &event); err != nil {
		if errors.Is(err, services.ErrMalformedWebhook) {
			// Recorded and alerted; a retry of the same payload cannot
			// succeed, so acknowledge.
			services.SendErrorResponse(w, "Malformed event payload", http.StatusBadRequest, nil)
			return
		}
		log.Printf("[WEBHOOK] Handling failed for event %s: %v", event.ID, err)
		services.SendErrorResponse(w, "Event processing failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "processed"})
}
