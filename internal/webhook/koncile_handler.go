package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rentora-hq/extraction-gateway/internal/domain"
	"github.com/rentora-hq/extraction-gateway/internal/logger"
)

const (
	signatureHeader = "X-Koncile-Signature"
	timestampHeader = "X-Koncile-Timestamp"

	defaultFailureMessage = "extraction failed on provider side"
)

// ExtractionService is the orchestrator surface the webhook translates
// callbacks into.
type ExtractionService interface {
	Complete(ctx context.Context, taskID string, generalFields, lineFields, fullPayload map[string]any) (*domain.Extraction, error)
	FailByTaskID(ctx context.Context, taskID, message string) (*domain.Extraction, error)
}

// KoncileHandler receives Koncile AI result callbacks, verifies their
// authenticity, and applies the reported outcome to the matching record.
type KoncileHandler struct {
	service    ExtractionService
	secret     string
	production bool
	tolerance  time.Duration
	now        func() time.Time
	log        logger.Logger
}

// KoncileHandlerConfig carries the verification settings.
type KoncileHandlerConfig struct {
	Secret     string
	Production bool
	Tolerance  time.Duration
}

// NewKoncileHandler builds the webhook handler.
func NewKoncileHandler(service ExtractionService, cfg KoncileHandlerConfig, log logger.Logger) *KoncileHandler {
	if log == nil {
		log = logger.NopLogger{}
	}
	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = 300 * time.Second
	}
	return &KoncileHandler{
		service:    service,
		secret:     cfg.Secret,
		production: cfg.Production,
		tolerance:  tolerance,
		now:        time.Now,
		log:        log,
	}
}

// koncilePayload is the subset of the callback body the handler dispatches on.
type koncilePayload struct {
	TaskID        string         `json:"task_id"`
	Status        string         `json:"status"`
	GeneralFields map[string]any `json:"General_fields"`
	LineFields    map[string]any `json:"Line_fields"`
	ErrorMessage  string         `json:"error_message"`
}

// ServeHTTP handles one callback delivery. The provider only needs delivery
// confirmation, so every processed case answers 200 whether or not a record
// matched; only authenticity and shape violations are rejected.
func (h *KoncileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.WarnObj("koncile webhook body unreadable", "webhook_error", map[string]any{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unreadable body"})
		return
	}

	if !h.verify(r, body) {
		h.log.WarnObj("koncile webhook signature verification failed", "webhook_auth", map[string]any{
			"remote_addr": r.RemoteAddr,
		})
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
		return
	}

	var payload koncilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
		return
	}
	if payload.TaskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing task_id"})
		return
	}

	h.log.InfoObj("koncile webhook received", "webhook_payload", map[string]any{
		"task_id": payload.TaskID,
		"status":  payload.Status,
	})

	switch payload.Status {
	case "DONE":
		var full map[string]any
		_ = json.Unmarshal(body, &full)
		if _, err := h.service.Complete(r.Context(), payload.TaskID, payload.GeneralFields, payload.LineFields, full); err != nil {
			h.log.ErrorObj("koncile webhook completion failed", "webhook_error", map[string]any{
				"task_id": payload.TaskID,
				"error":   err.Error(),
			})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Processing failed"})
			return
		}
	case "FAILED":
		message := payload.ErrorMessage
		if message == "" {
			message = defaultFailureMessage
		}
		if _, err := h.service.FailByTaskID(r.Context(), payload.TaskID, message); err != nil {
			h.log.ErrorObj("koncile webhook failure handling failed", "webhook_error", map[string]any{
				"task_id": payload.TaskID,
				"error":   err.Error(),
			})
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Processing failed"})
			return
		}
	default:
		h.log.InfoObj("koncile webhook status ignored", "webhook_payload", map[string]any{
			"task_id": payload.TaskID,
			"status":  payload.Status,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
}

// verify applies the shared-secret HMAC policy. Without a configured secret,
// production rejects every delivery while other environments accept them for
// development convenience.
func (h *KoncileHandler) verify(r *http.Request, body []byte) bool {
	if h.secret == "" {
		if h.production {
			h.log.ErrorObj("koncile webhook secret not configured in production", "webhook_auth", nil)
			return false
		}
		h.log.WarnObj("koncile webhook signature verification skipped, no secret configured", "webhook_auth", nil)
		return true
	}

	signature := r.Header.Get(signatureHeader)
	timestamp := r.Header.Get(timestampHeader)
	if !verifySignature(h.secret, signature, timestamp, body, h.tolerance, h.now()) {
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
