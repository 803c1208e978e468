package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/webhook-engine/engine"
	"github.com/marcelsud/webhook-engine/idempotency"
	"github.com/marcelsud/webhook-engine/webhook"
)

// maxBodyBytes caps the accepted request body
const maxBodyBytes = 1 << 20

/* HTTP layer DTOs for the ingestion API
 * Separate from domain entities to avoid leaking internal structure
 */

// webhookResponse represents the API response for a processed delivery
type webhookResponse struct {
	WebhookID string `json:"webhook_id"`
	EventType string `json:"event_type,omitempty"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// errorResponse represents a rejected or failed delivery
type errorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// postWebhook handles POST /v1/webhooks
func postWebhook(service engine.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		headers := make(map[string]string)
		for key, values := range r.Header {
			if len(values) > 0 {
				headers[key] = values[0]
			}
		}

		env := webhook.Envelope{
			ID:         uuid.New().String(),
			ReceivedAt: time.Now(),
			RawBody:    body,
			Headers:    headers,
			SourceAddr: r.RemoteAddr,
		}

		result, err := service.Process(r.Context(), env)
		if err != nil {
			writeError(w, result, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		response := webhookResponse{
			WebhookID: env.ID,
			EventType: result.EventType,
			Status:    result.Status.String(),
			Duplicate: result.WasDuplicate,
			TraceID:   result.TraceID,
		}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// writeError maps a pipeline error to its HTTP status.
// Rejections surface their reason; processing failures return 500 so
// well-behaved senders redeliver.
func writeError(w http.ResponseWriter, result engine.Result, err error) {
	status := http.StatusInternalServerError
	switch webhook.KindOf(err) {
	case webhook.KindAuthentication:
		status = http.StatusUnauthorized
	case webhook.KindFreshness, webhook.KindOrigin:
		status = http.StatusForbidden
	case webhook.KindValidation:
		status = http.StatusBadRequest
	}
	if errors.Is(err, idempotency.ErrPreviouslyFailed) {
		// replaying a delivery that already exhausted its retries
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:   err.Error(),
		TraceID: result.TraceID,
	})
}
