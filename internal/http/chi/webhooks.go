package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/marcelsud/formrelay/metrics"
	"github.com/marcelsud/formrelay/ratelimit"
	"github.com/marcelsud/formrelay/routes"
	"github.com/marcelsud/formrelay/webhook"
	"github.com/marcelsud/formrelay/webhook/signature"
)

/* HTTP layer DTOs for the relay API
 * Separate from domain entities to avoid leaking internal structure
 */

// eventResponse represents the API response when accepting an event
type eventResponse struct {
	WebhookID string `json:"webhook_id"`
	FormID    string `json:"form_id"`
	Delivered bool   `json:"delivered"`
	Retrying  bool   `json:"retrying"`
}

// retryStatusResponse represents a retry record in the API
type retryStatusResponse struct {
	WebhookID          string           `json:"webhook_id"`
	FormID             string           `json:"form_id"`
	WebhookURL         string           `json:"webhook_url"`
	Status             string           `json:"status"`
	FailureReason      string           `json:"failure_reason,omitempty"`
	MaxAttempts        int              `json:"max_attempts,omitempty"`
	TotalAttempts      int              `json:"total_attempts"`
	SuccessfulAttempts int              `json:"successful_attempts"`
	FailedAttempts     int              `json:"failed_attempts"`
	FailureRate        float64          `json:"failure_rate"`
	NextRetryAt        *time.Time       `json:"next_retry_at,omitempty"`
	Attempts           []attemptPayload `json:"attempts"`
}

type attemptPayload struct {
	Number             int       `json:"number"`
	ScheduledTime      time.Time `json:"scheduled_time"`
	ExecutedTime       time.Time `json:"executed_time"`
	Status             string    `json:"status"`
	ResponseStatusCode int       `json:"response_status_code,omitempty"`
	ErrorMessage       string    `json:"error_message,omitempty"`
}

// scheduleRequest is the admin re-schedule payload
type scheduleRequest struct {
	WebhookURL    string `json:"webhook_url,omitempty"`
	FailureReason string `json:"failure_reason"`
	StatusCode    int    `json:"status_code"`
}

// destinationResponse represents a destination in the API
type destinationResponse struct {
	FormID         string `json:"form_id"`
	WebhookURL     string `json:"webhook_url"`
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	ExpectedStatus int    `json:"expected_status"`
}

/* postEvent handles POST /v1/forms/:form_id/events
 * Inbound verification boundary: invalid signature -> 401, oversized
 * payload -> 413 with a specific message, verified events -> 202 even
 * when the downstream delivery fails (the retry queue owns it from
 * there).
 */
func postEvent(deps Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		formID := chi.URLParam(r, "form_id")
		if formID == "" {
			http.Error(w, "form_id is required", http.StatusBadRequest)
			return
		}

		destination, err := deps.Destinations.Get(formID)
		if err != nil {
			http.Error(w, fmt.Sprintf("destination not found: %s", formID), http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(r.Body)
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

		tolerance := deps.TimestampToleranceMinutes
		if !destination.TimestampChecked {
			tolerance = 0
		}

		result, err := deps.Verifier.Verify(body, headers, tolerance)
		if deps.Recorder != nil {
			deps.Recorder.RecordVerification(r.Context(), metrics.VerificationEvent{
				Valid:     err == nil && result.Valid,
				Reason:    result.Reason,
				Timestamp: time.Now().UTC(),
			})
		}
		if err != nil {
			var tooLarge *signature.PayloadTooLargeError
			if errors.As(err, &tooLarge) {
				http.Error(w, tooLarge.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "verification failed", http.StatusInternalServerError)
			return
		}
		if !result.Valid {
			http.Error(w, result.Reason, http.StatusUnauthorized)
			return
		}

		webhookID := uuid.New().String()
		if err := deps.Payloads.SavePayload(r.Context(), webhookID, body, forwardHeaders(headers)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// First delivery attempt is synchronous; failures hand the
		// webhook to the retry queue and are invisible to the sender
		execResult, execErr := deps.Executor.Execute(r.Context(), webhook.Delivery{
			WebhookID:      webhookID,
			FormID:         formID,
			WebhookURL:     destination.WebhookURL,
			AttemptNumber:  1,
			CorrelationID:  uuid.New().String(),
			ExpectedStatus: destination.ExpectedStatus,
		})

		response := eventResponse{
			WebhookID: webhookID,
			FormID:    formID,
			Delivered: execErr == nil && execResult.Success,
		}
		if !response.Delivered {
			reason := execResult.ErrorMessage
			if execErr != nil {
				reason = execErr.Error()
			}
			_, err := deps.Manager.Schedule(r.Context(), webhook.ScheduleRequest{
				WebhookID:      webhookID,
				FormID:         formID,
				WebhookURL:     destination.WebhookURL,
				FailureReason:  reason,
				StatusCode:     execResult.StatusCode,
				MaxAttempts:    destination.MaxAttempts,
				ExpectedStatus: destination.ExpectedStatus,
			})
			if err == nil {
				response.Retrying = true
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getRetryStatus handles GET /v1/retries/:webhook_id
func getRetryStatus(manager *webhook.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookID := chi.URLParam(r, "webhook_id")
		if webhookID == "" {
			http.Error(w, "webhook_id is required", http.StatusBadRequest)
			return
		}

		record, err := manager.GetStatus(r.Context(), webhookID)
		if err != nil {
			if errors.Is(err, webhook.ErrRecordNotFound) {
				http.Error(w, fmt.Sprintf("retry record not found: %s", webhookID), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(toRetryStatusResponse(record)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postScheduleRetry handles POST /v1/retries/:webhook_id
func postScheduleRetry(manager *webhook.Manager, destinations *routes.Loader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookID := chi.URLParam(r, "webhook_id")
		if webhookID == "" {
			http.Error(w, "webhook_id is required", http.StatusBadRequest)
			return
		}

		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		scheduleReq := webhook.ScheduleRequest{
			WebhookID:     webhookID,
			FormID:        r.URL.Query().Get("form_id"),
			WebhookURL:    req.WebhookURL,
			FailureReason: req.FailureReason,
			StatusCode:    req.StatusCode,
		}
		if scheduleReq.FormID != "" {
			if destination, err := destinations.Get(scheduleReq.FormID); err == nil {
				if scheduleReq.WebhookURL == "" {
					scheduleReq.WebhookURL = destination.WebhookURL
				}
				scheduleReq.MaxAttempts = destination.MaxAttempts
				scheduleReq.ExpectedStatus = destination.ExpectedStatus
			}
		}

		record, err := manager.Schedule(r.Context(), scheduleReq)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		if err := json.NewEncoder(w).Encode(toRetryStatusResponse(record)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// postProcessDue handles POST /v1/retries/process
func postProcessDue(manager *webhook.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := manager.ProcessDue(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if result.AlreadyProcessing {
			w.WriteHeader(http.StatusConflict)
		}
		if err := json.NewEncoder(w).Encode(result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getRateLimitStatus handles GET /v1/ratelimit
func getRateLimitStatus(limiter *ratelimit.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(limiter.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// getDestinations handles GET /v1/destinations
func getDestinations(destinations *routes.Loader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all := destinations.List()

		responses := make([]destinationResponse, 0, len(all))
		for _, destination := range all {
			responses = append(responses, destinationResponse{
				FormID:         destination.FormID,
				WebhookURL:     destination.WebhookURL,
				MaxAttempts:    destination.MaxAttempts,
				ExpectedStatus: destination.ExpectedStatus,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(responses); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func toRetryStatusResponse(record webhook.RetryRecord) retryStatusResponse {
	response := retryStatusResponse{
		WebhookID:          record.WebhookID,
		FormID:             record.FormID,
		WebhookURL:         record.WebhookURL,
		Status:             record.Status.String(),
		MaxAttempts:        record.MaxAttempts,
		TotalAttempts:      record.TotalAttempts,
		SuccessfulAttempts: record.SuccessfulAttempts,
		FailedAttempts:     record.FailedAttempts,
		FailureRate:        record.FailureRate(),
		Attempts:           make([]attemptPayload, 0, len(record.Attempts)),
	}
	if record.PermanentFailureReason != webhook.ReasonNone {
		response.FailureReason = record.PermanentFailureReason.String()
	}
	if !record.NextRetryAt.IsZero() {
		next := record.NextRetryAt
		response.NextRetryAt = &next
	}
	for _, attempt := range record.Attempts {
		response.Attempts = append(response.Attempts, attemptPayload{
			Number:             attempt.Number,
			ScheduledTime:      attempt.ScheduledTime,
			ExecutedTime:       attempt.ExecutedTime,
			Status:             attempt.Status.String(),
			ResponseStatusCode: attempt.ResponseStatusCode,
			ErrorMessage:       attempt.ErrorMessage,
		})
	}
	return response
}

// forwardHeaders keeps only the headers worth replaying downstream
func forwardHeaders(headers map[string]string) map[string]string {
	forwarded := make(map[string]string)
	for _, key := range []string{"Content-Type", "User-Agent"} {
		if value, ok := headers[key]; ok {
			forwarded[key] = value
		}
	}
	return forwarded
}
