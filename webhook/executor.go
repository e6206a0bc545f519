package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marcelsud/formrelay/ratelimit"
)

const (
	defaultExecuteTimeout = 15 * time.Second

	// maxResponseBytes caps how much of the destination's response body
	// is retained on the attempt record
	maxResponseBytes = 4 * 1024
)

/* HTTPExecutor is the default Executor: it re-posts the stored payload
 * to the destination URL, routed through the outbound rate limiter so
 * retries stay compliant with the third-party API's limits.
 *
 * Every invocation enforces a bounded timeout so a single hung
 * downstream call cannot stall an entire processing pass.
 */
type HTTPExecutor struct {
	client  *http.Client
	limiter ratelimit.Acquirer
	payload PayloadSource
	timeout time.Duration
}

// PayloadSource resolves the payload to re-deliver for a webhook ID
type PayloadSource interface {
	Payload(ctx context.Context, webhookID string) ([]byte, map[string]string, error)
}

// NewHTTPExecutor creates the default executor. limiter may be nil when
// the destination is not a shared rate-limited endpoint.
func NewHTTPExecutor(limiter ratelimit.Acquirer, payload PayloadSource) *HTTPExecutor {
	return &HTTPExecutor{
		client:  &http.Client{Timeout: defaultExecuteTimeout},
		limiter: limiter,
		payload: payload,
		timeout: defaultExecuteTimeout,
	}
}

// Execute delivers the webhook and classifies the outcome
func (e *HTTPExecutor) Execute(ctx context.Context, delivery Delivery) (ExecutionResult, error) {
	body, headers, err := e.payload.Payload(ctx, delivery.WebhookID)
	if err != nil {
		return ExecutionResult{Kind: FailureNetwork}, fmt.Errorf("resolving payload for %s: %w", delivery.WebhookID, err)
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx); err != nil {
			return ExecutionResult{Kind: FailureNetwork}, fmt.Errorf("acquiring rate limit: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return ExecutionResult{Kind: FailureNetwork}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", delivery.CorrelationID)
	req.Header.Set("X-Attempt-Number", fmt.Sprintf("%d", delivery.AttemptNumber))
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		kind := FailureNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = FailureTimeout
		}
		return ExecutionResult{Kind: kind}, fmt.Errorf("delivering webhook %s: %w", delivery.WebhookID, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	// Destinations may pin an exact expected status; otherwise any 2xx counts
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if delivery.ExpectedStatus > 0 {
		success = resp.StatusCode == delivery.ExpectedStatus
	}

	result := ExecutionResult{
		StatusCode:   resp.StatusCode,
		Success:      success,
		ResponseBody: string(respBody),
	}
	if !result.Success {
		result.Kind = FailureHTTPStatus
		if delivery.ExpectedStatus > 0 {
			result.ErrorMessage = fmt.Sprintf("destination returned status %d, expected %d", resp.StatusCode, delivery.ExpectedStatus)
		} else {
			result.ErrorMessage = fmt.Sprintf("destination returned status %d", resp.StatusCode)
		}
	}
	return result, nil
}

var _ Executor = (*HTTPExecutor)(nil)
