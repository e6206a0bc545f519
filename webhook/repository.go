package webhook

import (
	"context"
	"fmt"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// Delivery describes one outbound delivery the executor must perform
type Delivery struct {
	WebhookID     string
	FormID        string
	WebhookURL    string
	AttemptNumber int
	CorrelationID string

	// ExpectedStatus is the exact status code counting as success for
	// this destination; 0 accepts any 2xx
	ExpectedStatus int
}

/* FailureKind classifies why an execution failed, decoupling retry
 * policy from any particular error hierarchy. Executors set it instead
 * of relying on callers to inspect wrapped error chains.
 */
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureHTTPStatus
	FailureNetwork
	FailureTimeout
)

// String returns the string representation of the failure kind
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureHTTPStatus:
		return "http_status"
	case FailureNetwork:
		return "network"
	case FailureTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ExecutionResult is the outcome of one executor invocation
type ExecutionResult struct {
	StatusCode   int
	Success      bool
	Kind         FailureKind
	ErrorMessage string
	ResponseBody string
}

// Executor performs the actual outbound webhook delivery
type Executor interface {
	/* Context is always the first parameter in functions that do I/O
	 * Execute may return an error for transport-level failures; the
	 * Manager converts those into failed attempts, never crashes
	 */
	Execute(ctx context.Context, delivery Delivery) (ExecutionResult, error)
}

// AuditStore persists terminal retry records for audit queries.
// Optional: the Manager works without one.
type AuditStore interface {
	SaveRecord(ctx context.Context, record RetryRecord) error
	GetRecord(ctx context.Context, webhookID string) (RetryRecord, error)
}

// ErrRecordNotFound is returned by status queries for unknown webhook IDs
var ErrRecordNotFound = fmt.Errorf("retry record not found")
