package webhook

import "fmt"

/* RetryStatus represents the current state of a webhook retry record
 * Follows the lifecycle: Pending -> Success/PermanentlyDisabled/MaxRetriesExceeded
 * Pending is the only re-entrant state; the other three are terminal
 */
type RetryStatus int

const (
	Pending RetryStatus = iota + 1
	Success
	PermanentlyDisabled
	MaxRetriesExceeded
)

// String returns the string representation of the retry status
func (s RetryStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Success:
		return "success"
	case PermanentlyDisabled:
		return "permanently_disabled"
	case MaxRetriesExceeded:
		return "max_retries_exceeded"
	default:
		return "unknown"
	}
}

// NewRetryStatus creates a RetryStatus from a string
func NewRetryStatus(str string) RetryStatus {
	switch str {
	case "pending":
		return Pending
	case "success":
		return Success
	case "permanently_disabled":
		return PermanentlyDisabled
	case "max_retries_exceeded":
		return MaxRetriesExceeded
	default:
		return Pending
	}
}

// Validate checks if the retry status is valid
func (s RetryStatus) Validate() error {
	if s < Pending || s > MaxRetriesExceeded {
		return fmt.Errorf("invalid retry status: %d", s)
	}
	return nil
}

// IsFinal returns true if the status is a terminal state
func (s RetryStatus) IsFinal() bool {
	return s == Success || s == PermanentlyDisabled || s == MaxRetriesExceeded
}

/* FailureReason tags why a record was permanently taken out of the
 * retry queue. Kept on the record for audit queries.
 */
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonImmediateDisableStatusCode
	ReasonMaxRetryDurationExceeded
	ReasonFailureRateExceeded
)

// String returns the string representation of the failure reason
func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonImmediateDisableStatusCode:
		return "immediate_disable_status_code"
	case ReasonMaxRetryDurationExceeded:
		return "max_retry_duration_exceeded"
	case ReasonFailureRateExceeded:
		return "failure_rate_exceeded"
	default:
		return "unknown"
	}
}

// NewFailureReason creates a FailureReason from a string
func NewFailureReason(str string) FailureReason {
	switch str {
	case "immediate_disable_status_code":
		return ReasonImmediateDisableStatusCode
	case "max_retry_duration_exceeded":
		return ReasonMaxRetryDurationExceeded
	case "failure_rate_exceeded":
		return ReasonFailureRateExceeded
	default:
		return ReasonNone
	}
}

/* AttemptStatus is the outcome of a single delivery attempt */
type AttemptStatus int

const (
	AttemptSuccess AttemptStatus = iota + 1
	AttemptFailed
)

// String returns the string representation of the attempt status
func (s AttemptStatus) String() string {
	switch s {
	case AttemptSuccess:
		return "success"
	case AttemptFailed:
		return "failed"
	default:
		return "unknown"
	}
}
