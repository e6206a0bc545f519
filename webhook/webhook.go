package webhook

import "time"

/* Attempt represents a single delivery attempt for a webhook
 * Uses value semantics as it represents data, not behavior
 * Immutable once recorded on a RetryRecord
 */
type Attempt struct {
	Number             int
	ScheduledTime      time.Time
	ExecutedTime       time.Time
	Status             AttemptStatus
	ResponseStatusCode int    // 0 when the executor never got a response
	ErrorMessage       string // empty on success
}

/* RetryRecord tracks the retry state of a single failed webhook delivery
 * Created on first scheduling, mutated only by the Manager during a
 * processing pass, immutable once Status.IsFinal() is true
 */
type RetryRecord struct {
	WebhookID              string
	FormID                 string
	WebhookURL             string
	MaxAttempts            int // per-destination attempt budget, 0 uses the policy
	ExpectedStatus         int // per-destination success status, 0 accepts any 2xx
	InitialFailureTime     time.Time
	Status                 RetryStatus
	TotalAttempts          int
	SuccessfulAttempts     int
	FailedAttempts         int
	Attempts               []Attempt
	NextRetryAt            time.Time // zero when not queued
	PermanentFailureReason FailureReason
	FailureNotes           []string // appended on scheduling, for audit
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// FailureRate returns the percentage of failed attempts out of all
// attempts, 0 when no attempt has been made yet.
func (r RetryRecord) FailureRate() float64 {
	if r.TotalAttempts == 0 {
		return 0
	}
	return float64(r.FailedAttempts) / float64(r.TotalAttempts) * 100
}

// HasExceededMaxDuration reports whether the record has been retrying
// for longer than the policy allows
func (r RetryRecord) HasExceededMaxDuration(now time.Time, maxDuration time.Duration) bool {
	return now.Sub(r.InitialFailureTime) > maxDuration
}

// Clone returns a deep copy of the record so callers can never mutate
// Manager-owned state through a status snapshot
func (r RetryRecord) Clone() RetryRecord {
	cp := r
	cp.Attempts = make([]Attempt, len(r.Attempts))
	copy(cp.Attempts, r.Attempts)
	cp.FailureNotes = make([]string, len(r.FailureNotes))
	copy(cp.FailureNotes, r.FailureNotes)
	return cp
}
