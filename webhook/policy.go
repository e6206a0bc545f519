package webhook

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

/* Policy holds the retry policy values controlling backoff, attempt
 * limits and permanent disablement. Read-only after construction;
 * NewPolicy validates interval ordering, positivity and bounds so the
 * Manager never has to re-check them.
 */
type Policy struct {
	InitialRetryInterval        time.Duration
	MaxRetryInterval            time.Duration
	BackoffMultiplier           float64
	JitterPercent               float64
	MaxRetryDuration            time.Duration
	MaxTotalAttempts            int
	ImmediateDisableStatusCodes map[int]bool
	RetryOnStatusCodes          map[int]bool
	FailureRateDisableThreshold float64
	FailureRateEvaluationWindow time.Duration
	MinimumSampleSize           int
}

// DefaultPolicy returns the policy used when no configuration overrides
// are present
func DefaultPolicy() Policy {
	return Policy{
		InitialRetryInterval:        30 * time.Second,
		MaxRetryInterval:            1 * time.Hour,
		BackoffMultiplier:           2.0,
		JitterPercent:               20,
		MaxRetryDuration:            10 * time.Hour,
		MaxTotalAttempts:            10,
		ImmediateDisableStatusCodes: map[int]bool{404: true, 410: true},
		RetryOnStatusCodes:          map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true},
		FailureRateDisableThreshold: 90,
		FailureRateEvaluationWindow: 1 * time.Hour,
		MinimumSampleSize:           5,
	}
}

// NewPolicy validates the given policy and returns it, so construction
// is the single place invalid values can enter the system
func NewPolicy(p Policy) (Policy, error) {
	if p.InitialRetryInterval <= 0 {
		return Policy{}, fmt.Errorf("initial retry interval must be positive, got %s", p.InitialRetryInterval)
	}
	if p.MaxRetryInterval < p.InitialRetryInterval {
		return Policy{}, fmt.Errorf("max retry interval %s must not be below initial interval %s", p.MaxRetryInterval, p.InitialRetryInterval)
	}
	if p.BackoffMultiplier <= 1.0 {
		return Policy{}, fmt.Errorf("backoff multiplier must be greater than 1.0, got %g", p.BackoffMultiplier)
	}
	if p.JitterPercent < 0 || p.JitterPercent >= 100 {
		return Policy{}, fmt.Errorf("jitter percent must be in [0, 100), got %g", p.JitterPercent)
	}
	if p.MaxRetryDuration <= 0 {
		return Policy{}, fmt.Errorf("max retry duration must be positive, got %s", p.MaxRetryDuration)
	}
	if p.MaxTotalAttempts <= 0 {
		return Policy{}, fmt.Errorf("max total attempts must be positive, got %d", p.MaxTotalAttempts)
	}
	if p.FailureRateDisableThreshold <= 0 || p.FailureRateDisableThreshold > 100 {
		return Policy{}, fmt.Errorf("failure rate threshold must be in (0, 100], got %g", p.FailureRateDisableThreshold)
	}
	if p.FailureRateEvaluationWindow <= 0 {
		return Policy{}, fmt.Errorf("failure rate evaluation window must be positive, got %s", p.FailureRateEvaluationWindow)
	}
	if p.MinimumSampleSize <= 0 {
		return Policy{}, fmt.Errorf("minimum sample size must be positive, got %d", p.MinimumSampleSize)
	}
	return p, nil
}

/* NextDelay computes the backoff delay before attempt number attempt
 * (0-based): min(initial * multiplier^attempt, max), then randomized by
 * +-JitterPercent to avoid synchronized retry storms.
 * Implements the RetryStrategy the generic breaker helper consumes.
 */
func (p Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	interval := float64(p.InitialRetryInterval) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if interval > float64(p.MaxRetryInterval) {
		interval = float64(p.MaxRetryInterval)
	}
	if p.JitterPercent > 0 {
		// uniform in [-jitter, +jitter]
		factor := 1 + (rand.Float64()*2-1)*p.JitterPercent/100
		interval *= factor
	}
	return time.Duration(interval)
}

// ShouldRetry reports whether another attempt is allowed after the
// given number of attempts already made
func (p Policy) ShouldRetry(attempt int, _ error) bool {
	return attempt < p.MaxTotalAttempts
}

// IsImmediateDisable reports whether the status code means the target
// will never succeed (e.g. 404, 410)
func (p Policy) IsImmediateDisable(statusCode int) bool {
	return p.ImmediateDisableStatusCodes[statusCode]
}

// IsRetryable reports whether the status code is worth retrying
func (p Policy) IsRetryable(statusCode int) bool {
	return p.RetryOnStatusCodes[statusCode]
}
