package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

/* Limiter throttles outbound calls to a rate-limited third-party API.
 * Enforcement is strictly interval-based: successive acquisitions are
 * spaced at least 1/requestsPerSecond apart, implemented with a
 * token-bucket of burst 1 so there is never a windowed-count burst.
 * The rolling window of recent acquisition times exists purely for
 * compliance reporting, not for enforcement.
 */

// windowSize bounds the rolling window kept for reporting
const windowSize = 100

// Acquirer is the minimal interface executors depend on
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Status reports rate-limit compliance for observability
type Status struct {
	ConfiguredRate    float64       `json:"configured_rate"`
	ActualRate60s     float64       `json:"actual_rate_60s"`
	CompliancePercent float64       `json:"compliance_percent"`
	IsCompliant       bool          `json:"is_compliant"`
	TimeToNextRequest time.Duration `json:"time_to_next_request"`
}

type Limiter struct {
	requestsPerSecond float64
	minInterval       time.Duration
	limiter           *rate.Limiter

	mu          sync.Mutex
	lastRequest time.Time
	window      []time.Time
	now         func() time.Time
}

// NewLimiter creates a limiter enforcing the given outbound rate.
// requestsPerSecond must be positive.
func NewLimiter(requestsPerSecond float64) (*Limiter, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %g", requestsPerSecond)
	}
	minInterval := time.Duration(float64(time.Second) / requestsPerSecond)
	return &Limiter{
		requestsPerSecond: requestsPerSecond,
		minInterval:       minInterval,
		limiter:           rate.NewLimiter(rate.Every(minInterval), 1),
		now:               time.Now,
	}, nil
}

// Acquire suspends the caller until the next request is compliant with
// the configured rate, or the context is cancelled
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limit: %w", err)
	}

	now := l.now()
	l.mu.Lock()
	l.lastRequest = now
	l.window = append(l.window, now)
	if len(l.window) > windowSize {
		l.window = l.window[len(l.window)-windowSize:]
	}
	l.mu.Unlock()
	return nil
}

// Status returns the current compliance report
func (l *Limiter) Status() Status {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	var in60s int
	cutoff := now.Add(-60 * time.Second)
	for _, t := range l.window {
		if !t.Before(cutoff) {
			in60s++
		}
	}
	actual := float64(in60s) / 60.0

	compliance := 100.0
	if actual > l.requestsPerSecond {
		compliance = l.requestsPerSecond / actual * 100
	}

	var toNext time.Duration
	if !l.lastRequest.IsZero() {
		if next := l.lastRequest.Add(l.minInterval); next.After(now) {
			toNext = next.Sub(now)
		}
	}

	return Status{
		ConfiguredRate:    l.requestsPerSecond,
		ActualRate60s:     actual,
		CompliancePercent: compliance,
		IsCompliant:       actual <= l.requestsPerSecond,
		TimeToNextRequest: toNext,
	}
}

// Reset clears the reporting history and re-arms the limiter
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastRequest = time.Time{}
	l.window = nil
	l.limiter = rate.NewLimiter(rate.Every(l.minInterval), 1)
}

var _ Acquirer = (*Limiter)(nil)
