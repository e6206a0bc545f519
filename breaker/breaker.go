package breaker

import (
	"fmt"
	"sync"
	"time"
)

/* State of a circuit breaker.
 * CLOSED allows calls; after FailureThreshold consecutive failures the
 * breaker OPENs and rejects calls until RecoveryTimeout elapses, then
 * HALF_OPEN allows one trial call: success resets to CLOSED, failure
 * returns to OPEN.
 */
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the string representation of the breaker state
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// ErrOpen is returned when a call is rejected because the breaker is open
var ErrOpen = fmt.Errorf("circuit breaker is open")

// CircuitBreaker tracks consecutive failures for one operation
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
}

// NewCircuitBreaker creates a breaker. Non-positive arguments fall
// back to the package defaults.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            Closed,
	}
}

// Allow reports whether a call may proceed, transitioning OPEN to
// HALF_OPEN once the recovery timeout has elapsed
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		return true
	case Open:
		if now.Sub(cb.lastFailureTime) >= cb.recoveryTimeout {
			cb.state = HalfOpen
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess resets the breaker to CLOSED
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = Closed
	cb.failureCount = 0
}

// RecordFailure counts a failure, opening the breaker when the
// threshold is reached or a HALF_OPEN trial fails
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = now

	if cb.state == HalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = Open
	}
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

/* Registry owns one breaker per operation ID, created on first use
 * with shared thresholds. Used by the generic retry helper.
 */
type Registry struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration) *Registry {
	return &Registry{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		breakers:         make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for an operation ID, creating it on first use
func (r *Registry) Get(operationID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, exists := r.breakers[operationID]
	if !exists {
		cb = NewCircuitBreaker(r.failureThreshold, r.recoveryTimeout)
		r.breakers[operationID] = cb
	}
	return cb
}
