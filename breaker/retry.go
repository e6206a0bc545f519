package breaker

import (
	"context"
	"fmt"
	"time"
)

/* RetryStrategy is the composable retry contract shared by the generic
 * helper and the webhook retry manager, so backoff math lives in one
 * place. webhook.Policy implements it.
 */
type RetryStrategy interface {
	// ShouldRetry reports whether another attempt is allowed after the
	// given number of attempts already made
	ShouldRetry(attempt int, err error) bool
	// NextDelay returns the delay before the given 0-based attempt
	NextDelay(attempt int) time.Duration
}

/* Do executes fn with circuit breaking and backoff retries for the
 * given operation ID. Independent of, and composable with, the webhook
 * manager's own scheduling: this helper is for ad-hoc operations that
 * need bounded retries in-line (API lookups, store writes).
 */
func Do(ctx context.Context, registry *Registry, operationID string, strategy RetryStrategy, fn func(ctx context.Context) error) error {
	cb := registry.Get(operationID)

	var lastErr error
	for attempt := 0; ; attempt++ {
		if !cb.Allow(time.Now()) {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", operationID, ErrOpen, lastErr)
			}
			return fmt.Errorf("%s: %w", operationID, ErrOpen)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			cb.RecordSuccess()
			return nil
		}
		cb.RecordFailure(time.Now())

		if !strategy.ShouldRetry(attempt+1, lastErr) {
			return fmt.Errorf("%s: retries exhausted after %d attempts: %w", operationID, attempt+1, lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operationID, ctx.Err())
		case <-time.After(strategy.NextDelay(attempt)):
		}
	}
}
