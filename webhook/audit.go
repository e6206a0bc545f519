package webhook

import (
	"context"
	"time"

	"github.com/marcelsud/formrelay/breaker"
)

const (
	auditSaveOperation = "audit-save"
	auditMaxAttempts   = 3
	auditRetryDelay    = 100 * time.Millisecond
)

// auditBackoff is the fixed retry strategy for audit writes. Audit
// persistence is best-effort, so a short flat delay is enough.
type auditBackoff struct{}

func (auditBackoff) ShouldRetry(attempt int, _ error) bool {
	return attempt < auditMaxAttempts
}

func (auditBackoff) NextDelay(int) time.Duration {
	return auditRetryDelay
}

/* ResilientAuditStore wraps an AuditStore with circuit breaking and
 * bounded retries on writes. A struggling Redis gets a few quick
 * retries per save; once the breaker opens, subsequent saves are shed
 * immediately instead of stalling retry passes.
 */
type ResilientAuditStore struct {
	inner    AuditStore
	registry *breaker.Registry
}

// NewResilientAuditStore wraps an audit store with the given breaker registry
func NewResilientAuditStore(inner AuditStore, registry *breaker.Registry) *ResilientAuditStore {
	return &ResilientAuditStore{
		inner:    inner,
		registry: registry,
	}
}

// SaveRecord persists a record through the breaker with bounded retries
func (s *ResilientAuditStore) SaveRecord(ctx context.Context, record RetryRecord) error {
	return breaker.Do(ctx, s.registry, auditSaveOperation, auditBackoff{}, func(ctx context.Context) error {
		return s.inner.SaveRecord(ctx, record)
	})
}

// GetRecord passes through to the inner store. Reads are not routed
// through the breaker: a not-found result is an expected outcome, not
// a store failure.
func (s *ResilientAuditStore) GetRecord(ctx context.Context, webhookID string) (RetryRecord, error) {
	return s.inner.GetRecord(ctx, webhookID)
}

var _ AuditStore = (*ResilientAuditStore)(nil)
