package webhook

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/formrelay/metrics"
)

/* Manager orchestrates retry scheduling, due-retry detection, execution
 * delegation and state transitions for failed webhook deliveries.
 *
 * It is the single owner of the records map and the active queue: no
 * other component mutates them. All state changes happen under one
 * mutex, and ProcessDue additionally holds an atomic single-flight
 * guard so two passes can never overlap. Attempts for a single webhook
 * ID are therefore strictly sequential.
 */
type Manager struct {
	policy   Policy
	executor Executor
	recorder metrics.Recorder
	audit    AuditStore

	// Now is injectable for tests, defaults to time.Now UTC
	Now func() time.Time

	mu      sync.Mutex
	records map[string]*RetryRecord
	queue   map[string]bool

	processing atomic.Bool
}

/* ScheduleRequest describes one failed delivery to place in the retry
 * queue. MaxAttempts and ExpectedStatus carry the per-destination
 * overrides from the destination registry; they are fixed on the record
 * at creation and ignored on re-scheduling an existing record.
 */
type ScheduleRequest struct {
	WebhookID     string
	FormID        string
	WebhookURL    string
	FailureReason string
	StatusCode    int

	// MaxAttempts caps this webhook's attempt budget; 0 uses the policy
	MaxAttempts int
	// ExpectedStatus is the exact success status; 0 accepts any 2xx
	ExpectedStatus int
}

// ProcessResult summarizes one ProcessDue pass
type ProcessResult struct {
	AlreadyProcessing bool     `json:"already_processing"`
	Processed         int      `json:"processed"`
	Successful        int      `json:"successful"`
	Failed            int      `json:"failed"`
	Disabled          int      `json:"disabled"`
	Skipped           int      `json:"skipped"`
	Errors            []string `json:"errors,omitempty"`
}

// NewManager creates a retry manager with dependency injection.
// recorder and audit may be nil; a nil recorder discards events.
func NewManager(policy Policy, executor Executor, recorder metrics.Recorder, audit AuditStore) *Manager {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Manager{
		policy:   policy,
		executor: executor,
		recorder: recorder,
		audit:    audit,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		records: make(map[string]*RetryRecord),
		queue:   make(map[string]bool),
	}
}

/* Schedule creates (or updates) the retry record for a failed webhook
 * delivery and places it in the active queue.
 *
 * Status codes in the immediate-disable set produce a record that is
 * born permanently disabled and never enters the queue. Scheduling an
 * already-queued ID appends a failure note for audit but does not
 * reset the backoff progression. Scheduling a terminal record is a
 * no-op beyond returning its snapshot.
 */
func (m *Manager) Schedule(ctx context.Context, req ScheduleRequest) (RetryRecord, error) {
	if req.WebhookID == "" {
		return RetryRecord{}, fmt.Errorf("webhook ID cannot be empty")
	}
	if req.WebhookURL == "" {
		return RetryRecord{}, fmt.Errorf("webhook URL cannot be empty for webhook %s", req.WebhookID)
	}
	now := m.Now()

	m.mu.Lock()
	record, exists := m.records[req.WebhookID]

	if exists && record.Status.IsFinal() {
		snapshot := record.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}

	if m.policy.IsImmediateDisable(req.StatusCode) {
		if !exists {
			record = &RetryRecord{
				WebhookID:          req.WebhookID,
				FormID:             req.FormID,
				WebhookURL:         req.WebhookURL,
				MaxAttempts:        req.MaxAttempts,
				ExpectedStatus:     req.ExpectedStatus,
				InitialFailureTime: now,
				CreatedAt:          now,
			}
			m.records[req.WebhookID] = record
		}
		record.Status = PermanentlyDisabled
		record.PermanentFailureReason = ReasonImmediateDisableStatusCode
		record.NextRetryAt = time.Time{}
		record.FailureNotes = append(record.FailureNotes,
			fmt.Sprintf("immediately disabled: status %d (%s)", req.StatusCode, req.FailureReason))
		record.UpdatedAt = now
		delete(m.queue, req.WebhookID)
		snapshot := record.Clone()
		m.mu.Unlock()

		m.saveAudit(ctx, snapshot)
		m.safeRecord(func() {
			m.recorder.RecordSchedule(ctx, metrics.ScheduleEvent{
				WebhookID:         req.WebhookID,
				FormID:            req.FormID,
				Status:            snapshot.Status.String(),
				StatusCode:        req.StatusCode,
				FailureReason:     snapshot.PermanentFailureReason.String(),
				ImmediateDisabled: true,
				Timestamp:         now,
			})
		})
		return snapshot, nil
	}

	alreadyQueued := exists && m.queue[req.WebhookID]
	if !exists {
		record = &RetryRecord{
			WebhookID:          req.WebhookID,
			FormID:             req.FormID,
			WebhookURL:         req.WebhookURL,
			MaxAttempts:        req.MaxAttempts,
			ExpectedStatus:     req.ExpectedStatus,
			InitialFailureTime: now,
			Status:             Pending,
			CreatedAt:          now,
		}
		m.records[req.WebhookID] = record
	}
	record.FailureNotes = append(record.FailureNotes, req.FailureReason)
	if !alreadyQueued {
		record.Status = Pending
		record.NextRetryAt = now.Add(m.policy.NextDelay(0))
		m.queue[req.WebhookID] = true
	}
	record.UpdatedAt = now
	snapshot := record.Clone()
	m.mu.Unlock()

	m.safeRecord(func() {
		m.recorder.RecordSchedule(ctx, metrics.ScheduleEvent{
			WebhookID:        req.WebhookID,
			FormID:           req.FormID,
			Status:           snapshot.Status.String(),
			StatusCode:       req.StatusCode,
			NextRetryAt:      snapshot.NextRetryAt,
			AlreadyScheduled: alreadyQueued,
			Timestamp:        now,
		})
	})
	return snapshot, nil
}

/* ProcessDue runs one pass over the queue, executing every webhook
 * whose next retry time has arrived.
 *
 * The pass is single-flight: a second concurrent call returns
 * immediately with AlreadyProcessing set. One webhook's failure,
 * including executor errors and panics, never aborts processing of the
 * remaining queue.
 */
func (m *Manager) ProcessDue(ctx context.Context) ProcessResult {
	if !m.processing.CompareAndSwap(false, true) {
		return ProcessResult{AlreadyProcessing: true}
	}
	defer m.processing.Store(false)

	started := m.Now()
	var result ProcessResult

	m.mu.Lock()
	due := make([]string, 0, len(m.queue))
	for id := range m.queue {
		record, ok := m.records[id]
		if !ok || !record.NextRetryAt.After(started) {
			due = append(due, id)
		}
	}
	m.mu.Unlock()

	for _, id := range due {
		m.processOne(ctx, id, &result)
	}

	m.mu.Lock()
	depth := len(m.queue)
	m.mu.Unlock()

	now := m.Now()
	m.safeRecord(func() {
		m.recorder.RecordSummary(ctx, metrics.SummaryEvent{
			RunID:      uuid.New().String(),
			Processed:  result.Processed,
			Successful: result.Successful,
			Failed:     result.Failed,
			Disabled:   result.Disabled,
			Skipped:    result.Skipped,
			QueueDepth: depth,
			Duration:   now.Sub(started),
			Timestamp:  now,
		})
	})
	return result
}

// processOne handles a single due webhook ID within a pass
func (m *Manager) processOne(ctx context.Context, id string, result *ProcessResult) {
	now := m.Now()

	m.mu.Lock()
	record, ok := m.records[id]
	if !ok {
		// Stale queue entry with no backing record
		delete(m.queue, id)
		m.mu.Unlock()
		result.Skipped++
		return
	}

	if record.HasExceededMaxDuration(now, m.policy.MaxRetryDuration) {
		m.disableLocked(record, ReasonMaxRetryDurationExceeded, now)
		snapshot := record.Clone()
		m.mu.Unlock()
		result.Disabled++
		m.saveAudit(ctx, snapshot)
		return
	}

	if record.TotalAttempts >= m.maxAttemptsLocked(record) {
		record.Status = MaxRetriesExceeded
		record.NextRetryAt = time.Time{}
		record.UpdatedAt = now
		delete(m.queue, id)
		snapshot := record.Clone()
		m.mu.Unlock()
		result.Disabled++
		m.saveAudit(ctx, snapshot)
		return
	}

	delivery := Delivery{
		WebhookID:      record.WebhookID,
		FormID:         record.FormID,
		WebhookURL:     record.WebhookURL,
		AttemptNumber:  record.TotalAttempts + 1,
		CorrelationID:  uuid.New().String(),
		ExpectedStatus: record.ExpectedStatus,
	}
	scheduledAt := record.NextRetryAt
	formID := record.FormID
	m.mu.Unlock()

	// Executor runs outside the lock: it is a network call
	execResult := m.execute(ctx, delivery)
	executedAt := m.Now()

	attempt := Attempt{
		Number:             delivery.AttemptNumber,
		ScheduledTime:      scheduledAt,
		ExecutedTime:       executedAt,
		ResponseStatusCode: execResult.StatusCode,
		ErrorMessage:       execResult.ErrorMessage,
	}
	if execResult.Success {
		attempt.Status = AttemptSuccess
	} else {
		attempt.Status = AttemptFailed
	}

	m.mu.Lock()
	record.Attempts = append(record.Attempts, attempt)
	record.TotalAttempts++
	record.UpdatedAt = executedAt

	var terminal bool
	if execResult.Success {
		record.SuccessfulAttempts++
		record.Status = Success
		record.NextRetryAt = time.Time{}
		delete(m.queue, id)
		result.Successful++
		terminal = true
	} else {
		record.FailedAttempts++
		if execResult.ErrorMessage != "" {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %s", id, execResult.ErrorMessage))
		}
		if m.exceedsFailureRateLocked(record, executedAt) {
			m.disableLocked(record, ReasonFailureRateExceeded, executedAt)
			result.Disabled++
			terminal = true
		} else {
			record.NextRetryAt = executedAt.Add(m.policy.NextDelay(record.TotalAttempts))
			result.Failed++
		}
	}
	snapshot := record.Clone()
	m.mu.Unlock()

	result.Processed++
	if terminal {
		m.saveAudit(ctx, snapshot)
	}
	m.safeRecord(func() {
		m.recorder.RecordAttempt(ctx, metrics.AttemptEvent{
			WebhookID:     id,
			FormID:        formID,
			AttemptNumber: attempt.Number,
			Outcome:       attempt.Status.String(),
			StatusCode:    execResult.StatusCode,
			FailureKind:   execResult.Kind.String(),
			Duration:      executedAt.Sub(now),
			Timestamp:     executedAt,
		})
	})
}

// execute invokes the injected executor, converting errors and panics
// into failed execution results so one webhook cannot abort the pass
func (m *Manager) execute(ctx context.Context, delivery Delivery) (out ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			out = ExecutionResult{
				Success:      false,
				Kind:         FailureNetwork,
				ErrorMessage: fmt.Sprintf("executor panic: %v", r),
			}
		}
	}()

	execResult, err := m.executor.Execute(ctx, delivery)
	if err != nil {
		kind := execResult.Kind
		if kind == FailureNone {
			kind = FailureNetwork
		}
		return ExecutionResult{
			StatusCode:   execResult.StatusCode,
			Success:      false,
			Kind:         kind,
			ErrorMessage: err.Error(),
		}
	}
	if !execResult.Success && execResult.Kind == FailureNone {
		execResult.Kind = FailureHTTPStatus
	}
	return execResult
}

/* exceedsFailureRateLocked applies the failure-rate disablement rule:
 * enough attempts within the evaluation window and a windowed failure
 * rate at or above the threshold disable the webhook regardless of its
 * remaining attempt budget. Caller must hold m.mu.
 */
func (m *Manager) exceedsFailureRateLocked(record *RetryRecord, now time.Time) bool {
	cutoff := now.Add(-m.policy.FailureRateEvaluationWindow)
	var total, failed int
	for _, attempt := range record.Attempts {
		if attempt.ExecutedTime.Before(cutoff) {
			continue
		}
		total++
		if attempt.Status == AttemptFailed {
			failed++
		}
	}
	if total < m.policy.MinimumSampleSize {
		return false
	}
	rate := float64(failed) / float64(total) * 100
	return rate >= m.policy.FailureRateDisableThreshold
}

// maxAttemptsLocked returns the effective attempt budget for a record:
// the destination override when set, the policy value otherwise.
// Caller must hold m.mu.
func (m *Manager) maxAttemptsLocked(record *RetryRecord) int {
	if record.MaxAttempts > 0 {
		return record.MaxAttempts
	}
	return m.policy.MaxTotalAttempts
}

// disableLocked transitions a record to PermanentlyDisabled and removes
// it from the queue. Caller must hold m.mu.
func (m *Manager) disableLocked(record *RetryRecord, reason FailureReason, now time.Time) {
	record.Status = PermanentlyDisabled
	record.PermanentFailureReason = reason
	record.NextRetryAt = time.Time{}
	record.UpdatedAt = now
	delete(m.queue, record.WebhookID)
}

// GetStatus returns a read-only snapshot of the retry record for a
// webhook ID, falling back to the audit store for records that only
// live there
func (m *Manager) GetStatus(ctx context.Context, webhookID string) (RetryRecord, error) {
	m.mu.Lock()
	record, ok := m.records[webhookID]
	if ok {
		snapshot := record.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	if m.audit != nil {
		stored, err := m.audit.GetRecord(ctx, webhookID)
		if err == nil {
			return stored, nil
		}
	}
	return RetryRecord{}, fmt.Errorf("getting status for %s: %w", webhookID, ErrRecordNotFound)
}

// QueueDepth returns the number of webhooks currently in the active queue
func (m *Manager) QueueDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// saveAudit mirrors a terminal record to the audit store when one is
// configured. Audit failures never propagate into the retry flow.
func (m *Manager) saveAudit(ctx context.Context, record RetryRecord) {
	if m.audit == nil {
		return
	}
	_ = m.audit.SaveRecord(ctx, record)
}

// safeRecord shields the retry flow from a misbehaving metrics backend
func (m *Manager) safeRecord(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
