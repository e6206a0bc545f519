package metrics

import (
	"context"
	"time"
)

// ScheduleEvent is emitted when a webhook enters (or re-enters) the
// retry queue, or is immediately disabled on scheduling.
type ScheduleEvent struct {
	WebhookID         string    `json:"webhook_id"`
	FormID            string    `json:"form_id"`
	Status            string    `json:"status"`
	StatusCode        int       `json:"status_code,omitempty"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	NextRetryAt       time.Time `json:"next_retry_at,omitempty"`
	AlreadyScheduled  bool      `json:"already_scheduled"`
	ImmediateDisabled bool      `json:"immediate_disabled"`
	Timestamp         time.Time `json:"timestamp"`
}

// AttemptEvent is emitted once per delivery attempt during a
// processing pass.
type AttemptEvent struct {
	WebhookID     string        `json:"webhook_id"`
	FormID        string        `json:"form_id"`
	AttemptNumber int           `json:"attempt_number"`
	Outcome       string        `json:"outcome"`
	StatusCode    int           `json:"status_code,omitempty"`
	FailureKind   string        `json:"failure_kind,omitempty"`
	Duration      time.Duration `json:"duration"`
	Timestamp     time.Time     `json:"timestamp"`
}

// SummaryEvent is emitted once at the end of every processing pass.
type SummaryEvent struct {
	RunID      string        `json:"run_id"`
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Disabled   int           `json:"disabled"`
	Skipped    int           `json:"skipped"`
	QueueDepth int           `json:"queue_depth"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// VerificationEvent is emitted per inbound signature verification.
type VerificationEvent struct {
	Valid     bool      `json:"valid"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

/* Recorder receives structured events from the retry and verification
 * flows. Implementations must be fire-and-forget: they may drop events
 * but must never block or propagate failures into the callers.
 */
type Recorder interface {
	RecordSchedule(ctx context.Context, event ScheduleEvent)
	RecordAttempt(ctx context.Context, event AttemptEvent)
	RecordSummary(ctx context.Context, event SummaryEvent)
	RecordVerification(ctx context.Context, event VerificationEvent)
}

// Noop is a Recorder that discards every event. Used as the default
// when no metrics backend is configured.
type Noop struct{}

func (Noop) RecordSchedule(context.Context, ScheduleEvent)         {}
func (Noop) RecordAttempt(context.Context, AttemptEvent)           {}
func (Noop) RecordSummary(context.Context, SummaryEvent)           {}
func (Noop) RecordVerification(context.Context, VerificationEvent) {}

var _ Recorder = Noop{}
