package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// QueueDepther reports the current active retry queue depth.
// The retry manager implements it.
type QueueDepther interface {
	QueueDepth() int
}

// OTelRecorder provides OpenTelemetry metrics export following OTel standards
type OTelRecorder struct {
	meterProvider *sdkmetric.MeterProvider

	// mu guards queue: SetQueueDepther runs after construction and can
	// race a scrape-driven observeQueueDepth callback
	mu    sync.Mutex
	queue QueueDepther

	// OTel meters and instruments
	meter               metric.Meter
	scheduledCounter    metric.Int64Counter
	attemptCounter      metric.Int64Counter
	verificationCounter metric.Int64Counter
	passCounter         metric.Int64Counter
	attemptDuration     metric.Float64Histogram
	queueDepthGauge     metric.Int64ObservableGauge
}

// NewOTelRecorder creates a new OpenTelemetry metrics recorder with Prometheus format
func NewOTelRecorder(queue QueueDepther) (*OTelRecorder, error) {
	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	// Create meter with service info
	meter := meterProvider.Meter(
		"formrelay",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	or := &OTelRecorder{
		meterProvider: meterProvider,
		queue:         queue,
		meter:         meter,
	}

	// Register metrics instruments
	if err := or.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return or, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (or *OTelRecorder) registerInstruments() error {
	var err error

	// Scheduled retries counter
	or.scheduledCounter, err = or.meter.Int64Counter(
		"webhook.retry.scheduled",
		metric.WithDescription("Number of webhooks scheduled for retry"),
		metric.WithUnit("{webhooks}"),
	)
	if err != nil {
		return fmt.Errorf("creating scheduled counter: %w", err)
	}

	// Delivery attempts counter (per outcome)
	or.attemptCounter, err = or.meter.Int64Counter(
		"webhook.retry.attempts",
		metric.WithDescription("Number of retry delivery attempts by outcome"),
		metric.WithUnit("{attempts}"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt counter: %w", err)
	}

	// Verification counter (per result)
	or.verificationCounter, err = or.meter.Int64Counter(
		"webhook.verification.total",
		metric.WithDescription("Number of inbound signature verifications by result"),
		metric.WithUnit("{requests}"),
	)
	if err != nil {
		return fmt.Errorf("creating verification counter: %w", err)
	}

	// Processing pass counter
	or.passCounter, err = or.meter.Int64Counter(
		"webhook.retry.passes",
		metric.WithDescription("Number of completed retry processing passes"),
		metric.WithUnit("{passes}"),
	)
	if err != nil {
		return fmt.Errorf("creating pass counter: %w", err)
	}

	// Attempt duration histogram
	or.attemptDuration, err = or.meter.Float64Histogram(
		"webhook.retry.attempt.duration",
		metric.WithDescription("Duration of retry delivery attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("creating attempt duration histogram: %w", err)
	}

	// Queue depth gauge
	or.queueDepthGauge, err = or.meter.Int64ObservableGauge(
		"webhook.retry.queue.depth",
		metric.WithDescription("Number of webhooks in the active retry queue"),
		metric.WithUnit("{webhooks}"),
		metric.WithInt64Callback(or.observeQueueDepth),
	)
	if err != nil {
		return fmt.Errorf("creating queue depth gauge: %w", err)
	}

	return nil
}

// SetQueueDepther wires the queue depth source after construction,
// since the retry manager itself is built with this recorder
func (or *OTelRecorder) SetQueueDepther(queue QueueDepther) {
	or.mu.Lock()
	or.queue = queue
	or.mu.Unlock()
}

// depther returns the current queue depth source, nil before wiring
func (or *OTelRecorder) depther() QueueDepther {
	or.mu.Lock()
	defer or.mu.Unlock()
	return or.queue
}

// observeQueueDepth is a callback that reports the active queue depth
func (or *OTelRecorder) observeQueueDepth(_ context.Context, observer metric.Int64Observer) error {
	queue := or.depther()
	if queue == nil {
		return nil
	}
	observer.Observe(int64(queue.QueueDepth()))
	return nil
}

// RecordSchedule counts a scheduling event
func (or *OTelRecorder) RecordSchedule(ctx context.Context, event ScheduleEvent) {
	or.scheduledCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", event.Status),
		attribute.Bool("immediate_disabled", event.ImmediateDisabled),
	))
}

// RecordAttempt counts a delivery attempt and its duration
func (or *OTelRecorder) RecordAttempt(ctx context.Context, event AttemptEvent) {
	attrs := metric.WithAttributes(
		attribute.String("outcome", event.Outcome),
		attribute.String("failure_kind", event.FailureKind),
	)
	or.attemptCounter.Add(ctx, 1, attrs)
	or.attemptDuration.Record(ctx, event.Duration.Seconds(), attrs)
}

// RecordSummary counts a completed processing pass
func (or *OTelRecorder) RecordSummary(ctx context.Context, event SummaryEvent) {
	or.passCounter.Add(ctx, 1)
}

// RecordVerification counts an inbound verification result
func (or *OTelRecorder) RecordVerification(ctx context.Context, event VerificationEvent) {
	or.verificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", event.Valid),
		attribute.String("reason", event.Reason),
	))
}

// Handler returns the HTTP handler serving metrics in Prometheus format
func (or *OTelRecorder) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider
func (or *OTelRecorder) Shutdown(ctx context.Context) error {
	return or.meterProvider.Shutdown(ctx)
}

var _ Recorder = (*OTelRecorder)(nil)
