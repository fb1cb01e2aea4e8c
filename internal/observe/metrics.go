// Package observe provides application-wide observability primitives for
// Visema: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Visema metrics.
const meterName = "github.com/MrWong99/visema"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Turn lifecycle counters ---

	// TurnsStarted counts turns entered via user_text.
	TurnsStarted metric.Int64Counter

	// TurnsCompleted counts turns that reached turn_complete.
	TurnsCompleted metric.Int64Counter

	// TurnsErrored counts turns that ended in an error event.
	TurnsErrored metric.Int64Counter

	// TurnsInterrupted counts turns cancelled by barge-in or interrupt.
	TurnsInterrupted metric.Int64Counter

	// --- Latency histograms ---

	// TurnDuration tracks full turn latency, user_text to turn end.
	TurnDuration metric.Float64Histogram

	// FirstMediaLatency tracks time from user_text to the first audio_chunk.
	FirstMediaLatency metric.Float64Histogram

	// --- Streaming ---

	// OutboundEvents counts outbound wire events. Use with attribute:
	//   attribute.String("type", ...)
	OutboundEvents metric.Int64Counter

	// DriftMs tracks per-frame audio/video drift magnitude in milliseconds.
	DriftMs metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions tracks the number of live dialogue sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for streaming-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// driftBuckets defines histogram bucket boundaries (in ms) around the 80ms
// alignment budget.
var driftBuckets = []float64{
	5, 10, 20, 40, 80, 160, 320, 640,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.TurnsStarted, err = m.Int64Counter("visema.turns.started",
		metric.WithDescription("Total turns started via user_text."),
	); err != nil {
		return nil, err
	}
	if met.TurnsCompleted, err = m.Int64Counter("visema.turns.completed",
		metric.WithDescription("Total turns that emitted turn_complete."),
	); err != nil {
		return nil, err
	}
	if met.TurnsErrored, err = m.Int64Counter("visema.turns.errored",
		metric.WithDescription("Total turns that ended in an error event."),
	); err != nil {
		return nil, err
	}
	if met.TurnsInterrupted, err = m.Int64Counter("visema.turns.interrupted",
		metric.WithDescription("Total turns cancelled by interrupt or barge-in."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("visema.turn.duration",
		metric.WithDescription("Latency of a full turn, user_text to turn end."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FirstMediaLatency, err = m.Float64Histogram("visema.turn.first_media_latency",
		metric.WithDescription("Latency from user_text to the first audio chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DriftMs, err = m.Float64Histogram("visema.alignment.drift",
		metric.WithDescription("Per-frame audio/video drift magnitude."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(driftBuckets...),
	); err != nil {
		return nil, err
	}

	// Streaming counter.
	if met.OutboundEvents, err = m.Int64Counter("visema.outbound.events",
		metric.WithDescription("Total outbound wire events by type."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("visema.active_sessions",
		metric.WithDescription("Number of live dialogue sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("visema.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordOutboundEvent records one outbound wire event of the given type.
func (m *Metrics) RecordOutboundEvent(ctx context.Context, eventType string) {
	m.OutboundEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// RecordDrift records one drift sample's magnitude.
func (m *Metrics) RecordDrift(ctx context.Context, driftMs float64) {
	if driftMs < 0 {
		driftMs = -driftMs
	}
	m.DriftMs.Record(ctx, driftMs)
}
