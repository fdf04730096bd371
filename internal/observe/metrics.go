// Package observe provides application-wide observability primitives for
// ReadAlong: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all ReadAlong metrics.
const meterName = "github.com/readwell/readalong"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// AlignLatency tracks transcript-to-target alignment latency per chunk.
	AlignLatency metric.Float64Histogram

	// SessionDuration tracks total wall-clock duration of reading sessions.
	SessionDuration metric.Float64Histogram

	// ScoreDuration tracks attempt scoring latency.
	ScoreDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderEvents counts transcription provider events received.
	ProviderEvents metric.Int64Counter

	// ProviderReconnects counts successful mid-session provider reconnects.
	ProviderReconnects metric.Int64Counter

	// GovernorClamps counts cursor advances reduced by the rate governor.
	GovernorClamps metric.Int64Counter

	// FlushFailures counts event buffers abandoned after the flush retry.
	FlushFailures metric.Int64Counter

	// AttemptsFinished counts finished attempts. Use with attribute:
	//   attribute.String("strategy", ...)
	AttemptsFinished metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live reading sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-chunk alignment latencies and whole-session durations alike.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AlignLatency, err = m.Float64Histogram("readalong.align.duration",
		metric.WithDescription("Latency of aligning one transcript chunk against the target text."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("readalong.session.duration",
		metric.WithDescription("Wall-clock duration of reading sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScoreDuration, err = m.Float64Histogram("readalong.score.duration",
		metric.WithDescription("Latency of scoring a finished attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderEvents, err = m.Int64Counter("readalong.provider.events",
		metric.WithDescription("Total transcription provider events received."),
	); err != nil {
		return nil, err
	}
	if met.ProviderReconnects, err = m.Int64Counter("readalong.provider.reconnects",
		metric.WithDescription("Total successful mid-session provider reconnects."),
	); err != nil {
		return nil, err
	}
	if met.GovernorClamps, err = m.Int64Counter("readalong.governor.clamps",
		metric.WithDescription("Total cursor advances reduced by the rate governor."),
	); err != nil {
		return nil, err
	}
	if met.FlushFailures, err = m.Int64Counter("readalong.flush.failures",
		metric.WithDescription("Total event buffers abandoned after the teardown flush retry."),
	); err != nil {
		return nil, err
	}
	if met.AttemptsFinished, err = m.Int64Counter("readalong.attempts.finished",
		metric.WithDescription("Total finished reading attempts by scoring strategy."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("readalong.active_sessions",
		metric.WithDescription("Number of live reading sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("readalong.http.request.duration",
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

// RecordAttemptFinished records a finished attempt with its scoring strategy.
func (m *Metrics) RecordAttemptFinished(ctx context.Context, strategy string) {
	m.AttemptsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}
