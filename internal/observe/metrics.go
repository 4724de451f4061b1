// Package observe provides application-wide observability primitives for
// amdetect: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// meterName is the instrumentation scope name used for all amdetect metrics.
const meterName = "github.com/MrWong99/amdetect"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// AnalysisDuration tracks how much audio was analysed before the
	// verdict, in seconds of call time.
	AnalysisDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Counters ---

	// Verdicts counts decided calls. Use with attributes:
	//   attribute.String("status", ...), attribute.String("cause", ...)
	Verdicts metric.Int64Counter

	// Frames counts classified frames. Use with attribute:
	//   attribute.String("class", ...)
	Frames metric.Int64Counter

	// --- Error counters ---

	// MalformedFrames counts frames rejected for their size.
	MalformedFrames metric.Int64Counter

	// StoreErrors counts verdict persistence failures. Use with attribute:
	//   attribute.String("op", ...)
	StoreErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of analyses in progress.
	ActiveSessions metric.Int64UpDownCounter
}

// analysisBuckets defines histogram bucket boundaries (in seconds) around the
// default analysis window.
var analysisBuckets = []float64{
	0.25, 0.5, 0.75, 1, 1.5, 2, 2.5, 3, 4, 5, 7.5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalysisDuration, err = m.Float64Histogram("amd.analysis.duration",
		metric.WithDescription("Call audio analysed before a verdict was reached."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(analysisBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("amd.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Verdicts, err = m.Int64Counter("amd.verdicts",
		metric.WithDescription("Total verdicts by status and cause."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("amd.frames",
		metric.WithDescription("Total classified frames by class."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.MalformedFrames, err = m.Int64Counter("amd.frames.malformed",
		metric.WithDescription("Total frames rejected for having the wrong size."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("amd.store.errors",
		metric.WithDescription("Total verdict store failures by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("amd.active_sessions",
		metric.WithDescription("Number of analyses in progress."),
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

// causeLabel returns the cause attribute value; NOTSURE verdicts have none.
func causeLabel(c amd.Cause) string {
	if c == amd.CauseNone {
		return "none"
	}
	return string(c)
}

// RecordVerdict records a verdict counter increment and the analysed duration.
func (m *Metrics) RecordVerdict(ctx context.Context, v amd.Verdict) {
	m.Verdicts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", string(v.Status)),
			attribute.String("cause", causeLabel(v.Cause)),
		),
	)
	m.AnalysisDuration.Record(ctx, v.At.Seconds(),
		metric.WithAttributes(attribute.String("status", string(v.Status))),
	)
}

// RecordFrames adds a finished session's frame counters.
func (m *Metrics) RecordFrames(ctx context.Context, s amd.FrameStats) {
	if s.Voice > 0 {
		m.Frames.Add(ctx, int64(s.Voice), metric.WithAttributes(attribute.String("class", amd.Voice.String())))
	}
	if s.Silence > 0 {
		m.Frames.Add(ctx, int64(s.Silence), metric.WithAttributes(attribute.String("class", amd.Silence.String())))
	}
	if s.Malformed > 0 {
		m.MalformedFrames.Add(ctx, int64(s.Malformed))
	}
}

// RecordStoreError records a store failure for op ("save", "get", "ping").
func (m *Metrics) RecordStoreError(ctx context.Context, op string) {
	m.StoreErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// TrackSession increments the active session gauge and returns a function
// that decrements it again.
func (m *Metrics) TrackSession(ctx context.Context) (done func()) {
	m.ActiveSessions.Add(ctx, 1)
	return func() { m.ActiveSessions.Add(context.WithoutCancel(ctx), -1) }
}

// RecordHTTPRequest records one request's duration. route should be the
// matched mux pattern so that per-call paths share one series.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, d time.Duration) {
	m.HTTPRequestDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("route", route),
		),
	)
}
