// Package observe provides application-wide observability primitives for
// VoxHire: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all VoxHire metrics.
const meterName = "github.com/voxhire/voxhire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// NegotiationDuration tracks realtime session negotiation latency. Use
	// with attributes:
	//   attribute.String("transport", ...), attribute.String("status", ...)
	NegotiationDuration metric.Float64Histogram

	// SessionDuration tracks completed interview session length.
	// Use with attribute: attribute.String("interview_type", ...)
	SessionDuration metric.Float64Histogram

	// ActiveSessions tracks the number of live interview sessions.
	ActiveSessions metric.Int64UpDownCounter

	// FinalizedUtterances counts transcript utterances as they freeze.
	// Use with attribute: attribute.String("speaker", ...)
	FinalizedUtterances metric.Int64Counter

	// ChannelErrors counts realtime channel failures. Use with attribute:
	//   attribute.String("kind", ...)
	ChannelErrors metric.Int64Counter

	// ScriptsSaved counts persisted script artifacts. Use with attributes:
	//   attribute.String("interview_type", ...), attribute.String("outcome", ...)
	ScriptsSaved metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// negotiationBuckets defines histogram boundaries (in seconds) for the
// credential/SDP negotiation path.
var negotiationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20,
}

// sessionBuckets defines histogram boundaries (in seconds) for interview
// lengths; technical interviews run up to half an hour.
var sessionBuckets = []float64{
	30, 60, 120, 300, 600, 900, 1200, 1800, 2700,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NegotiationDuration, err = m.Float64Histogram("voxhire.negotiation.duration",
		metric.WithDescription("Latency of realtime session negotiation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(negotiationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxhire.session.duration",
		metric.WithDescription("Length of completed interview sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxhire.active_sessions",
		metric.WithDescription("Number of live interview sessions."),
	); err != nil {
		return nil, err
	}
	if met.FinalizedUtterances, err = m.Int64Counter("voxhire.transcript.utterances",
		metric.WithDescription("Total finalized transcript utterances by speaker."),
	); err != nil {
		return nil, err
	}
	if met.ChannelErrors, err = m.Int64Counter("voxhire.channel.errors",
		metric.WithDescription("Total realtime channel failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ScriptsSaved, err = m.Int64Counter("voxhire.scripts.saved",
		metric.WithDescription("Total persisted script artifacts by interview type and outcome."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxhire.http.request.duration",
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

// RecordNegotiation records one negotiation attempt with its outcome.
func (m *Metrics) RecordNegotiation(ctx context.Context, transport, status string, seconds float64) {
	m.NegotiationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("transport", transport),
			attribute.String("status", status),
		),
	)
}

// RecordUtterance records one finalized transcript utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, speaker string) {
	m.FinalizedUtterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordChannelError records one realtime channel failure.
func (m *Metrics) RecordChannelError(ctx context.Context, kind string) {
	m.ChannelErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordScriptSaved records one persisted script artifact.
func (m *Metrics) RecordScriptSaved(ctx context.Context, interviewType, outcome string) {
	m.ScriptsSaved.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("interview_type", interviewType),
			attribute.String("outcome", outcome),
		),
	)
}
