// Package observe provides application-wide observability primitives for
// voiceflow: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware for the admin endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed via
// a Prometheus exporter bridge set up by [InitProvider]. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voiceflow metrics.
const meterName = "github.com/MrWong99/voiceflow"

// Session outcomes used with [Metrics.RecordSession].
const (
	OutcomeCompleted    = "completed"
	OutcomeTimeout      = "timeout"
	OutcomeServiceError = "service_error"
	OutcomeAborted      = "aborted"
)

// Frame drop stages used with [Metrics.RecordFrameDropped].
const (
	StageCapture   = "capture"
	StageNormalize = "normalize"
	StageQueue     = "queue"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// FinalizeDuration tracks the time from Stop to the resolved result.
	FinalizeDuration metric.Float64Histogram

	// ChainDuration tracks a full plugin chain run.
	ChainDuration metric.Float64Histogram

	// PluginDuration tracks a single plugin invocation. Use with attribute:
	//   attribute.String("plugin_id", ...)
	PluginDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts audio frames written to the service.
	FramesSent metric.Int64Counter

	// FramesDropped counts lost audio frames. Use with attribute:
	//   attribute.String("stage", ...)
	FramesDropped metric.Int64Counter

	// Sessions counts finished sessions. Use with attribute:
	//   attribute.String("outcome", ...)
	Sessions metric.Int64Counter

	// ReconnectAttempts counts reconnection attempts. Use with attribute:
	//   attribute.String("status", ...)
	ReconnectAttempts metric.Int64Counter

	// PluginErrors counts contained plugin failures. Use with attribute:
	//   attribute.String("plugin_id", ...)
	PluginErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is recording or finalizing.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks admin HTTP request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds).
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.FinalizeDuration, err = m.Float64Histogram("voiceflow.session.finalize.duration",
		metric.WithDescription("Time from stop to final transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChainDuration, err = m.Float64Histogram("voiceflow.plugin.chain.duration",
		metric.WithDescription("Latency of one plugin chain run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PluginDuration, err = m.Float64Histogram("voiceflow.plugin.duration",
		metric.WithDescription("Latency of a single plugin invocation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("voiceflow.audio.frames.sent",
		metric.WithDescription("Audio frames written to the transcription service."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voiceflow.audio.frames.dropped",
		metric.WithDescription("Audio frames dropped by stage."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("voiceflow.sessions",
		metric.WithDescription("Finished dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ReconnectAttempts, err = m.Int64Counter("voiceflow.reconnect.attempts",
		metric.WithDescription("Reconnection attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.PluginErrors, err = m.Int64Counter("voiceflow.plugin.errors",
		metric.WithDescription("Contained plugin failures by plugin ID."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voiceflow.active_sessions",
		metric.WithDescription("Number of sessions currently recording or finalizing."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voiceflow.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrameDropped increments the dropped-frame counter for stage.
func (m *Metrics) RecordFrameDropped(ctx context.Context, stage string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordSession counts a finished session with the given outcome.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordReconnectAttempt counts one reconnection attempt. status is "ok" or
// "error".
func (m *Metrics) RecordReconnectAttempt(ctx context.Context, status string) {
	m.ReconnectAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPlugin records one plugin invocation, counting it as an error when
// failed is true.
func (m *Metrics) RecordPlugin(ctx context.Context, pluginID string, seconds float64, failed bool) {
	attrs := metric.WithAttributes(attribute.String("plugin_id", pluginID))
	m.PluginDuration.Record(ctx, seconds, attrs)
	if failed {
		m.PluginErrors.Add(ctx, 1, attrs)
	}
}
