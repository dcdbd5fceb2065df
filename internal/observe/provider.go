package observe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig describes the dictation client to the OpenTelemetry SDK.
// Every field ends up on the shared resource, so spans from a chain run and
// samples such as voiceflow.audio.frames.dropped carry the same identity.
type ProviderConfig struct {
	// ServiceName defaults to "voiceflow".
	ServiceName string

	ServiceVersion string

	// InstanceID distinguishes clients reporting to the same backend.
	// A random UUID is used when empty.
	InstanceID string

	// ServiceURL is the transcription endpoint. Only its scheme, host and
	// port are recorded; credentials, path and query are never exported.
	ServiceURL string

	// Attributes are appended to the resource as-is.
	Attributes []attribute.KeyValue

	// MetricReader replaces the Prometheus exporter when set.
	MetricReader sdkmetric.Reader

	// TraceExporter is optional. Without one, spans are recorded but not
	// exported.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider installs global meter and tracer providers built from cfg and
// returns a function that flushes and closes both. Metrics go to the
// Prometheus registry served on /metrics unless cfg.MetricReader is set.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reader := cfg.MetricReader
	if reader == nil {
		promExp, err := promexporter.New()
		if err != nil {
			return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
		}
		reader = promExp
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// newResource builds the resource shared by both providers. Attributes from
// OTEL_RESOURCE_ATTRIBUTES are merged in, with cfg taking precedence.
func newResource(ctx context.Context, cfg ProviderConfig) (*resource.Resource, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voiceflow"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceInstanceID(cfg.InstanceID),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.ServiceURL != "" {
		endpoint, err := endpointAttributes(cfg.ServiceURL)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, endpoint...)
	}
	attrs = append(attrs, cfg.Attributes...)

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}
	return res, nil
}

// endpointAttributes maps a ws:// or wss:// URL to server.address,
// server.port and url.scheme. A missing port is filled from the scheme.
func endpointAttributes(raw string) ([]attribute.KeyValue, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("observe: service url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("observe: service url %q has no host", raw)
	}

	port := 80
	if u.Scheme == "wss" || u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("observe: service url port %q: %w", p, err)
		}
	}
	return []attribute.KeyValue{
		semconv.ServerAddress(u.Hostname()),
		semconv.ServerPort(port),
		semconv.URLScheme(u.Scheme),
	}, nil
}
