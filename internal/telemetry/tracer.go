package telemetry

import (
	"context"
	"fmt"

	"github.com/Bhogyaan/threads/backend/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName identifies the realtime server in traces
const ServiceName = "threads-realtime"

// Config holds OpenTelemetry configuration
type Config struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	Enabled      bool
	SamplingRate float64 // 1.0 = 100%, 0.1 = 10%
}

// ConfigFrom builds the tracer config from the OTEL_* settings
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		ServiceName:  ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Enabled:      cfg.Tracing.Enabled,
		SamplingRate: cfg.Tracing.SamplingRate,
	}
}

// InitTracer initializes the OpenTelemetry tracer provider with an OTLP HTTP exporter.
// It returns nil when tracing is disabled; the global no-op provider stays in place.
// Propagation is installed either way so correlation baggage still crosses the event bus.
func InitTracer(cfg Config) (*sdktrace.TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1 {
		return nil, fmt.Errorf("sampling rate must be in (0, 1], got %v", cfg.SamplingRate)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes pending spans; a nil provider is a no-op
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
