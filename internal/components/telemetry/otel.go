package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type OtlpConfig struct {
	HttpEndpoint string            `json:"http_endpoint" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	Headers      map[string]string `json:"headers"`
}

// SetupTracing installs a global tracer provider exporting to the configured
// OTLP endpoint. With no endpoint configured, the noop provider stays in place
// and the returned shutdown func does nothing.
func SetupTracing(ctx context.Context, serviceName string, config OtlpConfig) (shutdown func(context.Context) error, err error) {
	if config.HttpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(config.HttpEndpoint),
		otlptracehttp.WithHeaders(config.Headers),
	)
	if err != nil {
		return nil, err
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
