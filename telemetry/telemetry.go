// Package telemetry installs the OpenTelemetry tracer provider that
// certificate verification reports its spans to.
package telemetry

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/icagent/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const ServiceName = "icagent"

// Event types written with log.Event.
const (
	EventCertificateVerified = "certificate_verified"
	EventCertificateRejected = "certificate_rejected"
	EventRequestID           = "request_id"
)

// Shutdown flushes and stops the installed provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Setup exports spans over OTLP/HTTP to endpoint, a full URL such as
// http://localhost:4318/v1/traces. An empty endpoint installs nothing.
func Setup(ctx context.Context, endpoint string) (Shutdown, error) {
	if endpoint == "" {
		log.Debug(log.CLIModule, "tracing disabled")
		return noop, nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter for %s: %w", endpoint, err)
	}
	log.Info(log.CLIModule, "tracing enabled", "endpoint", endpoint)
	return Install(exp).Shutdown, nil
}

// Install makes a batching provider over exp the global tracer provider.
func Install(exp sdktrace.SpanExporter) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(ServiceName))),
	)
	otel.SetTracerProvider(tp)
	return tp
}
