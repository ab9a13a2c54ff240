// Package tracing wires up the OpenTelemetry tracer provider shared by the
// CLI entry points, exporting spans over OTLP/HTTP so a traversal's
// materialize/patch/analyze lifecycle can be correlated across nodes in an
// external trace backend.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Init configures the global TracerProvider to export to endpoint (an
// OTLP/HTTP collector address, e.g. "localhost:4318"). It returns a shutdown
// function the caller must invoke before process exit to flush pending
// spans.
//
// If endpoint is empty, tracing is a no-op: the default, non-recording
// TracerProvider is left in place.
func Init(ctx context.Context, endpoint string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("tracing: build exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(semconv.ServiceName("cvereach")),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer is the tracer every cvereach component should obtain its spans
// from.
var Tracer = otel.Tracer("github.com/cvereach/cvereach")
