// Package otel installs the tracing provider the arena services report
// through.
package otel

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	endpointEnv = "VOLLEY_ZONE_OTEL_ENDPOINT"
	enabledEnv  = "VOLLEY_ZONE_OTEL_ENABLED"
)

// Setup wires the global OpenTelemetry tracer provider for serviceName.
//
// Export is opt-in: without VOLLEY_ZONE_OTEL_ENDPOINT, or with
// VOLLEY_ZONE_OTEL_ENABLED set to "false", no provider is installed and the
// returned shutdown is a no-op. Callers defer shutdown to flush pending
// spans on exit.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	endpoint, ok := exportTarget()
	if !ok {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// exportTarget reads the collector endpoint, honoring the enable switch.
func exportTarget() (string, bool) {
	if strings.EqualFold(os.Getenv(enabledEnv), "false") {
		return "", false
	}
	endpoint := os.Getenv(endpointEnv)
	return endpoint, endpoint != ""
}
