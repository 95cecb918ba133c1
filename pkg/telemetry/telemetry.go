// Package telemetry wires OpenTelemetry tracing for model calls, tool calls
// and delegation.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const ServiceName = "tandem"

// Init initializes the OpenTelemetry SDK with an OTLP exporter. The exporter
// is only created when OTEL_EXPORTER_OTLP_ENDPOINT is set; otherwise tracing
// stays local and spans are no-ops beyond context propagation.
// The provider is shut down when ctx is canceled.
func Init(ctx context.Context, version string) error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var traceExporter trace.SpanExporter
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		traceExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	tracerProviderOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
	}
	if traceExporter != nil {
		tracerProviderOpts = append(tracerProviderOpts,
			trace.WithBatcher(traceExporter,
				trace.WithBatchTimeout(5*time.Second),
				trace.WithMaxExportBatchSize(512),
			),
		)
	}

	tp := trace.NewTracerProvider(tracerProviderOpts...)
	otel.SetTracerProvider(tp)

	go func() {
		<-ctx.Done()
		if err := tp.Shutdown(context.Background()); err != nil {
			slog.Warn("Failed to shut down tracer provider", "error", err)
		}
	}()

	return nil
}
