// Package tracing wires span-per-request tracing through the pipeline via
// OpenTelemetry's stdout exporter. It is intentionally minimal: no OTLP
// collector dependency, since a single-process deployment has nowhere to
// ship spans to besides its own stdout.
package tracing

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/threadline/dialoguecore/internal/config"
	"github.com/threadline/dialoguecore/internal/pkg/logger"
)

var once sync.Once

// Init installs a global TracerProvider per cfg.OtelExporter ("stdout" or
// "none"). It returns a shutdown func that flushes pending spans.
func Init(ctx context.Context, cfg config.Config, log *logger.Logger) func(context.Context) error {
	shutdown := func(context.Context) error { return nil }
	once.Do(func() {
		if strings.EqualFold(cfg.OtelExporter, "none") {
			return
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String("dialoguecore"),
			attribute.String("service.component", "dialoguecore"),
		))
		if err != nil {
			log.Warn("otel resource init failed, continuing without resource attributes", "error", err)
		}
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Warn("otel stdout exporter init failed, tracing disabled", "error", err)
			return
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{},
		))
		shutdown = tp.Shutdown
		log.Info("otel tracing initialized", "exporter", cfg.OtelExporter)
	})
	return shutdown
}

// Tracer returns the package-scoped tracer used across the pipeline.
func Tracer() trace.Tracer {
	return otel.Tracer("dialoguecore")
}
