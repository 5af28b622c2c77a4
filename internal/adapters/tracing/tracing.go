package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/trebuchet-org/treb-proxy/internal/domain/config"
)

// ProvideTracerProvider returns the global tracer provider. With --debug the
// spans of each request are written to the debug log as they end.
func ProvideTracerProvider(cfg *config.RuntimeConfig, log *slog.Logger) trace.TracerProvider {
	if !cfg.Debug {
		return otel.GetTracerProvider()
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(NewLogExporter(log)))
	otel.SetTracerProvider(tp)
	return tp
}

// LogExporter is a span exporter writing one log line per finished span
type LogExporter struct {
	log *slog.Logger
}

// NewLogExporter creates a span exporter logging through log
func NewLogExporter(log *slog.Logger) *LogExporter {
	return &LogExporter{log: log.With("component", "Tracing")}
}

// ExportSpans logs the spans
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := []any{
			"trace", span.SpanContext().TraceID().String(),
			"duration", span.EndTime().Sub(span.StartTime()),
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}

		level := slog.LevelDebug
		if status := span.Status(); status.Code == codes.Error {
			level = slog.LevelWarn
			attrs = append(attrs, "error", status.Description)
		}
		e.log.Log(ctx, level, span.Name(), attrs...)
	}
	return nil
}

// Shutdown is a no-op; nothing is buffered
func (e *LogExporter) Shutdown(ctx context.Context) error {
	return nil
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)
