// Package oteltrace adapts the global otel tracer provider to the tracing
// port. Exporter setup (sdktrace.TracerProvider + otel.SetTracerProvider) is
// the deployment's responsibility; without it spans are no-ops.
package oteltrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradeyard/tradeyard/internal/observability"
)

func New(instrumentation string) observability.Tracer {
	if instrumentation == "" {
		instrumentation = "tradeyard"
	}
	return tracer{otel.Tracer(instrumentation)}
}

type tracer struct{ t trace.Tracer }

func (tr tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tr.t.Start(ctx, name, trace.WithAttributes(attrs...))
}
