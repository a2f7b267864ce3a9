package application

import (
	"context"
	"time"

	"github.com/tradeyard/tradeyard/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const spanPrefix = "UC."

// Track opens a span for a use case and returns a completion func that closes
// the span and records the RED metrics. Call the func with the operation's
// final error, typically from a defer over a named return.
func Track(ctx context.Context, tel observability.Observability, useCase string) (context.Context, func(error)) {
	if tel == nil {
		tel = observability.Nop()
	}
	ctx, span := tel.Tracer().Start(ctx, spanPrefix+useCase,
		attribute.String("use_case", useCase),
	)
	start := time.Now()

	return ctx, func(err error) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		tel.Metrics().Counter(observability.MUsecaseRequests).Add(1,
			observability.L("use_case", useCase),
			observability.L("outcome", outcome),
		)
		tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(time.Since(start).Seconds(),
			observability.L("use_case", useCase),
		)
	}
}
