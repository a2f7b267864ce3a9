// Package logctx carries a request-scoped logger on the context so handlers
// and services share the same correlation fields (request id, trace id).
package logctx

import (
	"context"

	"github.com/tradeyard/tradeyard/internal/observability"
)

type ctxKey struct{}

// With returns a context holding log. A nil log leaves ctx untouched.
func With(ctx context.Context, log observability.Logger) context.Context {
	if ctx == nil || log == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, log)
}

// From returns the context logger, or nil when none was attached.
func From(ctx context.Context) observability.Logger {
	if ctx == nil {
		return nil
	}
	log, _ := ctx.Value(ctxKey{}).(observability.Logger)
	return log
}

// FromOr is From with a fallback for call sites that always need a logger.
func FromOr(ctx context.Context, fallback observability.Logger) observability.Logger {
	if log := From(ctx); log != nil {
		return log
	}
	return fallback
}
