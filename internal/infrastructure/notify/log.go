// Package notify holds notification delivery fallbacks and the order event
// worker that fans order lifecycle events out to sinks.
package notify

import (
	"context"

	"github.com/tradeyard/tradeyard/internal/domain/notification"
	"github.com/tradeyard/tradeyard/internal/observability"
)

// LogSink writes notifications to the structured log. Used when no broker is
// configured.
type LogSink struct {
	log observability.Logger
}

func NewLogSink(logger observability.Logger) *LogSink {
	return &LogSink{log: logger.With(observability.F("component", "notify"))}
}

func (s *LogSink) Create(ctx context.Context, n notification.Notification) error {
	_ = ctx
	s.log.Info("notification",
		observability.F("user_id", n.UserID),
		observability.F("type", n.Type),
		observability.F("title", n.Title),
		observability.F("message", n.Message),
	)
	return nil
}

// LogMailer logs outbound mail instead of sending it.
type LogMailer struct {
	log observability.Logger
}

func NewLogMailer(logger observability.Logger) *LogMailer {
	return &LogMailer{log: logger.With(observability.F("component", "mailer"))}
}

func (m *LogMailer) Send(ctx context.Context, e notification.Email) error {
	_ = ctx
	m.log.Info("email",
		observability.F("to", e.To),
		observability.F("subject", e.Subject),
	)
	return nil
}
