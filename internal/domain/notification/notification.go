package notification

import "context"

// Notification is a fire-and-forget in-app message for a single user.
type Notification struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Link    string
	Data    map[string]any
}

// Email is a best-effort outbound mail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Sink delivers notifications. Failures are logged by callers, never
// propagated, and never roll back a completed order mutation.
type Sink interface {
	Create(ctx context.Context, n Notification) error
}

// Mailer delivers emails under the same best-effort contract as Sink.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}
