package payment

import "context"

// EventDedupe remembers which gateway webhook events have been processed so
// redelivered events are handled exactly once.
type EventDedupe interface {
	// FirstSeen returns true when this is the first observation of eventID.
	FirstSeen(ctx context.Context, eventID string) (bool, error)
}
