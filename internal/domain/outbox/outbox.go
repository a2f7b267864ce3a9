// Package outbox declares the event fanout ports. The concrete bus lives in
// infrastructure; domain and application code only publish and subscribe.
package outbox

import "context"

// Event is a named domain event. The name routes it to subscribers.
type Event interface {
	EventName() string
}

type Handler func(ctx context.Context, e Event) error

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
