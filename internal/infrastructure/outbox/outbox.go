// Package outbox is the in-process event bus behind the domain publisher
// port. Events are not durable: a crash between the repository write and the
// dispatch loses the notification, never the order mutation.
package outbox

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/tradeyard/tradeyard/internal/domain/outbox"
	"github.com/tradeyard/tradeyard/internal/observability"
	"github.com/tradeyard/tradeyard/internal/observability/logctx"
)

const (
	queueDepth     = 1024
	workerCount    = 8
	handlerTimeout = 30 * time.Second
)

type Bus struct {
	log observability.Logger

	mu   sync.RWMutex
	subs map[string][]domoutbox.Handler

	queue chan domoutbox.Event

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	drained   sync.WaitGroup
}

func NewBus(log observability.Logger) *Bus {
	return &Bus{
		log:   log.With(observability.F("component", "outbox")),
		subs:  make(map[string][]domoutbox.Handler),
		queue: make(chan domoutbox.Event, queueDepth),
	}
}

// Subscribe registers h for events with the given name. Call before Start;
// late subscriptions only see events enqueued afterwards.
func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		for i := 0; i < workerCount; i++ {
			b.drained.Add(1)
			go b.worker(runCtx)
		}
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		close(b.queue)
		b.drained.Wait()
		logctx.FromOr(ctx, b.log).Info("event_bus_stopped")
	})
}

// Publish enqueues e for asynchronous delivery. Blocks only when the queue
// is full, and then gives up with the context.
func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	select {
	case b.queue <- e:
		return nil
	case <-ctx.Done():
		logctx.FromOr(ctx, b.log).Warn("event_enqueue_aborted",
			observability.F("event", e.EventName()),
			observability.F("error", ctx.Err()),
		)
		return ctx.Err()
	}
}

func (b *Bus) worker(ctx context.Context) {
	defer b.drained.Done()
	for e := range b.queue {
		b.deliver(ctx, e)
	}
}

func (b *Bus) deliver(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()

	b.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), b.subs[name]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("event_dropped_no_subscriber", observability.F("event", name))
		return
	}

	// The publisher's request context may already be gone.
	base := context.WithoutCancel(ctx)
	eventLog := b.log.With(observability.F("event", name))

	for _, h := range handlers {
		b.invoke(base, eventLog, h, e)
	}
}

func (b *Bus) invoke(ctx context.Context, log observability.Logger, h domoutbox.Handler, e domoutbox.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event_handler_panic",
				observability.F("panic", r),
				observability.F("stack", string(debug.Stack())),
			)
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	if err := h(logctx.With(hctx, log), e); err != nil {
		log.Warn("event_handler_error", observability.F("error", err))
	}
}
