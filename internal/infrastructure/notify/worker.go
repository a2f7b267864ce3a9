package notify

import (
	"context"
	"fmt"

	"github.com/tradeyard/tradeyard/internal/domain/notification"
	"github.com/tradeyard/tradeyard/internal/domain/order"
	"github.com/tradeyard/tradeyard/internal/domain/outbox"
	"github.com/tradeyard/tradeyard/internal/observability"
	"github.com/tradeyard/tradeyard/internal/observability/logctx"
)

// Worker subscribes to order lifecycle events and fans them out to the
// notification sink and mailer. Delivery is best effort; failures are logged
// and never retried here.
type Worker struct {
	sink   notification.Sink
	mailer notification.Mailer
	log    observability.Logger
}

func NewWorker(sink notification.Sink, mailer notification.Mailer, logger observability.Logger) *Worker {
	return &Worker{
		sink:   sink,
		mailer: mailer,
		log:    logger.With(observability.F("component", "notify_worker")),
	}
}

// Register attaches the worker's handlers to the event bus.
func (w *Worker) Register(sub outbox.Subscriber) {
	sub.Subscribe(order.OrderCreatedEvent{}.EventName(), w.onCreated)
	sub.Subscribe(order.OrderPaidEvent{}.EventName(), w.onPaid)
	sub.Subscribe(order.OrderCancelledEvent{}.EventName(), w.onCancelled)
	sub.Subscribe(order.OrderStatusChangedEvent{}.EventName(), w.onStatusChanged)
}

func (w *Worker) onCreated(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(order.OrderCreatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", e)
	}

	w.notify(ctx, notification.Notification{
		UserID:  ev.CustomerID,
		Type:    "order_placed",
		Title:   "Order placed",
		Message: fmt.Sprintf("Your order %s has been placed.", ev.Number),
		Link:    "/orders/" + ev.OrderID,
		Data:    map[string]any{"order_id": ev.OrderID, "total": ev.Total},
	})
	for _, vendorID := range ev.VendorIDs {
		w.notify(ctx, notification.Notification{
			UserID:  vendorID,
			Type:    "order_received",
			Title:   "New order",
			Message: fmt.Sprintf("You have new items to fulfill in order %s.", ev.Number),
			Link:    "/orders/" + ev.OrderID,
			Data:    map[string]any{"order_id": ev.OrderID},
		})
	}
	// The mail service resolves the recipient address from the user id.
	w.mail(ctx, notification.Email{
		To:      ev.CustomerID,
		Subject: fmt.Sprintf("Order confirmation %s", ev.Number),
		HTML:    fmt.Sprintf("<p>Thanks for your order <b>%s</b>. Total: $%.2f.</p>", ev.Number, ev.Total),
	})
	return nil
}

func (w *Worker) onPaid(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(order.OrderPaidEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", e)
	}

	w.notify(ctx, notification.Notification{
		UserID:  ev.CustomerID,
		Type:    "payment_received",
		Title:   "Payment received",
		Message: fmt.Sprintf("Payment for order %s has been confirmed.", ev.Number),
		Link:    "/orders/" + ev.OrderID,
		Data:    map[string]any{"order_id": ev.OrderID, "method": string(ev.Method)},
	})
	for _, vendorID := range ev.VendorIDs {
		w.notify(ctx, notification.Notification{
			UserID:  vendorID,
			Type:    "order_paid",
			Title:   "Order paid",
			Message: fmt.Sprintf("Order %s is paid and ready to fulfill.", ev.Number),
			Link:    "/orders/" + ev.OrderID,
			Data:    map[string]any{"order_id": ev.OrderID},
		})
	}
	w.mail(ctx, notification.Email{
		To:      ev.CustomerID,
		Subject: fmt.Sprintf("Payment received for order %s", ev.Number),
		HTML:    fmt.Sprintf("<p>We received your payment of $%.2f for order <b>%s</b>.</p>", ev.Total, ev.Number),
	})
	return nil
}

func (w *Worker) onCancelled(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(order.OrderCancelledEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", e)
	}

	msg := fmt.Sprintf("Order %s has been cancelled.", ev.Number)
	if ev.Reason != "" {
		msg = fmt.Sprintf("Order %s has been cancelled: %s", ev.Number, ev.Reason)
	}
	w.notify(ctx, notification.Notification{
		UserID:  ev.CustomerID,
		Type:    "order_cancelled",
		Title:   "Order cancelled",
		Message: msg,
		Link:    "/orders/" + ev.OrderID,
		Data:    map[string]any{"order_id": ev.OrderID},
	})
	for _, vendorID := range ev.VendorIDs {
		w.notify(ctx, notification.Notification{
			UserID:  vendorID,
			Type:    "order_cancelled",
			Title:   "Order cancelled",
			Message: msg,
			Link:    "/orders/" + ev.OrderID,
			Data:    map[string]any{"order_id": ev.OrderID},
		})
	}
	return nil
}

func (w *Worker) onStatusChanged(ctx context.Context, e outbox.Event) error {
	ev, ok := e.(order.OrderStatusChangedEvent)
	if !ok {
		return fmt.Errorf("unexpected event payload %T", e)
	}

	w.notify(ctx, notification.Notification{
		UserID:  ev.CustomerID,
		Type:    "order_status",
		Title:   "Order update",
		Message: fmt.Sprintf("Order %s is now %s.", ev.Number, ev.Status),
		Link:    "/orders/" + ev.OrderID,
		Data:    map[string]any{"order_id": ev.OrderID, "status": string(ev.Status)},
	})
	return nil
}

func (w *Worker) notify(ctx context.Context, n notification.Notification) {
	if err := w.sink.Create(ctx, n); err != nil {
		logctx.FromOr(ctx, w.log).Warn("notification_delivery_failed",
			observability.F("user_id", n.UserID),
			observability.F("type", n.Type),
			observability.F("error", err),
		)
	}
}

func (w *Worker) mail(ctx context.Context, e notification.Email) {
	if w.mailer == nil {
		return
	}
	if err := w.mailer.Send(ctx, e); err != nil {
		logctx.FromOr(ctx, w.log).Warn("email_delivery_failed",
			observability.F("to", e.To),
			observability.F("error", err),
		)
	}
}
