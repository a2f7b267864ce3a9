package order

import "time"

// OrderCreatedEvent is emitted after checkout persists a new order. Handled by
// the notification worker for per-vendor and customer fanout.
type OrderCreatedEvent struct {
	OrderID    string
	Number     string
	CustomerID string
	VendorIDs  []string
	Total      float64
	OccurredAt time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		VendorIDs:  o.VendorIDs(),
		Total:      o.Total,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderPaidEvent is emitted when either reconciliation track confirms payment.
type OrderPaidEvent struct {
	OrderID    string
	Number     string
	CustomerID string
	VendorIDs  []string
	Total      float64
	Method     Method
	OccurredAt time.Time
}

func (OrderPaidEvent) EventName() string { return "order.paid" }

func NewOrderPaidEvent(o *Order) OrderPaidEvent {
	return OrderPaidEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		VendorIDs:  o.VendorIDs(),
		Total:      o.Total,
		Method:     o.PaymentMethod,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderCancelledEvent is emitted after a successful cancellation.
type OrderCancelledEvent struct {
	OrderID    string
	Number     string
	CustomerID string
	VendorIDs  []string
	Reason     string
	OccurredAt time.Time
}

func (OrderCancelledEvent) EventName() string { return "order.cancelled" }

func NewOrderCancelledEvent(o *Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		VendorIDs:  o.VendorIDs(),
		Reason:     o.CancellationReason,
		OccurredAt: time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted on fulfillment transitions.
type OrderStatusChangedEvent struct {
	OrderID    string
	Number     string
	CustomerID string
	Status     Status
	OccurredAt time.Time
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func NewOrderStatusChangedEvent(o *Order) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    o.ID,
		Number:     o.Number,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		OccurredAt: time.Now().UTC(),
	}
}
