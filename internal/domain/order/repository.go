package order

import (
	"context"
	"time"
)

// ListFilter is a page/limit pagination window.
type ListFilter struct {
	Page  int
	Limit int
}

func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return f
}

func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

// Repository persists orders. Update writes order-level fields only; items
// are immutable after Insert, and tracking events go through AppendTracking
// so concurrent vendors on a shared order cannot clobber each other's lines.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	AppendTracking(ctx context.Context, id string, ev TrackingEvent) error

	// MarkStockCommitted flips the stock-commit guard if it is still unset.
	// It returns false when another attempt already committed the step.
	MarkStockCommitted(ctx context.Context, id string, at time.Time) (bool, error)

	ListByCustomer(ctx context.Context, customerID string, f ListFilter) ([]*Order, int, error)
	ListByVendor(ctx context.Context, vendorID string, f ListFilter) ([]*Order, int, error)
}
