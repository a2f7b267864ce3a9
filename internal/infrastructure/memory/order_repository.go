package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/tradeyard/tradeyard/internal/domain/order"
)

type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]*domain.Order)}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[o.ID]; exists {
		return domain.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	_ = ctx
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.orders[o.ID]
	if !exists {
		return domain.ErrNotFound
	}
	clone := o.Clone()
	// Items and tracking history are immutable through Update; keep the
	// stored copies so a stale caller cannot clobber them.
	clone.Items = stored.Items
	clone.TrackingHistory = stored.TrackingHistory
	r.orders[o.ID] = clone
	return nil
}

func (r *OrderRepository) AppendTracking(ctx context.Context, id string, ev domain.TrackingEvent) error {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.TrackingHistory = append(o.TrackingHistory, ev)
	loc := ev.Location
	o.CurrentLocation = &loc
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *OrderRepository) MarkStockCommitted(ctx context.Context, id string, at time.Time) (bool, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.StockCommittedAt != nil {
		return false, nil
	}
	o.StockCommittedAt = &at
	return true, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, f domain.ListFilter) ([]*domain.Order, int, error) {
	return r.list(ctx, f, func(o *domain.Order) bool { return o.CustomerID == customerID })
}

func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string, f domain.ListFilter) ([]*domain.Order, int, error) {
	return r.list(ctx, f, func(o *domain.Order) bool { return o.HasVendor(vendorID) })
}

func (r *OrderRepository) list(ctx context.Context, f domain.ListFilter, match func(*domain.Order) bool) ([]*domain.Order, int, error) {
	_ = ctx
	f = f.Normalize()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*domain.Order
	for _, o := range r.orders {
		if match(o) {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := len(all)
	start := f.Offset()
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	page := make([]*domain.Order, 0, end-start)
	for _, o := range all[start:end] {
		page = append(page, o.Clone())
	}
	return page, total, nil
}
