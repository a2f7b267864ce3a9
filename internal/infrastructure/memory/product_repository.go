package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/tradeyard/tradeyard/internal/domain/product"
)

type ProductRepository struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]*domain.Product)}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	_ = ctx

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	_ = ctx
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.products[p.ID] = p.Clone()
	return nil
}

// ReserveStock decrements stock only when enough remains, in one critical
// section. Untracked products pass through with just the sales bump.
func (r *ProductRepository) ReserveStock(ctx context.Context, id string, qty int) error {
	_ = ctx
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.TrackInventory {
		if p.Stock < qty {
			return domain.ErrInsufficientStock
		}
		p.Stock -= qty
	}
	p.TotalSales += qty
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ProductRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	_ = ctx
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.TrackInventory {
		p.Stock += qty
	}
	p.TotalSales -= qty
	if p.TotalSales < 0 {
		p.TotalSales = 0
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}
