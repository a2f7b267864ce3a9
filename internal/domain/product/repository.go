package product

import "context"

// Repository is the stock ledger. Reserve and Release must be atomic
// conditional updates so concurrent checkouts against the same product can
// never oversell (decrement-if-available, not read-then-write).
type Repository interface {
	Get(ctx context.Context, id string) (*Product, error)
	Upsert(ctx context.Context, p *Product) error

	// ReserveStock decrements stock and increments total_sales by qty for
	// inventory-tracked products, failing with ErrInsufficientStock when not
	// enough stock remains. For untracked products it is a no-op.
	ReserveStock(ctx context.Context, id string, qty int) error

	// ReleaseStock re-adds qty units and decrements total_sales, floored at
	// zero. Called once per cancelled order line.
	ReleaseStock(ctx context.Context, id string, qty int) error
}
