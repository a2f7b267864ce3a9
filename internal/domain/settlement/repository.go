package settlement

import "context"

// Repository persists settlement rows. Insert must be idempotent on
// (order, vendor): a second row for the same pair fails with ErrConflict so
// retried settlement runs converge on exactly one row per vendor.
type Repository interface {
	Insert(ctx context.Context, t *Transaction) error
	ListByOrder(ctx context.Context, orderID string) ([]*Transaction, error)
}
