package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/tradeyard/tradeyard/internal/domain/settlement"
)

type TransactionRepository struct {
	mu   sync.RWMutex
	rows map[string]*domain.Transaction
	keys map[string]struct{}
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		rows: make(map[string]*domain.Transaction),
		keys: make(map[string]struct{}),
	}
}

func settleKey(orderID, vendorID string) string {
	return orderID + "/" + vendorID
}

func (r *TransactionRepository) Insert(ctx context.Context, t *domain.Transaction) error {
	_ = ctx
	if t == nil || t.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := settleKey(t.OrderID, t.VendorID)
	if _, exists := r.keys[key]; exists {
		return domain.ErrConflict
	}
	clone := *t
	r.rows[t.ID] = &clone
	r.keys[key] = struct{}{}
	return nil
}

func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Transaction, error) {
	_ = ctx

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range r.rows {
		if t.OrderID == orderID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VendorID < out[j].VendorID })
	return out, nil
}
