package postgres

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/tradeyard/tradeyard/internal/domain/settlement"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert writes one settlement row. The UNIQUE (order_id, vendor_id) key makes
// a replayed settlement a no-op surfaced as ErrConflict.
func (r *TransactionRepository) Insert(ctx context.Context, t *domain.Transaction) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO transactions
		(id, order_id, vendor_id, customer_id, amount, platform_fee, vendor_amount,
		 payment_method, status, completed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (order_id, vendor_id) DO NOTHING`,
		t.ID, t.OrderID, t.VendorID, t.CustomerID, t.Amount, t.PlatformFee,
		t.VendorAmount, t.PaymentMethod, t.Status, t.CompletedAt, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *TransactionRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, order_id, vendor_id, customer_id,
		amount, platform_fee, vendor_amount, payment_method, status, completed_at, created_at
		FROM transactions WHERE order_id = $1 ORDER BY vendor_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.OrderID, &t.VendorID, &t.CustomerID,
			&t.Amount, &t.PlatformFee, &t.VendorAmount, &t.PaymentMethod,
			&t.Status, &t.CompletedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
