package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/tradeyard/tradeyard/internal/domain/product"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRowContext(ctx, `SELECT id, vendor_id, name, price, stock,
		track_inventory, total_sales, status, shipping_cost, free_shipping, created_at, updated_at
		FROM products WHERE id = $1`, id).Scan(
		&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock,
		&p.TrackInventory, &p.TotalSales, &p.Status, &p.ShippingCost,
		&p.FreeShipping, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

func (r *ProductRepository) Upsert(ctx context.Context, p *domain.Product) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO products
		(id, vendor_id, name, price, stock, track_inventory, total_sales, status,
		 shipping_cost, free_shipping, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			vendor_id = EXCLUDED.vendor_id, name = EXCLUDED.name, price = EXCLUDED.price,
			stock = EXCLUDED.stock, track_inventory = EXCLUDED.track_inventory,
			total_sales = EXCLUDED.total_sales, status = EXCLUDED.status,
			shipping_cost = EXCLUDED.shipping_cost, free_shipping = EXCLUDED.free_shipping,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.VendorID, p.Name, p.Price, p.Stock, p.TrackInventory, p.TotalSales,
		p.Status, p.ShippingCost, p.FreeShipping, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

// ReserveStock decrements stock in a single conditional UPDATE so concurrent
// reservations can never take the counter below zero. Untracked products skip
// the stock condition and only accrue sales.
func (r *ProductRepository) ReserveStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET
		stock = CASE WHEN track_inventory THEN stock - $1 ELSE stock END,
		total_sales = total_sales + $1,
		updated_at = $3
		WHERE id = $2 AND (NOT track_inventory OR stock >= $1)`,
		qty, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrInsufficientStock
}

func (r *ProductRepository) ReleaseStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET
		stock = CASE WHEN track_inventory THEN stock + $1 ELSE stock END,
		total_sales = GREATEST(total_sales - $1, 0),
		updated_at = $3
		WHERE id = $2`,
		qty, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
