package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/tradeyard/tradeyard/internal/domain/order"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, order_number, customer_id,
	subtotal, shipping_cost, tax, discount, total,
	status, payment_status, payment_method, payment_intent_id,
	proof_public_id, proof_url, proof_uploaded_at,
	payment_confirmed_by, payment_confirmed_at,
	cancellation_reason, refund_amount, refunded_at,
	current_latitude, current_longitude, current_address,
	tracking_number, carrier, estimated_delivery,
	shipping_address, billing_address, notes,
	stock_committed_at, paid_at, confirmed_at, shipped_at, delivered_at, cancelled_at,
	created_at, updated_at`

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
			$21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32,$33,$34,$35,$36,$37)`,
		orderArgs(o)...)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO order_items
			(order_id, position, product_id, vendor_id, name, price, quantity, variant, subtotal)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			o.ID, i, it.ProductID, it.VendorID, it.Name, it.Price, it.Quantity, it.Variant, it.Subtotal)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit()
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	if err := r.loadTracking(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// Update persists the order-level fields. Items and tracking history are
// written through Insert and AppendTracking only.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET
		status = $2, payment_status = $3, payment_intent_id = $4,
		proof_public_id = $5, proof_url = $6, proof_uploaded_at = $7,
		payment_confirmed_by = $8, payment_confirmed_at = $9,
		cancellation_reason = $10, refund_amount = $11, refunded_at = $12,
		tracking_number = $13, carrier = $14, estimated_delivery = $15,
		paid_at = $16, confirmed_at = $17, shipped_at = $18,
		delivered_at = $19, cancelled_at = $20, updated_at = $21
		WHERE id = $1`,
		o.ID, o.Status, o.PaymentStatus, o.PaymentIntentID,
		proofPublicID(o), proofURL(o), proofUploadedAt(o),
		o.PaymentConfirmedBy, nullTime(o.PaymentConfirmedAt),
		o.CancellationReason, o.RefundAmount, nullTime(o.RefundedAt),
		o.TrackingNumber, o.Carrier, nullTime(o.EstimatedDelivery),
		nullTime(o.PaidAt), nullTime(o.ConfirmedAt), nullTime(o.ShippedAt),
		nullTime(o.DeliveredAt), nullTime(o.CancelledAt), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
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

func (r *OrderRepository) AppendTracking(ctx context.Context, id string, ev domain.TrackingEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE orders SET
		current_latitude = $2, current_longitude = $3, current_address = $4, updated_at = $5
		WHERE id = $1`,
		id, ev.Location.Latitude, ev.Location.Longitude, ev.Location.Address, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tracking_events
		(order_id, status, latitude, longitude, address, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, ev.Status, ev.Location.Latitude, ev.Location.Longitude,
		ev.Location.Address, ev.Description, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("insert tracking event: %w", err)
	}
	return tx.Commit()
}

// MarkStockCommitted stamps the commit marker at most once per order. The
// second caller sees zero rows affected and backs off.
func (r *OrderRepository) MarkStockCommitted(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET stock_committed_at = $2, updated_at = $2
		 WHERE id = $1 AND stock_committed_at IS NULL`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark stock committed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, domain.ErrNotFound
	}
	return false, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, f domain.ListFilter) ([]*domain.Order, int, error) {
	f = f.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		customerID, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return r.collect(ctx, rows, total)
}

func (r *OrderRepository) ListByVendor(ctx context.Context, vendorID string, f domain.ListFilter) ([]*domain.Order, int, error) {
	f = f.Normalize()

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT order_id) FROM order_items WHERE vendor_id = $1`,
		vendorID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count vendor orders: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE id IN (SELECT DISTINCT order_id FROM order_items WHERE vendor_id = $1)
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		vendorID, f.Limit, f.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list vendor orders: %w", err)
	}
	return r.collect(ctx, rows, total)
}

func (r *OrderRepository) collect(ctx context.Context, rows *sql.Rows, total int) ([]*domain.Order, int, error) {
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, o := range out {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, 0, err
		}
		if err := r.loadTracking(ctx, o); err != nil {
			return nil, 0, err
		}
	}
	return out, total, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `SELECT product_id, vendor_id, name, price, quantity, variant, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.VendorID, &it.Name, &it.Price, &it.Quantity, &it.Variant, &it.Subtotal); err != nil {
			return err
		}
		o.Items = append(o.Items, it)
	}
	return rows.Err()
}

func (r *OrderRepository) loadTracking(ctx context.Context, o *domain.Order) error {
	rows, err := r.db.QueryContext(ctx, `SELECT status, latitude, longitude, address, description, created_at
		FROM tracking_events WHERE order_id = $1 ORDER BY id`, o.ID)
	if err != nil {
		return fmt.Errorf("load tracking: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev domain.TrackingEvent
		if err := rows.Scan(&ev.Status, &ev.Location.Latitude, &ev.Location.Longitude,
			&ev.Location.Address, &ev.Description, &ev.Timestamp); err != nil {
			return err
		}
		o.TrackingHistory = append(o.TrackingHistory, ev)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o domain.Order

		proofID, proofURL, curAddr                      sql.NullString
		proofAt, confirmedByAt, refundedAt, estDelivery sql.NullTime
		curLat, curLng                                  sql.NullFloat64
		stockAt, paidAt, confAt, shipAt, delivAt, cancAt sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID,
		&o.Subtotal, &o.ShippingCost, &o.Tax, &o.Discount, &o.Total,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &o.PaymentIntentID,
		&proofID, &proofURL, &proofAt,
		&o.PaymentConfirmedBy, &confirmedByAt,
		&o.CancellationReason, &o.RefundAmount, &refundedAt,
		&curLat, &curLng, &curAddr,
		&o.TrackingNumber, &o.Carrier, &estDelivery,
		&o.ShippingAddress, &o.BillingAddress, &o.Notes,
		&stockAt, &paidAt, &confAt, &shipAt, &delivAt, &cancAt,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}

	if proofID.Valid {
		o.PaymentProof = &domain.PaymentProof{
			PublicID:   proofID.String,
			URL:        proofURL.String,
			UploadedAt: proofAt.Time,
		}
	}
	if curLat.Valid && curLng.Valid {
		o.CurrentLocation = &domain.GeoPoint{
			Latitude:  curLat.Float64,
			Longitude: curLng.Float64,
			Address:   curAddr.String,
		}
	}
	o.PaymentConfirmedAt = timePtr(confirmedByAt)
	o.RefundedAt = timePtr(refundedAt)
	o.EstimatedDelivery = timePtr(estDelivery)
	o.StockCommittedAt = timePtr(stockAt)
	o.PaidAt = timePtr(paidAt)
	o.ConfirmedAt = timePtr(confAt)
	o.ShippedAt = timePtr(shipAt)
	o.DeliveredAt = timePtr(delivAt)
	o.CancelledAt = timePtr(cancAt)
	return &o, nil
}

func orderArgs(o *domain.Order) []any {
	var curLat, curLng sql.NullFloat64
	var curAddr sql.NullString
	if o.CurrentLocation != nil {
		curLat = sql.NullFloat64{Float64: o.CurrentLocation.Latitude, Valid: true}
		curLng = sql.NullFloat64{Float64: o.CurrentLocation.Longitude, Valid: true}
		curAddr = sql.NullString{String: o.CurrentLocation.Address, Valid: true}
	}
	return []any{
		o.ID, o.Number, o.CustomerID,
		o.Subtotal, o.ShippingCost, o.Tax, o.Discount, o.Total,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentIntentID,
		proofPublicID(o), proofURL(o), proofUploadedAt(o),
		o.PaymentConfirmedBy, nullTime(o.PaymentConfirmedAt),
		o.CancellationReason, o.RefundAmount, nullTime(o.RefundedAt),
		curLat, curLng, curAddr,
		o.TrackingNumber, o.Carrier, nullTime(o.EstimatedDelivery),
		o.ShippingAddress, o.BillingAddress, o.Notes,
		nullTime(o.StockCommittedAt), nullTime(o.PaidAt), nullTime(o.ConfirmedAt),
		nullTime(o.ShippedAt), nullTime(o.DeliveredAt), nullTime(o.CancelledAt),
		o.CreatedAt, o.UpdatedAt,
	}
}

func proofPublicID(o *domain.Order) sql.NullString {
	if o.PaymentProof == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: o.PaymentProof.PublicID, Valid: true}
}

func proofURL(o *domain.Order) sql.NullString {
	if o.PaymentProof == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: o.PaymentProof.URL, Valid: true}
}

func proofUploadedAt(o *domain.Order) sql.NullTime {
	if o.PaymentProof == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: o.PaymentProof.UploadedAt, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
