package postgres

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and applies the schema.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id              TEXT PRIMARY KEY,
			vendor_id       TEXT NOT NULL,
			name            TEXT NOT NULL,
			price           DOUBLE PRECISION NOT NULL,
			stock           INTEGER NOT NULL DEFAULT 0,
			track_inventory BOOLEAN NOT NULL DEFAULT TRUE,
			total_sales     INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL,
			shipping_cost   DOUBLE PRECISION NOT NULL DEFAULT 0,
			free_shipping   BOOLEAN NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id                   TEXT PRIMARY KEY,
			order_number         TEXT NOT NULL,
			customer_id          TEXT NOT NULL,
			subtotal             DOUBLE PRECISION NOT NULL,
			shipping_cost        DOUBLE PRECISION NOT NULL,
			tax                  DOUBLE PRECISION NOT NULL,
			discount             DOUBLE PRECISION NOT NULL DEFAULT 0,
			total                DOUBLE PRECISION NOT NULL,
			status               TEXT NOT NULL,
			payment_status       TEXT NOT NULL,
			payment_method       TEXT NOT NULL,
			payment_intent_id    TEXT NOT NULL DEFAULT '',
			proof_public_id      TEXT,
			proof_url            TEXT,
			proof_uploaded_at    TIMESTAMPTZ,
			payment_confirmed_by TEXT NOT NULL DEFAULT '',
			payment_confirmed_at TIMESTAMPTZ,
			cancellation_reason  TEXT NOT NULL DEFAULT '',
			refund_amount        DOUBLE PRECISION NOT NULL DEFAULT 0,
			refunded_at          TIMESTAMPTZ,
			current_latitude     DOUBLE PRECISION,
			current_longitude    DOUBLE PRECISION,
			current_address      TEXT,
			tracking_number      TEXT NOT NULL DEFAULT '',
			carrier              TEXT NOT NULL DEFAULT '',
			estimated_delivery   TIMESTAMPTZ,
			shipping_address     TEXT NOT NULL DEFAULT '',
			billing_address      TEXT NOT NULL DEFAULT '',
			notes                TEXT NOT NULL DEFAULT '',
			stock_committed_at   TIMESTAMPTZ,
			paid_at              TIMESTAMPTZ,
			confirmed_at         TIMESTAMPTZ,
			shipped_at           TIMESTAMPTZ,
			delivered_at         TIMESTAMPTZ,
			cancelled_at         TIMESTAMPTZ,
			created_at           TIMESTAMPTZ NOT NULL,
			updated_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			order_id   TEXT NOT NULL REFERENCES orders(id),
			position   INTEGER NOT NULL,
			product_id TEXT NOT NULL,
			vendor_id  TEXT NOT NULL,
			name       TEXT NOT NULL,
			price      DOUBLE PRECISION NOT NULL,
			quantity   INTEGER NOT NULL,
			variant    TEXT NOT NULL DEFAULT '',
			subtotal   DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (order_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS tracking_events (
			id          BIGSERIAL PRIMARY KEY,
			order_id    TEXT NOT NULL REFERENCES orders(id),
			status      TEXT NOT NULL,
			latitude    DOUBLE PRECISION NOT NULL,
			longitude   DOUBLE PRECISION NOT NULL,
			address     TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id             TEXT PRIMARY KEY,
			order_id       TEXT NOT NULL REFERENCES orders(id),
			vendor_id      TEXT NOT NULL,
			customer_id    TEXT NOT NULL,
			amount         DOUBLE PRECISION NOT NULL,
			platform_fee   DOUBLE PRECISION NOT NULL,
			vendor_amount  DOUBLE PRECISION NOT NULL,
			payment_method TEXT NOT NULL,
			status         TEXT NOT NULL,
			completed_at   TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			UNIQUE (order_id, vendor_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_vendor ON order_items(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_events_order ON tracking_events(order_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
