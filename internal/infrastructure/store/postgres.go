package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens a connection and bootstraps the schema.
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price       BIGINT NOT NULL CHECK (price >= 0),
		stock       INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		buy_count   INTEGER NOT NULL DEFAULT 0,
		image_url   TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS cart_entries (
		user_email TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity   INTEGER NOT NULL CHECK (quantity >= 1),
		added_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_email, product_id)
	);

	CREATE TABLE IF NOT EXISTS orders (
		id               TEXT PRIMARY KEY,
		order_number     TEXT NOT NULL UNIQUE,
		user_email       TEXT NOT NULL,
		user_name        TEXT NOT NULL DEFAULT '',
		items            JSONB NOT NULL,
		total_amount     BIGINT NOT NULL,
		shipping_address TEXT NOT NULL,
		payment_method   TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		confirmed_at     TIMESTAMPTZ,
		processing_at    TIMESTAMPTZ,
		shipped_at       TIMESTAMPTZ,
		delivered_at     TIMESTAMPTZ,
		cancelled_at     TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_orders_user_email ON orders (user_email, created_at DESC);

	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		name          TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL DEFAULT 'customer',
		is_active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	_, err := db.Exec(schema)
	return err
}
