package postgres

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       NUMERIC(12,2) NOT NULL DEFAULT 0,
	has_sizes   BOOLEAN NOT NULL DEFAULT FALSE,
	retired     BOOLEAN NOT NULL DEFAULT FALSE,
	available   INTEGER NOT NULL DEFAULT 0,
	reserved    INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS product_sizes (
	product_id TEXT NOT NULL REFERENCES products(id),
	size       TEXT NOT NULL,
	available  INTEGER NOT NULL DEFAULT 0,
	reserved   INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (product_id, size)
);

CREATE TABLE IF NOT EXISTS cart_lines (
	id               TEXT PRIMARY KEY,
	cart_id          TEXT NOT NULL,
	product_id       TEXT NOT NULL,
	size             TEXT NOT NULL DEFAULT '',
	quantity         INTEGER NOT NULL,
	reservation_held BOOLEAN NOT NULL DEFAULT TRUE,
	added_at         TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (cart_id, product_id, size)
);

CREATE TABLE IF NOT EXISTS orders (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	product_id         TEXT NOT NULL,
	size               TEXT NOT NULL DEFAULT '',
	product_name       TEXT NOT NULL,
	quantity           INTEGER NOT NULL,
	unit_price         NUMERIC(12,2) NOT NULL,
	total_price        NUMERIC(12,2) NOT NULL,
	status             TEXT NOT NULL,
	payment_status     TEXT NOT NULL,
	payment_hash       TEXT NOT NULL,
	payment_key        TEXT NOT NULL,
	payment_method     TEXT NOT NULL DEFAULT '',
	shipping_address   TEXT NOT NULL DEFAULT '',
	customer_notes     TEXT NOT NULL DEFAULT '',
	admin_notes        TEXT NOT NULL DEFAULT '',
	paid_at            TIMESTAMPTZ,
	payment_expires_at TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_payment_batch ON orders (payment_hash, payment_key);
CREATE INDEX IF NOT EXISTS idx_orders_expiry ON orders (status, payment_expires_at);

CREATE TABLE IF NOT EXISTS payments (
	id              TEXT PRIMARY KEY,
	order_reference TEXT NOT NULL,
	payment_key     TEXT NOT NULL,
	order_ids       TEXT[] NOT NULL DEFAULT '{}',
	user_id         TEXT NOT NULL,
	gateway_name    TEXT NOT NULL,
	method          TEXT NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	fee_amount      NUMERIC(12,2) NOT NULL,
	net_amount      NUMERIC(12,2) NOT NULL,
	currency        TEXT NOT NULL,
	status          TEXT NOT NULL,
	transaction_id  TEXT NOT NULL DEFAULT '',
	gateway_ref     TEXT NOT NULL DEFAULT '',
	failure_reason  TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_payments_reference ON payments (order_reference, created_at);

CREATE TABLE IF NOT EXISTS payment_attempts (
	payment_id    TEXT NOT NULL REFERENCES payments(id),
	number        INTEGER NOT NULL,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	response      JSONB NOT NULL DEFAULT '{}',
	attempted_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (payment_id, number)
);

CREATE TABLE IF NOT EXISTS refunds (
	id           TEXT PRIMARY KEY,
	payment_id   TEXT NOT NULL REFERENCES payments(id),
	amount       NUMERIC(12,2) NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	gateway_ref  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_refunds_payment ON refunds (payment_id);

CREATE TABLE IF NOT EXISTS product_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	product_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	price      NUMERIC(12,2) NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_snapshots_product ON product_snapshots (product_id, id);
`

// EnsureSchema creates all tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
