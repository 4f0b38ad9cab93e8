package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is idempotent; Migrate runs it on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id            TEXT PRIMARY KEY,
	crop_id       TEXT NOT NULL,
	owner_id      TEXT NOT NULL,
	start_price   BIGINT NOT NULL CHECK (start_price > 0),
	min_increment BIGINT NOT NULL CHECK (min_increment > 0),
	start_at      TIMESTAMPTZ NOT NULL,
	end_at        TIMESTAMPTZ NOT NULL,
	status        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS auctions_status_idx ON auctions(status, start_at);

CREATE TABLE IF NOT EXISTS auction_bids (
	auction_id TEXT NOT NULL REFERENCES auctions(id),
	seq        INT NOT NULL,
	buyer_id   TEXT NOT NULL,
	amount     BIGINT NOT NULL,
	placed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (auction_id, seq)
);

CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	seller_id   TEXT NOT NULL,
	title       TEXT NOT NULL,
	unit        TEXT NOT NULL DEFAULT 'kg',
	price_cents BIGINT NOT NULL CHECK (price_cents > 0),
	stock       INT NOT NULL CHECK (stock >= 0),
	active      BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS products_seller_idx ON products(seller_id);

CREATE TABLE IF NOT EXISTS inventory (
	owner_id   TEXT NOT NULL,
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity   INT NOT NULL DEFAULT 0,
	reserved   INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (owner_id, product_id)
);

CREATE TABLE IF NOT EXISTS carts (
	buyer_id   TEXT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cart_items (
	buyer_id   TEXT NOT NULL REFERENCES carts(buyer_id),
	product_id TEXT NOT NULL REFERENCES products(id),
	seller_id  TEXT NOT NULL,
	qty        INT NOT NULL CHECK (qty > 0),
	position   INT NOT NULL,
	PRIMARY KEY (buyer_id, product_id)
);

CREATE TABLE IF NOT EXISTS orders (
	id                   TEXT PRIMARY KEY,
	buyer_id             TEXT NOT NULL,
	seller_id            TEXT NOT NULL,
	subtotal_cents       BIGINT NOT NULL,
	tax_cents            BIGINT NOT NULL,
	shipping_fee_cents   BIGINT NOT NULL,
	total_cents          BIGINT NOT NULL,
	shipping_address     TEXT NOT NULL,
	payment_status       TEXT NOT NULL,
	payment_provider     TEXT NOT NULL DEFAULT '',
	provider_payment_id  TEXT NOT NULL DEFAULT '',
	payment_intent_id    TEXT NOT NULL DEFAULT '',
	payment_amount_cents BIGINT NOT NULL DEFAULT 0,
	status               TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_buyer_idx ON orders(buyer_id);
ALTER TABLE orders ADD COLUMN IF NOT EXISTS payment_intent_id TEXT NOT NULL DEFAULT '';
ALTER TABLE orders ADD COLUMN IF NOT EXISTS payment_amount_cents BIGINT NOT NULL DEFAULT 0;

CREATE TABLE IF NOT EXISTS order_items (
	order_id         TEXT NOT NULL REFERENCES orders(id),
	position         INT NOT NULL,
	ref_type         TEXT NOT NULL,
	ref_id           TEXT NOT NULL,
	title            TEXT NOT NULL,
	unit_price_cents BIGINT NOT NULL,
	qty              INT NOT NULL,
	unit             TEXT NOT NULL,
	PRIMARY KEY (order_id, position)
);

CREATE TABLE IF NOT EXISTS order_tracking (
	order_id TEXT NOT NULL REFERENCES orders(id),
	seq      INT NOT NULL,
	status   TEXT NOT NULL,
	at       TIMESTAMPTZ NOT NULL,
	note     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (order_id, seq)
);
`

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
