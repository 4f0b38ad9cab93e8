package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore runs each settlement in one Postgres transaction. Product rows are
// locked with SELECT ... FOR UPDATE, so concurrent reservations of the same
// product serialize across API instances.
type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

const productCols = `id, seller_id, title, unit, price_cents, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.SellerID, &p.Title, &p.Unit, &p.PriceCents, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) Cart(ctx context.Context, buyerID string) (*Cart, error) {
	// keranjang dibuat lazily; baris carts jadi target lock
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO carts(buyer_id, updated_at) VALUES ($1, now())
		ON CONFLICT (buyer_id) DO NOTHING`, buyerID); err != nil {
		return nil, fmt.Errorf("ensure cart: %w", err)
	}
	c := &Cart{BuyerID: buyerID}
	if err := t.tx.QueryRow(ctx, `SELECT updated_at FROM carts WHERE buyer_id=$1 FOR UPDATE`, buyerID).Scan(&c.UpdatedAt); err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}

	rows, err := t.tx.Query(ctx, `
		SELECT product_id, seller_id, qty FROM cart_items
		WHERE buyer_id=$1 ORDER BY position`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ProductID, &it.SellerID, &it.Qty); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

func (t *pgTx) SaveCart(ctx context.Context, c *Cart) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE buyer_id=$1`, c.BuyerID); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}
	for i, it := range c.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO cart_items(buyer_id, product_id, seller_id, qty, position)
			VALUES ($1,$2,$3,$4,$5)`, c.BuyerID, it.ProductID, it.SellerID, it.Qty, i); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}
	_, err := t.tx.Exec(ctx, `UPDATE carts SET updated_at=$2 WHERE buyer_id=$1`, c.BuyerID, c.UpdatedAt)
	return err
}

func (t *pgTx) Product(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))
	// satu per satu, urut id -> urutan lock konsisten antar transaksi
	for _, id := range sortedUnique(ids) {
		p, err := scanProduct(t.tx.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

func (t *pgTx) ListProducts(ctx context.Context, sellerID string) ([]*Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+productCols+` FROM products
		WHERE ($1 = '' OR seller_id = $1)
		ORDER BY created_at, id`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var out []*Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) InsertProduct(ctx context.Context, p *Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(`+productCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.SellerID, p.Title, p.Unit, p.PriceCents, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (t *pgTx) SaveProduct(ctx context.Context, p *Product) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET title=$2, unit=$3, price_cents=$4, stock=$5, active=$6, updated_at=$7
		WHERE id=$1`, p.ID, p.Title, p.Unit, p.PriceCents, p.Stock, p.Active, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

func (t *pgTx) AddReserved(ctx context.Context, ownerID, productID string, delta int) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory(owner_id, product_id, quantity, reserved, updated_at)
		VALUES ($1,$2,0,$3,now())
		ON CONFLICT (owner_id, product_id)
		DO UPDATE SET reserved = inventory.reserved + EXCLUDED.reserved, updated_at = now()`,
		ownerID, productID, delta)
	if err != nil {
		return fmt.Errorf("adjust reserved: %w", err)
	}
	return nil
}

func (t *pgTx) SetInventoryQuantity(ctx context.Context, ownerID, productID string, qty int) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory(owner_id, product_id, quantity, reserved, updated_at)
		VALUES ($1,$2,$3,0,now())
		ON CONFLICT (owner_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`,
		ownerID, productID, qty)
	if err != nil {
		return fmt.Errorf("set inventory: %w", err)
	}
	return nil
}

func (t *pgTx) Inventory(ctx context.Context, ownerID string) ([]InventoryRecord, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT owner_id, product_id, quantity, reserved, updated_at
		FROM inventory WHERE owner_id=$1 ORDER BY product_id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("select inventory: %w", err)
	}
	defer rows.Close()

	var out []InventoryRecord
	for rows.Next() {
		var r InventoryRecord
		if err := rows.Scan(&r.OwnerID, &r.ProductID, &r.Quantity, &r.Reserved, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const orderCols = `id, buyer_id, seller_id, subtotal_cents, tax_cents, shipping_fee_cents, total_cents,
	shipping_address, payment_status, payment_provider, provider_payment_id, payment_intent_id,
	payment_amount_cents, status, created_at, updated_at`

func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		o.ID, o.BuyerID, o.SellerID, o.SubtotalCents, o.TaxCents, o.ShippingCents, o.TotalCents,
		o.ShippingAddress, string(o.Payment.Status), o.Payment.Provider, o.Payment.ProviderPaymentID,
		o.Payment.IntentID, o.Payment.AmountCents, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	for i, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, position, ref_type, ref_id, title, unit_price_cents, qty, unit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.ID, i, it.RefType, it.RefID, it.Title, it.UnitPriceCents, it.Qty, it.Unit); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return t.insertTracking(ctx, o)
}

func (t *pgTx) insertTracking(ctx context.Context, o *Order) error {
	for i, ev := range o.Tracking {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_tracking(order_id, seq, status, at, note)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (order_id, seq) DO NOTHING`,
			o.ID, i+1, string(ev.Status), ev.At, ev.Note); err != nil {
			return fmt.Errorf("insert tracking: %w", err)
		}
	}
	return nil
}

func (t *pgTx) Order(ctx context.Context, id string, forUpdate bool) (*Order, error) {
	q := `SELECT ` + orderCols + ` FROM orders WHERE id=$1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	var o Order
	var payStatus, status string
	err := t.tx.QueryRow(ctx, q, id).Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.SubtotalCents, &o.TaxCents,
		&o.ShippingCents, &o.TotalCents, &o.ShippingAddress, &payStatus, &o.Payment.Provider,
		&o.Payment.ProviderPaymentID, &o.Payment.IntentID, &o.Payment.AmountCents, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select order: %w", err)
	}
	o.Payment.Status, o.Status = PaymentStatus(payStatus), Status(status)

	rows, err := t.tx.Query(ctx, `
		SELECT ref_type, ref_id, title, unit_price_cents, qty, unit
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.RefType, &it.RefID, &it.Title, &it.UnitPriceCents, &it.Qty, &it.Unit); err != nil {
			rows.Close()
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = t.tx.Query(ctx, `
		SELECT status, at, note FROM order_tracking
		WHERE order_id=$1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("select tracking: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev TrackingEvent
		var s string
		if err := rows.Scan(&s, &ev.At, &ev.Note); err != nil {
			return nil, err
		}
		ev.Status = Status(s)
		o.Tracking = append(o.Tracking, ev)
	}
	return &o, rows.Err()
}

func (t *pgTx) SaveOrder(ctx context.Context, o *Order) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE orders SET status=$2, payment_status=$3, payment_provider=$4,
		       provider_payment_id=$5, payment_intent_id=$6, payment_amount_cents=$7, updated_at=$8
		WHERE id=$1`,
		o.ID, string(o.Status), string(o.Payment.Status), o.Payment.Provider, o.Payment.ProviderPaymentID,
		o.Payment.IntentID, o.Payment.AmountCents, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return t.insertTracking(ctx, o)
}

var _ Store = (*PGStore)(nil)
