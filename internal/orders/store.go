package orders

import "context"

// Store runs fn inside one transaction. Everything fn writes through tx
// commits together when fn returns nil and is discarded otherwise.
//
// Row locks are taken in a fixed order to stay deadlock free: the cart or
// order first, then products in ascending id order (LockProducts sorts).
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// Cart returns the buyer's cart locked for update, or an empty one.
	Cart(ctx context.Context, buyerID string) (*Cart, error)
	SaveCart(ctx context.Context, c *Cart) error

	// Product reads without locking.
	Product(ctx context.Context, id string) (*Product, error)
	// LockProducts locks and returns the given products. Missing ids are absent from the map.
	LockProducts(ctx context.Context, ids []string) (map[string]*Product, error)
	ListProducts(ctx context.Context, sellerID string) ([]*Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	SaveProduct(ctx context.Context, p *Product) error

	// AddReserved shifts the reserved counter of (owner, product), creating the record if needed.
	AddReserved(ctx context.Context, ownerID, productID string, delta int) error
	SetInventoryQuantity(ctx context.Context, ownerID, productID string, qty int) error
	Inventory(ctx context.Context, ownerID string) ([]InventoryRecord, error)

	InsertOrder(ctx context.Context, o *Order) error
	// Order returns the order; with forUpdate it is locked until the tx ends.
	Order(ctx context.Context, id string, forUpdate bool) (*Order, error)
	// SaveOrder persists status, payment and any tracking entries not yet stored.
	SaveOrder(ctx context.Context, o *Order) error
}
