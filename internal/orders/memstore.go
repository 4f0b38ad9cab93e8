package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ariefcatur/harvest-market/internal/keylock"
)

type invKey struct{ owner, product string }

// MemStore is an in-process Store. Each transaction takes per-row locks
// (cart, order, product) and buffers its writes; they become visible only
// when fn succeeds.
type MemStore struct {
	mu        sync.Mutex
	products  map[string]*Product
	inventory map[invKey]*InventoryRecord
	carts     map[string]*Cart
	orders    map[string]*Order

	rows keylock.Map
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:  map[string]*Product{},
		inventory: map[invKey]*InventoryRecord{},
		carts:     map[string]*Cart{},
		orders:    map[string]*Order{},
	}
}

func (m *MemStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{
		ctx:       ctx,
		s:         m,
		held:      map[string]func(){},
		products:  map[string]*Product{},
		inventory: map[invKey]*InventoryRecord{},
		carts:     map[string]*Cart{},
		orders:    map[string]*Order{},
	}
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range tx.products {
		m.products[id] = p
	}
	for k, r := range tx.inventory {
		m.inventory[k] = r
	}
	for id, c := range tx.carts {
		m.carts[id] = c
	}
	for id, o := range tx.orders {
		m.orders[id] = o
	}
	return nil
}

type memTx struct {
	ctx  context.Context
	s    *MemStore
	held map[string]func()

	products  map[string]*Product
	inventory map[invKey]*InventoryRecord
	carts     map[string]*Cart
	orders    map[string]*Order
}

// lock takes the row lock for the rest of the transaction, waiting at most
// as long as the transaction's context allows.
func (t *memTx) lock(key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	unlock, err := t.s.rows.LockContext(t.ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	t.held[key] = unlock
	return nil
}

func (t *memTx) release() {
	for _, unlock := range t.held {
		unlock()
	}
}

func (t *memTx) Cart(_ context.Context, buyerID string) (*Cart, error) {
	if err := t.lock("cart:" + buyerID); err != nil {
		return nil, err
	}
	if c, ok := t.carts[buyerID]; ok {
		return c.Clone(), nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if c, ok := t.s.carts[buyerID]; ok {
		return c.Clone(), nil
	}
	return &Cart{BuyerID: buyerID}, nil
}

func (t *memTx) SaveCart(_ context.Context, c *Cart) error {
	if err := t.lock("cart:" + c.BuyerID); err != nil {
		return err
	}
	t.carts[c.BuyerID] = c.Clone()
	return nil
}

func (t *memTx) product(id string) (*Product, bool) {
	if p, ok := t.products[id]; ok {
		cp := *p
		return &cp, true
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	p, ok := t.s.products[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (t *memTx) Product(_ context.Context, id string) (*Product, error) {
	p, ok := t.product(id)
	if !ok {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]*Product, error) {
	out := make(map[string]*Product, len(ids))
	for _, id := range sortedUnique(ids) {
		if err := t.lock("product:" + id); err != nil {
			return nil, err
		}
		if p, ok := t.product(id); ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) ListProducts(_ context.Context, sellerID string) ([]*Product, error) {
	t.s.mu.Lock()
	merged := make(map[string]*Product, len(t.s.products))
	for id, p := range t.s.products {
		merged[id] = p
	}
	t.s.mu.Unlock()
	for id, p := range t.products {
		merged[id] = p
	}

	out := make([]*Product, 0, len(merged))
	for _, p := range merged {
		if sellerID != "" && p.SellerID != sellerID {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sortProducts(out)
	return out, nil
}

func (t *memTx) InsertProduct(_ context.Context, p *Product) error {
	if err := t.lock("product:" + p.ID); err != nil {
		return err
	}
	if _, ok := t.product(p.ID); ok {
		return fmt.Errorf("product %s already exists", p.ID)
	}
	cp := *p
	t.products[p.ID] = &cp
	return nil
}

func (t *memTx) SaveProduct(_ context.Context, p *Product) error {
	if err := t.lock("product:" + p.ID); err != nil {
		return err
	}
	cp := *p
	t.products[p.ID] = &cp
	return nil
}

func (t *memTx) record(k invKey) *InventoryRecord {
	if r, ok := t.inventory[k]; ok {
		return r
	}
	t.s.mu.Lock()
	r, ok := t.s.inventory[k]
	t.s.mu.Unlock()
	cp := InventoryRecord{OwnerID: k.owner, ProductID: k.product}
	if ok {
		cp = *r
	}
	t.inventory[k] = &cp
	return &cp
}

// Inventory rows are only touched while the product row is held.
func (t *memTx) AddReserved(_ context.Context, ownerID, productID string, delta int) error {
	r := t.record(invKey{ownerID, productID})
	r.Reserved += delta
	return nil
}

func (t *memTx) SetInventoryQuantity(_ context.Context, ownerID, productID string, qty int) error {
	r := t.record(invKey{ownerID, productID})
	r.Quantity = qty
	return nil
}

func (t *memTx) Inventory(_ context.Context, ownerID string) ([]InventoryRecord, error) {
	t.s.mu.Lock()
	merged := map[invKey]InventoryRecord{}
	for k, r := range t.s.inventory {
		if k.owner == ownerID {
			merged[k] = *r
		}
	}
	t.s.mu.Unlock()
	for k, r := range t.inventory {
		if k.owner == ownerID {
			merged[k] = *r
		}
	}
	out := make([]InventoryRecord, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, o *Order) error {
	if err := t.lock("order:" + o.ID); err != nil {
		return err
	}
	t.orders[o.ID] = o.Clone()
	return nil
}

func (t *memTx) Order(_ context.Context, id string, forUpdate bool) (*Order, error) {
	if forUpdate {
		if err := t.lock("order:" + id); err != nil {
			return nil, err
		}
	}
	if o, ok := t.orders[id]; ok {
		return o.Clone(), nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	o, ok := t.s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

func (t *memTx) SaveOrder(_ context.Context, o *Order) error {
	if err := t.lock("order:" + o.ID); err != nil {
		return err
	}
	t.orders[o.ID] = o.Clone()
	return nil
}

func sortedUnique(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}

func sortProducts(ps []*Product) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

var _ Store = (*MemStore)(nil)
