package orders

import "time"

type Product struct {
	ID         string    `json:"id"`
	SellerID   string    `json:"seller_id"`
	Title      string    `json:"title"`
	Unit       string    `json:"unit"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InventoryRecord is the seller-side ledger of a product: what the owner
// holds and how much of it is reserved by open orders.
type InventoryRecord struct {
	OwnerID   string    `json:"owner_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CartItem struct {
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`
	Qty       int    `json:"qty"`
}

type Cart struct {
	BuyerID   string     `json:"buyer_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	return &cp
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// SellerGroup is the part of a cart one seller fulfils.
type SellerGroup struct {
	SellerID string     `json:"seller_id"`
	Items    []CartItem `json:"items"`
}

// GroupBySeller partitions items by seller, groups in first-appearance order.
func GroupBySeller(items []CartItem) []SellerGroup {
	groups := []SellerGroup{}
	pos := map[string]int{}
	for _, it := range items {
		i, ok := pos[it.SellerID]
		if !ok {
			i = len(groups)
			pos[it.SellerID] = i
			groups = append(groups, SellerGroup{SellerID: it.SellerID})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

const RefProduct = "PRODUCT"

type LineItem struct {
	RefType        string `json:"ref_type"`
	RefID          string `json:"ref_id"`
	Title          string `json:"title"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	Unit           string `json:"unit"`
}

type Payment struct {
	Status            PaymentStatus `json:"status"`
	Provider          string        `json:"provider,omitempty"`
	ProviderPaymentID string        `json:"provider_payment_id,omitempty"`
	IntentID          string        `json:"intent_id,omitempty"`
	AmountCents       int64         `json:"amount_cents,omitempty"`
}

func (p Payment) matches(u PaymentUpdate) bool {
	return p.Status == u.Status && p.Provider == u.Provider && p.ProviderPaymentID == u.ProviderPaymentID
}

type TrackingEvent struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	SellerID        string          `json:"seller_id"`
	Items           []LineItem      `json:"items"`
	SubtotalCents   int64           `json:"subtotal_cents"`
	TaxCents        int64           `json:"tax_cents"`
	ShippingCents   int64           `json:"shipping_fee_cents"`
	TotalCents      int64           `json:"total_cents"`
	ShippingAddress string          `json:"shipping_address"`
	Payment         Payment         `json:"payment"`
	Status          Status          `json:"status"`
	Tracking        []TrackingEvent `json:"tracking"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]LineItem(nil), o.Items...)
	cp.Tracking = append([]TrackingEvent(nil), o.Tracking...)
	return &cp
}

// track moves the order to s and records it in the tracking log.
func (o *Order) track(s Status, at time.Time, note string) {
	o.Status = s
	o.UpdatedAt = at
	o.Tracking = append(o.Tracking, TrackingEvent{Status: s, At: at, Note: note})
}
