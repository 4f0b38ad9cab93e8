package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderCancelled      = "OrderCancelled"
	EventOrderStatusChanged  = "OrderStatusChanged"
	EventOrderPaymentUpdated = "OrderPaymentUpdated"
	EventBidPlaced           = "BidPlaced"
	EventAuctionClosed       = "AuctionClosed"
)

const (
	TopicOrderCreated        = "order.created"
	TopicOrderCancelled      = "order.cancelled"
	TopicOrderStatusChanged  = "order.status.changed"
	TopicOrderPaymentUpdated = "order.payment.updated"
	TopicBidPlaced           = "auction.bid.placed"
	TopicAuctionClosed       = "auction.closed"
)

// NotifiableTopics are consumed by the notifier worker.
var NotifiableTopics = []string{
	TopicOrderCreated,
	TopicOrderCancelled,
	TopicOrderStatusChanged,
	TopicOrderPaymentUpdated,
	TopicAuctionClosed,
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id / auction_id
	Payload       json.RawMessage `json:"payload"`
}

// Sink receives domain events after the state change is committed.
// key is the partition key; all events of one entity share it so they stay ordered.
type Sink interface {
	Emit(ctx context.Context, topic, eventType, key string, payload any) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, string, any) error { return nil }

// ---- payloads ----

type OrderLine struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	BuyerID    string      `json:"buyer_id"`
	SellerID   string      `json:"seller_id"`
	Items      []OrderLine `json:"items"`
	TotalCents int64       `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID  string      `json:"order_id"`
	BuyerID  string      `json:"buyer_id"`
	SellerID string      `json:"seller_id"`
	ActorID  string      `json:"actor_id"`
	Restored []OrderLine `json:"restored"`
}

type OrderStatusChangedPayload struct {
	OrderID  string `json:"order_id"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Note     string `json:"note,omitempty"`
}

type OrderPaymentUpdatedPayload struct {
	OrderID           string `json:"order_id"`
	BuyerID           string `json:"buyer_id"`
	SellerID          string `json:"seller_id"`
	Status            string `json:"status"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
}

type BidPlacedPayload struct {
	AuctionID string    `json:"auction_id"`
	Seq       int       `json:"seq"`
	BuyerID   string    `json:"buyer_id"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

type AuctionClosedPayload struct {
	AuctionID string `json:"auction_id"`
	CropID    string `json:"crop_id"`
	OwnerID   string `json:"owner_id"`
	WinnerID  string `json:"winner_id,omitempty"` // kosong jika tidak ada bid
	Amount    int64  `json:"amount,omitempty"`
	Bids      int    `json:"bids"`
}
