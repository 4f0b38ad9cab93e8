package redisx

import "time"

const (
	// Idempotency create order: idem:order:create:{buyer_id}:{key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{id} (id = topic:partition:offset)
	KeyDedup = "dedup:%s:%s"

	// Pub/sub bid per auction: bid_events:{auction_id}
	ChannelBidEvents = "bid_events:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
