package realtime

import (
	"context"
	"slices"
	"sync"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"go.uber.org/zap"
)

const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventBid         = "bid"
	EventJoined      = "joined"
	EventNewBid      = "newBid"
	EventBidAccepted = "bidAccepted"
	EventError       = "error"
)

// Message is the frame exchanged with clients in both directions.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Subscriber is one observer connection. Send must not block; it returns
// false when the subscriber cannot keep up.
type Subscriber interface {
	ID() string
	Send(m Message) bool
	Close()
}

// maxPending is how many out-of-order events an auction may hold back while
// waiting for a missing seq.
const maxPending = 32

// Hub fans accepted bids out to the subscribers of each auction in seq order.
// Events not newer than the last delivered seq are dropped; events that skip
// ahead wait until the gap is filled, or until maxPending of them pile up.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[Subscriber]struct{}
	last    map[string]int
	pending map[string]map[int]auctions.BidEvent
	log     *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		subs:    map[string]map[Subscriber]struct{}{},
		last:    map[string]int{},
		pending: map[string]map[int]auctions.BidEvent{},
		log:     log,
	}
}

func (h *Hub) Subscribe(auctionID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[auctionID]
	if !ok {
		set = map[Subscriber]struct{}{}
		h.subs[auctionID] = set
	}
	set[s] = struct{}{}
	h.log.Debug("subscribed", zap.String("client_id", s.ID()), zap.String("auction_id", auctionID))
}

func (h *Hub) Unsubscribe(auctionID string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(auctionID, s)
}

func (h *Hub) unsubscribeLocked(auctionID string, s Subscriber) {
	set, ok := h.subs[auctionID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, auctionID)
		delete(h.last, auctionID)
		delete(h.pending, auctionID)
	}
}

// Drop removes s from every auction it watches.
func (h *Hub) Drop(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		if _, ok := set[s]; ok {
			h.unsubscribeLocked(id, s)
		}
	}
}

// Publish makes the hub itself a Broadcaster for single-instance deployments.
func (h *Hub) Publish(_ context.Context, ev auctions.BidEvent) error {
	h.Deliver(ev)
	return nil
}

// Deliver sends ev, and any held-back events it unblocks, to the auction's
// current subscribers. It returns how many sends succeeded.
func (h *Hub) Deliver(ev auctions.BidEvent) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := ev.AuctionID
	if len(h.subs[id]) == 0 {
		return 0
	}
	last := h.last[id]
	if ev.Seq <= last {
		return 0
	}
	// last == 0: event pertama sejak ada subscriber, jadi baseline
	if last != 0 && ev.Seq != last+1 {
		return h.holdLocked(ev)
	}
	n := h.sendLocked(ev)
	for {
		next, ok := h.pending[id][h.last[id]+1]
		if !ok || len(h.subs[id]) == 0 {
			break
		}
		delete(h.pending[id], next.Seq)
		n += h.sendLocked(next)
	}
	return n
}

func (h *Hub) holdLocked(ev auctions.BidEvent) int {
	id := ev.AuctionID
	held, ok := h.pending[id]
	if !ok {
		held = map[int]auctions.BidEvent{}
		h.pending[id] = held
	}
	held[ev.Seq] = ev
	if len(held) <= maxPending {
		return 0
	}

	seqs := make([]int, 0, len(held))
	for seq := range held {
		seqs = append(seqs, seq)
	}
	slices.Sort(seqs)
	h.log.Warn("bid seq gap, flushing held events",
		zap.String("auction_id", id), zap.Int("missing_seq", h.last[id]+1), zap.Int("held", len(seqs)))
	delete(h.pending, id)
	n := 0
	for _, seq := range seqs {
		if len(h.subs[id]) == 0 {
			break
		}
		n += h.sendLocked(held[seq])
	}
	return n
}

func (h *Hub) sendLocked(ev auctions.BidEvent) int {
	h.last[ev.AuctionID] = ev.Seq
	msg := Message{Event: EventNewBid, Data: ev}
	n := 0
	var slow []Subscriber
	for s := range h.subs[ev.AuctionID] {
		if s.Send(msg) {
			n++
			continue
		}
		slow = append(slow, s)
	}
	for _, s := range slow {
		// client lambat -> putuskan supaya tidak menahan yang lain
		for id, set := range h.subs {
			if _, ok := set[s]; ok {
				h.unsubscribeLocked(id, s)
			}
		}
		s.Close()
		h.log.Warn("dropped slow subscriber", zap.String("client_id", s.ID()))
	}
	return n
}

// Reject tells a single subscriber why its request failed.
func (h *Hub) Reject(s Subscriber, reason string) {
	if !s.Send(Message{Event: EventError, Data: reason}) {
		h.log.Warn("could not deliver rejection", zap.String("client_id", s.ID()), zap.String("reason", reason))
	}
}

func (h *Hub) Count(auctionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[auctionID])
}

var _ auctions.Broadcaster = (*Hub)(nil)
