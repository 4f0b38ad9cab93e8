package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariefcatur/harvest-market/internal/auctions"
	"github.com/ariefcatur/harvest-market/internal/redisx"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus relays accepted bids between API instances over Redis pub/sub.
// Publish sends to bid_events:{auction}; Run feeds every instance's hub.
type RedisBus struct {
	Client *redis.Client
	Hub    *Hub
	Log    *zap.Logger
}

func (b *RedisBus) Publish(ctx context.Context, ev auctions.BidEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.Client.Publish(ctx, fmt.Sprintf(redisx.ChannelBidEvents, ev.AuctionID), data).Err()
}

func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.Client.PSubscribe(ctx, fmt.Sprintf(redisx.ChannelBidEvents, "*"))
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe bid events: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := decodeBidEvent([]byte(msg.Payload))
			if err != nil {
				logOr(b.Log).Warn("bad bid event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			b.Hub.Deliver(ev)
		}
	}
}

const natsSubjectPrefix = "auction.bids."

// NATSBus is the same relay over NATS subjects auction.bids.{auction}.
type NATSBus struct {
	Conn *nats.Conn
	Hub  *Hub
	Log  *zap.Logger
}

func (b *NATSBus) Publish(_ context.Context, ev auctions.BidEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.Conn.Publish(natsSubjectPrefix+ev.AuctionID, data)
}

func (b *NATSBus) Run(ctx context.Context) error {
	sub, err := b.Conn.Subscribe(natsSubjectPrefix+"*", func(m *nats.Msg) {
		ev, err := decodeBidEvent(m.Data)
		if err != nil {
			logOr(b.Log).Warn("bad bid event", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		if want := strings.TrimPrefix(m.Subject, natsSubjectPrefix); want != ev.AuctionID {
			logOr(b.Log).Warn("bid event on wrong subject", zap.String("subject", m.Subject))
			return
		}
		b.Hub.Deliver(ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe bid events: %w", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

func decodeBidEvent(data []byte) (auctions.BidEvent, error) {
	var ev auctions.BidEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	if ev.AuctionID == "" || ev.Seq <= 0 {
		return ev, fmt.Errorf("incomplete bid event")
	}
	return ev, nil
}

func logOr(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

var (
	_ auctions.Broadcaster = (*RedisBus)(nil)
	_ auctions.Broadcaster = (*NATSBus)(nil)
)
