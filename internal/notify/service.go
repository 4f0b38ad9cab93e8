package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/harvest-market/internal/events"
	kafkax "github.com/ariefcatur/harvest-market/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service turns domain events from the log into notifications. Each event is
// handled at most once per dedup window; a failed delivery releases the
// claim so the redelivered message is tried again.
type Service struct {
	Notifier Notifier
	Dedup    Dedup
	Log      *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// HandleMessage is the kafka consumer handler.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah sukses; commit saja
		s.log().Warn("drop undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	return s.HandleEvent(ctx, env)
}

func (s *Service) HandleEvent(ctx context.Context, env events.Envelope) error {
	if env.EventID == "" {
		return errors.New("event without id")
	}
	ns, err := render(env)
	if err != nil {
		s.log().Warn("drop undecodable payload", zap.String("event_type", env.EventType), zap.Error(err))
		return nil
	}
	if len(ns) == 0 {
		return nil
	}

	if s.Dedup != nil {
		first, err := s.Dedup.Claim(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup claim: %w", err)
		}
		if !first {
			s.log().Debug("duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	for _, n := range ns {
		if err := s.Notifier.Notify(ctx, n); err != nil {
			if s.Dedup != nil {
				if rerr := s.Dedup.Release(ctx, env.EventID); rerr != nil {
					s.log().Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(rerr))
				}
			}
			return fmt.Errorf("notify %s: %w", n.To, err)
		}
	}
	return nil
}

func money(cents int64) string { return decimal.New(cents, -2).StringFixed(2) }

func render(env events.Envelope) ([]Notification, error) {
	mk := func(to, subject, body string) Notification {
		return Notification{To: to, Subject: subject, Body: body, EventID: env.EventID}
	}
	switch env.EventType {
	case events.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		return []Notification{
			mk(p.BuyerID, "Order placed", fmt.Sprintf("Order %s placed, total %s.", p.OrderID, money(p.TotalCents))),
			mk(p.SellerID, "New order", fmt.Sprintf("Order %s: %d item(s), total %s.", p.OrderID, len(p.Items), money(p.TotalCents))),
		}, nil
	case events.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[events.OrderCancelledPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf("Order %s was cancelled.", p.OrderID)
		return []Notification{mk(p.BuyerID, "Order cancelled", body), mk(p.SellerID, "Order cancelled", body)}, nil
	case events.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[events.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf("Order %s is now %s.", p.OrderID, p.To)
		if p.Note != "" {
			body += " " + p.Note
		}
		return []Notification{mk(p.BuyerID, "Order update", body)}, nil
	case events.EventOrderPaymentUpdated:
		p, err := kafkax.UnwrapPayload[events.OrderPaymentUpdatedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		body := fmt.Sprintf("Payment for order %s: %s.", p.OrderID, p.Status)
		return []Notification{mk(p.BuyerID, "Payment update", body), mk(p.SellerID, "Payment update", body)}, nil
	case events.EventAuctionClosed:
		p, err := kafkax.UnwrapPayload[events.AuctionClosedPayload](env.Payload)
		if err != nil {
			return nil, err
		}
		if p.WinnerID == "" {
			return []Notification{mk(p.OwnerID, "Auction closed", fmt.Sprintf("Auction %s closed without bids.", p.AuctionID))}, nil
		}
		return []Notification{
			mk(p.OwnerID, "Auction closed", fmt.Sprintf("Auction %s sold for %s after %d bid(s).", p.AuctionID, money(p.Amount), p.Bids)),
			mk(p.WinnerID, "You won", fmt.Sprintf("You won auction %s at %s.", p.AuctionID, money(p.Amount))),
		}, nil
	}
	return nil, nil
}
