package orders

import (
	"context"
	"time"

	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service owns carts, the product catalog and order settlement. Every
// operation is one Store transaction; events are emitted after commit.
type Service struct {
	Store            Store
	Events           events.Sink
	Log              *zap.Logger
	Now              func() time.Time
	TaxRate          decimal.Decimal
	ShippingFeeCents int64
	// ReserveTimeout bounds how long a settlement may wait on row locks.
	ReserveTimeout time.Duration
}

// NewService returns a Service charging DefaultTaxRate and no shipping fee.
func NewService(store Store, sink events.Sink, log *zap.Logger) *Service {
	return &Service{
		Store:          store,
		Events:         sink,
		Log:            log,
		TaxRate:        DefaultTaxRate,
		ReserveTimeout: 5 * time.Second,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) emit(ctx context.Context, topic, eventType, key string, payload any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Emit(ctx, topic, eventType, key, payload); err != nil {
		s.log().Warn("emit event failed", zap.String("topic", topic), zap.String("key", key), zap.Error(err))
	}
}

func lines(items []LineItem) []events.OrderLine {
	out := make([]events.OrderLine, 0, len(items))
	for _, it := range items {
		out = append(out, events.OrderLine{ProductID: it.RefID, Title: it.Title, Qty: it.Qty})
	}
	return out
}
