package payments

import (
	"context"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/orders"
	"go.uber.org/zap"
)

type OrderPayments interface {
	RecordPayment(ctx context.Context, upd orders.PaymentUpdate) (*orders.Order, bool, error)
	OpenPaymentIntent(ctx context.Context, who actor.Actor, orderID, provider string) (orders.PaymentIntent, bool, error)
}

type Service struct {
	Verifier *Verifier
	Orders   OrderPayments
	Log      *zap.Logger
}

// CreateIntent opens a DummyPay intent for the order total. Calling it again
// while the intent is still pending returns the same one.
func (s *Service) CreateIntent(ctx context.Context, who actor.Actor, orderID string) (orders.PaymentIntent, bool, error) {
	return s.Orders.OpenPaymentIntent(ctx, who, orderID, ProviderDummyPay)
}

// HandleWebhook verifies and applies one callback. changed is false when the
// callback had already been applied.
func (s *Service) HandleWebhook(ctx context.Context, provider, signature string, body []byte) (o *orders.Order, changed bool, err error) {
	cb, err := s.Verifier.Parse(provider, signature, body)
	if err != nil {
		s.log().Warn("payment webhook rejected", zap.String("provider", provider), zap.Error(err))
		return nil, false, err
	}
	upd := cb.Update()
	o, changed, err = s.Orders.RecordPayment(ctx, upd)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		s.log().Info("payment webhook replayed", zap.String("order_id", upd.OrderID), zap.String("provider", cb.Provider()))
	}
	return o, changed, nil
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
