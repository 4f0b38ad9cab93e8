package orders

import (
	"context"
	"strings"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentUpdate is a verified provider outcome for one order.
type PaymentUpdate struct {
	OrderID           string
	Status            PaymentStatus
	Provider          string
	ProviderPaymentID string
}

var (
	ErrOrderCancelled = apperr.InvalidState("Order cancelled")
	ErrPaymentSettled = apperr.InvalidState("Payment already settled")
)

// RecordPayment applies a provider callback to the order's payment record.
// Replaying the same callback changes nothing and reports changed=false.
func (s *Service) RecordPayment(ctx context.Context, upd PaymentUpdate) (o *Order, changed bool, err error) {
	if upd.Status != PaymentPaid && upd.Status != PaymentFailed {
		return nil, false, apperr.Validation("payment status must be PAID or FAILED")
	}
	if upd.OrderID == "" {
		return nil, false, apperr.Validation("order id is required")
	}

	err = s.Store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Order(ctx, upd.OrderID, true)
		if err != nil {
			return err
		}
		o = cur
		if cur.Payment.matches(upd) {
			return nil
		}
		if cur.Payment.Status == PaymentPaid {
			return ErrPaymentSettled
		}
		if upd.Status == PaymentPaid && cur.Status == StatusCancelled {
			return ErrOrderCancelled
		}
		cur.Payment.Status = upd.Status
		cur.Payment.Provider = upd.Provider
		cur.Payment.ProviderPaymentID = upd.ProviderPaymentID
		cur.UpdatedAt = s.now()
		if err := tx.SaveOrder(ctx, cur); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return o, false, nil
	}

	s.log().Info("payment recorded",
		zap.String("order_id", o.ID),
		zap.String("status", string(upd.Status)),
		zap.String("provider", upd.Provider))
	s.emit(ctx, events.TopicOrderPaymentUpdated, events.EventOrderPaymentUpdated, o.ID, events.OrderPaymentUpdatedPayload{
		OrderID:           o.ID,
		BuyerID:           o.BuyerID,
		SellerID:          o.SellerID,
		Status:            string(upd.Status),
		Provider:          upd.Provider,
		ProviderPaymentID: upd.ProviderPaymentID,
	})
	return o, true, nil
}

// PaymentIntent is what the buyer takes to the provider to pay one order.
type PaymentIntent struct {
	OrderID         string        `json:"order_id"`
	Provider        string        `json:"provider"`
	ProviderOrderID string        `json:"provider_order_id"`
	AmountCents     int64         `json:"amount_cents"`
	Status          PaymentStatus `json:"status"`
}

// OpenPaymentIntent starts payment of an order through provider for the
// order total. A pending intent is handed back unchanged (created=false); a
// failed payment gets a fresh intent.
func (s *Service) OpenPaymentIntent(ctx context.Context, who actor.Actor, orderID, provider string) (in PaymentIntent, created bool, err error) {
	if who.Anonymous() {
		return PaymentIntent{}, false, apperr.Unauthorized("login required")
	}
	if orderID == "" {
		return PaymentIntent{}, false, apperr.Validation("order id is required")
	}
	if provider == "" {
		return PaymentIntent{}, false, apperr.Validation("provider is required")
	}

	err = s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, orderID, true)
		if err != nil {
			return err
		}
		if o.BuyerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		switch {
		case o.Status == StatusCancelled:
			return ErrOrderCancelled
		case o.Payment.Status == PaymentPaid:
			return ErrPaymentSettled
		}
		if o.Payment.IntentID != "" && o.Payment.Status == PaymentPending && o.Payment.Provider == provider {
			in = intentOf(o)
			return nil
		}
		o.Payment = Payment{
			Status:      PaymentPending,
			Provider:    provider,
			IntentID:    strings.ToUpper(provider) + "-" + uuid.NewString(),
			AmountCents: o.TotalCents,
		}
		o.UpdatedAt = s.now()
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		in, created = intentOf(o), true
		return nil
	})
	if err != nil {
		return PaymentIntent{}, false, err
	}
	if created {
		s.log().Info("payment intent opened",
			zap.String("order_id", in.OrderID),
			zap.String("provider", provider),
			zap.Int64("amount_cents", in.AmountCents))
	}
	return in, created, nil
}

func intentOf(o *Order) PaymentIntent {
	return PaymentIntent{
		OrderID:         o.ID,
		Provider:        o.Payment.Provider,
		ProviderOrderID: o.Payment.IntentID,
		AmountCents:     o.Payment.AmountCents,
		Status:          o.Payment.Status,
	}
}
