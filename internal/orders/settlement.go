package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutInput struct {
	ShippingAddress string `json:"shipping_address"`
	// SellerID picks the seller group to settle; empty settles the first one.
	SellerID string `json:"seller_id,omitempty"`
}

// Result is the settled order plus the seller groups still in the cart.
// The caller checks out again to settle them.
type Result struct {
	Order     *Order        `json:"order"`
	Remaining []SellerGroup `json:"remaining_seller_groups"`
}

func (s *Service) withReserveTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.ReserveTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.ReserveTimeout)
}

// CreateOrderFromCart settles one seller group of the buyer's cart. Stock of
// every item is checked under row lock before anything is written; the
// decrements, reserved counters, order insert and cart update commit together.
func (s *Service) CreateOrderFromCart(ctx context.Context, buyer actor.Actor, in CheckoutInput) (*Result, error) {
	if buyer.Anonymous() {
		return nil, apperr.Unauthorized("login required")
	}
	if in.ShippingAddress == "" {
		return nil, apperr.Validation("shipping_address is required")
	}
	ctx, cancel := s.withReserveTimeout(ctx)
	defer cancel()

	now := s.now()
	var res *Result
	err := s.Store.InTx(ctx, func(tx Tx) error {
		cart, err := tx.Cart(ctx, buyer.ID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return ErrEmptyCart
		}

		group, err := pickGroup(GroupBySeller(cart.Items), in.SellerID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(group.Items))
		for _, it := range group.Items {
			ids = append(ids, it.ProductID)
		}
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		// cek semua dulu; belum ada yang ditulis kalau ada yang kurang
		for _, it := range group.Items {
			p, ok := locked[it.ProductID]
			if !ok {
				return ErrProductNotFound
			}
			if p.Stock < it.Qty {
				return &InsufficientStockError{ProductID: p.ID, Title: p.Title, Required: it.Qty, Available: p.Stock}
			}
		}

		items := make([]LineItem, 0, len(group.Items))
		for _, it := range group.Items {
			p := locked[it.ProductID]
			p.Stock -= it.Qty
			p.UpdatedAt = now
			if err := tx.SaveProduct(ctx, p); err != nil {
				return err
			}
			if err := tx.AddReserved(ctx, p.SellerID, p.ID, it.Qty); err != nil {
				return err
			}
			items = append(items, LineItem{
				RefType:        RefProduct,
				RefID:          p.ID,
				Title:          p.Title,
				UnitPriceCents: p.PriceCents,
				Qty:            it.Qty,
				Unit:           p.Unit,
			})
		}

		t := ComputeTotals(items, s.TaxRate, s.ShippingFeeCents)
		o := &Order{
			ID:              uuid.NewString(),
			BuyerID:         buyer.ID,
			SellerID:        group.SellerID,
			Items:           items,
			SubtotalCents:   t.Subtotal,
			TaxCents:        t.Tax,
			ShippingCents:   t.Shipping,
			TotalCents:      t.Total,
			ShippingAddress: in.ShippingAddress,
			Payment:         Payment{Status: PaymentPending},
			CreatedAt:       now,
		}
		o.track(StatusCreated, now, "")
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}

		kept := cart.Items[:0]
		for _, it := range cart.Items {
			if it.SellerID != group.SellerID {
				kept = append(kept, it)
			}
		}
		cart.Items = kept
		cart.UpdatedAt = now
		if err := tx.SaveCart(ctx, cart); err != nil {
			return err
		}

		res = &Result{Order: o, Remaining: GroupBySeller(cart.Items)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o := res.Order
	s.log().Info("order created",
		zap.String("order_id", o.ID),
		zap.String("buyer_id", o.BuyerID),
		zap.String("seller_id", o.SellerID),
		zap.Int64("total_cents", o.TotalCents),
		zap.Int("remaining_groups", len(res.Remaining)))
	s.emit(ctx, events.TopicOrderCreated, events.EventOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:    o.ID,
		BuyerID:    o.BuyerID,
		SellerID:   o.SellerID,
		Items:      lines(o.Items),
		TotalCents: o.TotalCents,
	})
	return res, nil
}

func pickGroup(groups []SellerGroup, sellerID string) (SellerGroup, error) {
	if sellerID == "" {
		return groups[0], nil
	}
	for _, g := range groups {
		if g.SellerID == sellerID {
			return g, nil
		}
	}
	return SellerGroup{}, apperr.Validation("no items from seller " + sellerID)
}

// CancelOrder restores every reserved product line and marks the order
// CANCELLED with payment FAILED, all in one transaction. Only the buyer or
// an admin may cancel, and only from CREATED or CONFIRMED.
func (s *Service) CancelOrder(ctx context.Context, who actor.Actor, id string) (*Order, error) {
	now := s.now()
	var restored []events.OrderLine
	var out *Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, id, true)
		if err != nil {
			return err
		}
		if o.BuyerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		if !o.Status.Cancellable() {
			return ErrCannotCancel
		}

		var ids []string
		for _, it := range o.Items {
			if it.RefType == RefProduct {
				ids = append(ids, it.RefID)
			}
		}
		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}
		restored = restored[:0]
		for _, it := range o.Items {
			if it.RefType != RefProduct {
				continue
			}
			p, ok := locked[it.RefID]
			if !ok {
				s.log().Warn("cancel: product gone, nothing to restore",
					zap.String("order_id", o.ID), zap.String("product_id", it.RefID))
				continue
			}
			p.Stock += it.Qty
			p.UpdatedAt = now
			if err := tx.SaveProduct(ctx, p); err != nil {
				return err
			}
			if err := tx.AddReserved(ctx, p.SellerID, p.ID, -it.Qty); err != nil {
				return err
			}
			restored = append(restored, events.OrderLine{ProductID: p.ID, Title: it.Title, Qty: it.Qty})
		}

		o.Payment.Status = PaymentFailed
		o.track(StatusCancelled, now, "cancelled by "+who.ID)
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("order cancelled", zap.String("order_id", out.ID), zap.String("actor_id", who.ID))
	s.emit(ctx, events.TopicOrderCancelled, events.EventOrderCancelled, out.ID, events.OrderCancelledPayload{
		OrderID:  out.ID,
		BuyerID:  out.BuyerID,
		SellerID: out.SellerID,
		ActorID:  who.ID,
		Restored: restored,
	})
	return out, nil
}

// AdvanceStatus moves an order along its fulfilment path. Seller or admin only.
func (s *Service) AdvanceStatus(ctx context.Context, who actor.Actor, id string, to Status, note string) (*Order, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown status " + string(to))
	}
	if to == StatusCancelled {
		return nil, apperr.Validation("use cancel to cancel an order")
	}

	now := s.now()
	var from Status
	var out *Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, id, true)
		if err != nil {
			return err
		}
		if o.SellerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		if !CanTransition(o.Status, to) {
			return apperr.InvalidState(fmt.Sprintf("cannot move order from %s to %s", o.Status, to))
		}
		from = o.Status
		o.track(to, now, note)
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.TopicOrderStatusChanged, events.EventOrderStatusChanged, out.ID, events.OrderStatusChangedPayload{
		OrderID:  out.ID,
		BuyerID:  out.BuyerID,
		SellerID: out.SellerID,
		From:     string(from),
		To:       string(to),
		Note:     note,
	})
	return out, nil
}

// GetOrder returns the order to its buyer, its seller or an admin.
func (s *Service) GetOrder(ctx context.Context, who actor.Actor, id string) (*Order, error) {
	var out *Order
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, id, false)
		if err != nil {
			return err
		}
		if o.BuyerID != who.ID && o.SellerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		out = o
		return nil
	})
	return out, err
}

// CheckoutResult rebuilds the checkout response for an order placed by who:
// the order plus the cart groups still waiting to be settled.
func (s *Service) CheckoutResult(ctx context.Context, who actor.Actor, orderID string) (*Result, error) {
	var res *Result
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, orderID, false)
		if err != nil {
			return err
		}
		if o.BuyerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		cart, err := tx.Cart(ctx, o.BuyerID)
		if err != nil {
			return err
		}
		res = &Result{Order: o, Remaining: GroupBySeller(cart.Items)}
		return nil
	})
	return res, err
}

// StatusView is the small, cacheable projection served by the status endpoint.
type StatusView struct {
	OrderID       string        `json:"order_id"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	UpdatedAt     string        `json:"updated_at"`
}

func (s *Service) OrderStatus(ctx context.Context, id string) (StatusView, error) {
	var v StatusView
	err := s.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Order(ctx, id, false)
		if err != nil {
			return err
		}
		v = StatusView{
			OrderID:       o.ID,
			Status:        o.Status,
			PaymentStatus: o.Payment.Status,
			UpdatedAt:     o.UpdatedAt.Format(time.RFC3339),
		}
		return nil
	})
	return v, err
}
