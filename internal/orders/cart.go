package orders

import (
	"context"
	"errors"

	"github.com/ariefcatur/harvest-market/internal/apperr"
)

func (s *Service) GetCart(ctx context.Context, buyerID string) (*Cart, error) {
	var out *Cart
	err := s.Store.InTx(ctx, func(tx Tx) error {
		c, err := tx.Cart(ctx, buyerID)
		out = c
		return err
	})
	return out, err
}

// AddToCart puts qty of an active product in the cart, adding to any
// quantity already there.
func (s *Service) AddToCart(ctx context.Context, buyerID, productID string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQty
	}
	if qty > MaxLineQty {
		return nil, ErrQtyTooLarge
	}
	return s.editCart(ctx, buyerID, func(tx Tx, c *Cart) error {
		p, err := tx.Product(ctx, productID)
		if errors.Is(err, apperr.ErrNotFound) {
			return ErrNotAvailable
		}
		if err != nil {
			return err
		}
		if !p.Active {
			return ErrNotAvailable
		}
		if i := c.index(productID); i >= 0 {
			if c.Items[i].Qty+qty > MaxLineQty {
				return ErrQtyTooLarge
			}
			c.Items[i].Qty += qty
			return nil
		}
		if len(c.Items) >= MaxCartLines {
			return ErrCartFull
		}
		c.Items = append(c.Items, CartItem{ProductID: p.ID, SellerID: p.SellerID, Qty: qty})
		return nil
	})
}

// UpdateCartItem sets the quantity of an item already in the cart; qty <= 0 removes it.
func (s *Service) UpdateCartItem(ctx context.Context, buyerID, productID string, qty int) (*Cart, error) {
	return s.editCart(ctx, buyerID, func(_ Tx, c *Cart) error {
		i := c.index(productID)
		if i < 0 {
			return ErrNotInCart
		}
		if qty <= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
		if qty > MaxLineQty {
			return ErrQtyTooLarge
		}
		c.Items[i].Qty = qty
		return nil
	})
}

func (s *Service) RemoveFromCart(ctx context.Context, buyerID, productID string) (*Cart, error) {
	return s.editCart(ctx, buyerID, func(_ Tx, c *Cart) error {
		if i := c.index(productID); i >= 0 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return nil
	})
}

func (s *Service) editCart(ctx context.Context, buyerID string, fn func(tx Tx, c *Cart) error) (*Cart, error) {
	if buyerID == "" {
		return nil, apperr.Unauthorized("login required")
	}
	var out *Cart
	err := s.Store.InTx(ctx, func(tx Tx) error {
		c, err := tx.Cart(ctx, buyerID)
		if err != nil {
			return err
		}
		if err := fn(tx, c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		if err := tx.SaveCart(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}
