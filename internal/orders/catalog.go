package orders

import (
	"context"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProductInput struct {
	Title      string `json:"title"`
	Unit       string `json:"unit"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

// ListProducts returns the catalog, optionally limited to one seller.
func (s *Service) ListProducts(ctx context.Context, sellerID string) ([]*Product, error) {
	var out []*Product
	err := s.Store.InTx(ctx, func(tx Tx) error {
		ps, err := tx.ListProducts(ctx, sellerID)
		out = ps
		return err
	})
	return out, err
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out *Product
	err := s.Store.InTx(ctx, func(tx Tx) error {
		p, err := tx.Product(ctx, id)
		out = p
		return err
	})
	return out, err
}

// CreateProduct lists a new product owned by the caller, with a matching
// inventory record holding the initial stock.
func (s *Service) CreateProduct(ctx context.Context, who actor.Actor, in ProductInput) (*Product, error) {
	if who.Anonymous() {
		return nil, apperr.Unauthorized("login required")
	}
	if who.Role != actor.RoleFarmer && !who.IsAdmin() {
		return nil, ErrForbidden
	}
	if in.Title == "" {
		return nil, apperr.Validation("title is required")
	}
	if in.PriceCents <= 0 {
		return nil, apperr.Validation("price_cents must be positive")
	}
	if in.PriceCents > MaxPriceCents {
		return nil, apperr.Validation("price_cents too large")
	}
	if in.Stock < 0 {
		return nil, apperr.Validation("stock must not be negative")
	}
	if in.Unit == "" {
		in.Unit = "kg"
	}

	now := s.now()
	p := &Product{
		ID:         uuid.NewString(),
		SellerID:   who.ID,
		Title:      in.Title,
		Unit:       in.Unit,
		PriceCents: in.PriceCents,
		Stock:      in.Stock,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.Store.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertProduct(ctx, p); err != nil {
			return err
		}
		return tx.SetInventoryQuantity(ctx, p.SellerID, p.ID, p.Stock)
	})
	if err != nil {
		return nil, err
	}
	s.log().Info("product created", zap.String("product_id", p.ID), zap.String("seller_id", p.SellerID))
	return p, nil
}

// SetInventory sets the owner's quantity of a product and its sellable stock.
// Only the product's seller or an admin may do so.
func (s *Service) SetInventory(ctx context.Context, who actor.Actor, productID string, qty int) (*Product, error) {
	if qty < 0 {
		return nil, apperr.Validation("quantity must not be negative")
	}
	var out *Product
	err := s.Store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockProducts(ctx, []string{productID})
		if err != nil {
			return err
		}
		p, ok := locked[productID]
		if !ok {
			return ErrProductNotFound
		}
		if p.SellerID != who.ID && !who.IsAdmin() {
			return ErrForbidden
		}
		if err := tx.SetInventoryQuantity(ctx, p.SellerID, p.ID, qty); err != nil {
			return err
		}
		p.Stock = qty
		p.UpdatedAt = s.now()
		if err := tx.SaveProduct(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) ListInventory(ctx context.Context, ownerID string) ([]InventoryRecord, error) {
	var out []InventoryRecord
	err := s.Store.InTx(ctx, func(tx Tx) error {
		rs, err := tx.Inventory(ctx, ownerID)
		out = rs
		return err
	})
	return out, err
}
