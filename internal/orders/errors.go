package orders

import (
	"fmt"

	"github.com/ariefcatur/harvest-market/internal/apperr"
)

var (
	ErrEmptyCart       = apperr.Validation("Cart empty")
	ErrOrderNotFound   = apperr.NotFound("Order not found")
	ErrProductNotFound = apperr.NotFound("Product not found")
	ErrNotInCart       = apperr.NotFound("Item not in cart")
	ErrNotAvailable    = apperr.NotFound("Product not available")
	ErrCannotCancel    = apperr.InvalidState("Cannot cancel")
	ErrForbidden       = apperr.Forbidden("Forbidden")
	ErrInvalidQty      = apperr.Validation("qty must be positive")
	ErrQtyTooLarge     = apperr.Validation("qty too large")
	ErrCartFull        = apperr.Validation("too many items in cart")
)

// InsufficientStockError names the item that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Title     string
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s", e.Title)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == apperr.ErrInsufficientStock
}
