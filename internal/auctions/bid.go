package auctions

import (
	"math"
	"time"

	"github.com/ariefcatur/harvest-market/internal/apperr"
)

var (
	ErrNotFound      = apperr.NotFound("Auction not found")
	ErrNotOpen       = apperr.InvalidState("Auction not open")
	ErrBidTooLow     = apperr.Validation("Bid too low")
	ErrInvalidAmount = apperr.Validation("amount must be positive")
	ErrMissingBidder = apperr.Validation("buyer is required")
	ErrAmountTooBig  = apperr.Validation("amount too large")
)

// MaxAmount bounds bids, start prices and increments (cents).
const MaxAmount int64 = 1_000_000_000_000_000

// MinimumBid is the smallest amount the auction accepts next. It saturates
// at MaxInt64 instead of overflowing.
func MinimumBid(a *Auction) int64 {
	h := a.Highest()
	if a.MinIncrement > math.MaxInt64-h {
		return math.MaxInt64
	}
	return h + a.MinIncrement
}

// ValidateBid is the single bid rule used by every entry point. It never
// mutates a.
func ValidateBid(a *Auction, bidderID string, amount int64) error {
	if a.Status != StatusOpen {
		return ErrNotOpen
	}
	if bidderID == "" {
		return ErrMissingBidder
	}
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if amount > MaxAmount {
		return ErrAmountTooBig
	}
	if amount < MinimumBid(a) {
		return ErrBidTooLow
	}
	return nil
}

// Accept validates and appends the bid.
func (a *Auction) Accept(bidderID string, amount int64, now time.Time) (Bid, error) {
	if err := ValidateBid(a, bidderID, amount); err != nil {
		return Bid{}, err
	}
	b := Bid{Seq: len(a.Bids) + 1, BuyerID: bidderID, Amount: amount, PlacedAt: now.UTC()}
	a.Bids = append(a.Bids, b)
	a.UpdatedAt = now.UTC()
	return b, nil
}
