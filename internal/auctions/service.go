package auctions

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/harvest-market/internal/actor"
	"github.com/ariefcatur/harvest-market/internal/apperr"
	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/ariefcatur/harvest-market/internal/keylock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster delivers accepted bids to the auction's observers.
type Broadcaster interface {
	Publish(ctx context.Context, ev BidEvent) error
}

type PlaceBidCmd struct {
	AuctionID string
	BidderID  string
	Amount    int64
}

type CreateInput struct {
	CropID       string    `json:"crop_id"`
	StartPrice   int64     `json:"start_price"`
	MinIncrement int64     `json:"min_increment"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
}

type Service struct {
	Store     Store
	Broadcast Broadcaster
	Events    events.Sink
	Log       *zap.Logger
	Now       func() time.Time

	locks keylock.Map
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) sink() events.Sink {
	if s.Events == nil {
		return events.Nop{}
	}
	return s.Events
}

func (s *Service) Get(ctx context.Context, id string) (*Auction, error) {
	return s.Store.Get(ctx, id)
}

// List returns auctions in the given status; an empty status means OPEN.
func (s *Service) List(ctx context.Context, status Status) ([]*Auction, error) {
	if status == "" {
		status = StatusOpen
	}
	if !status.Valid() {
		return nil, apperr.Validation("unknown status " + string(status))
	}
	return s.Store.List(ctx, status)
}

// Create schedules an auction for a crop owned by the caller.
func (s *Service) Create(ctx context.Context, owner actor.Actor, in CreateInput) (*Auction, error) {
	now := s.now().UTC()
	if in.CropID == "" {
		return nil, apperr.Validation("crop_id is required")
	}
	if in.StartPrice <= 0 {
		return nil, apperr.Validation("start_price must be positive")
	}
	if in.StartPrice > MaxAmount {
		return nil, apperr.Validation("start_price too large")
	}
	if in.MinIncrement == 0 {
		in.MinIncrement = 1
	}
	if in.MinIncrement < 0 {
		return nil, apperr.Validation("min_increment must be positive")
	}
	if in.MinIncrement > MaxAmount {
		return nil, apperr.Validation("min_increment too large")
	}
	if in.StartAt.IsZero() {
		in.StartAt = now
	}
	if in.EndAt.IsZero() || !in.EndAt.After(in.StartAt) {
		return nil, apperr.Validation("end_at must be after start_at")
	}

	a := &Auction{
		ID:           uuid.NewString(),
		CropID:       in.CropID,
		OwnerID:      owner.ID,
		StartPrice:   in.StartPrice,
		MinIncrement: in.MinIncrement,
		StartAt:      in.StartAt.UTC(),
		EndAt:        in.EndAt.UTC(),
		Status:       StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log().Info("auction scheduled",
		zap.String("auction_id", a.ID),
		zap.String("crop_id", a.CropID),
		zap.Time("start_at", a.StartAt),
		zap.Time("end_at", a.EndAt))
	return a, nil
}

// PlaceBid accepts a bid if it beats the current highest by the increment.
// Acceptance, persistence and broadcast happen under the auction's lock, so
// observers see bids in acceptance order. Time-driven transitions are applied
// first: a bid arriving after end_at closes the auction and is refused.
func (s *Service) PlaceBid(ctx context.Context, cmd PlaceBidCmd) (Bid, error) {
	unlock, err := s.locks.LockContext(ctx, cmd.AuctionID)
	if err != nil {
		return Bid{}, err
	}
	defer unlock()

	var accepted Bid
	expired := false
	a, err := s.Store.Update(ctx, cmd.AuctionID, func(a *Auction) error {
		now := s.now()
		if a.Advance(now) && a.Status == StatusClosed {
			// simpan transisi CLOSED, bid ditolak di bawah
			expired = true
			return nil
		}
		b, err := a.Accept(cmd.BidderID, cmd.Amount, now)
		accepted = b
		return err
	})
	if err != nil {
		return Bid{}, err
	}
	if expired {
		s.log().Info("auction closed on late bid", zap.String("auction_id", a.ID))
		s.emitClosed(ctx, a)
		return Bid{}, ErrNotOpen
	}

	ev := newBidEvent(cmd.AuctionID, accepted)
	if s.Broadcast != nil {
		// bid sudah commit; broadcast best-effort
		if err := s.Broadcast.Publish(ctx, ev); err != nil {
			s.log().Warn("broadcast bid failed", zap.String("auction_id", cmd.AuctionID), zap.Error(err))
		}
	}
	if err := s.sink().Emit(ctx, events.TopicBidPlaced, events.EventBidPlaced, cmd.AuctionID, events.BidPlacedPayload{
		AuctionID: cmd.AuctionID,
		Seq:       accepted.Seq,
		BuyerID:   accepted.BuyerID,
		Amount:    accepted.Amount,
		PlacedAt:  accepted.PlacedAt,
	}); err != nil {
		s.log().Warn("emit bid placed failed", zap.String("auction_id", cmd.AuctionID), zap.Error(err))
	}
	return accepted, nil
}

// Close ends an auction early. Only its owner or an admin may do so.
func (s *Service) Close(ctx context.Context, who actor.Actor, id string) (*Auction, error) {
	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, err := s.Store.Update(ctx, id, func(a *Auction) error {
		if a.OwnerID != who.ID && !who.IsAdmin() {
			return apperr.Forbidden("Forbidden")
		}
		return a.Close(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.emitClosed(ctx, a)
	return a, nil
}

var errNothingDue = errors.New("nothing due")

// Sweep applies due lifecycle transitions and returns how many auctions changed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	ids, err := s.Store.Due(ctx, now)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		a, err := s.advance(ctx, id, now)
		if errors.Is(err, errNothingDue) {
			continue
		}
		if err != nil {
			s.log().Warn("advance auction failed", zap.String("auction_id", id), zap.Error(err))
			continue
		}
		n++
		s.log().Info("auction advanced", zap.String("auction_id", id), zap.String("status", string(a.Status)))
		if a.Status == StatusClosed {
			s.emitClosed(ctx, a)
		}
	}
	return n, nil
}

func (s *Service) advance(ctx context.Context, id string, now time.Time) (*Auction, error) {
	unlock, err := s.locks.LockContext(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.Store.Update(ctx, id, func(a *Auction) error {
		if !a.Advance(now) {
			return errNothingDue
		}
		return nil
	})
}

func (s *Service) emitClosed(ctx context.Context, a *Auction) {
	p := events.AuctionClosedPayload{AuctionID: a.ID, CropID: a.CropID, OwnerID: a.OwnerID, Bids: len(a.Bids)}
	if top, ok := a.Leading(); ok {
		p.WinnerID, p.Amount = top.BuyerID, top.Amount
	}
	if err := s.sink().Emit(ctx, events.TopicAuctionClosed, events.EventAuctionClosed, a.ID, p); err != nil {
		s.log().Warn("emit auction closed failed", zap.String("auction_id", a.ID), zap.Error(err))
	}
}
