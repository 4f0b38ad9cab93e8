package auctions

import "time"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusOpen, StatusClosed:
		return true
	}
	return false
}

// Bid is one accepted entry of an auction's history. Seq is its 1-based position.
type Bid struct {
	Seq      int       `json:"seq"`
	BuyerID  string    `json:"buyer"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

type Auction struct {
	ID           string    `json:"id"`
	CropID       string    `json:"crop_id"`
	OwnerID      string    `json:"owner_id"`
	StartPrice   int64     `json:"start_price"`
	MinIncrement int64     `json:"min_increment"`
	StartAt      time.Time `json:"start_at"`
	EndAt        time.Time `json:"end_at"`
	Status       Status    `json:"status"`
	Bids         []Bid     `json:"bids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Highest is the amount the next bid has to beat: the top bid, or the start
// price while nothing (higher) has been bid.
func (a *Auction) Highest() int64 {
	h := a.StartPrice
	for _, b := range a.Bids {
		if b.Amount > h {
			h = b.Amount
		}
	}
	return h
}

// Leading returns the highest accepted bid, if any.
func (a *Auction) Leading() (Bid, bool) {
	var top Bid
	found := false
	for _, b := range a.Bids {
		if !found || b.Amount > top.Amount {
			top, found = b, true
		}
	}
	return top, found
}

func (a *Auction) Clone() *Auction {
	c := *a
	c.Bids = append([]Bid(nil), a.Bids...)
	return &c
}

// BidEvent is what observers of an auction receive for every accepted bid.
type BidEvent struct {
	AuctionID string    `json:"auctionId"`
	Seq       int       `json:"seq"`
	BuyerID   string    `json:"buyer"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placedAt"`
}

func newBidEvent(auctionID string, b Bid) BidEvent {
	return BidEvent{AuctionID: auctionID, Seq: b.Seq, BuyerID: b.BuyerID, Amount: b.Amount, PlacedAt: b.PlacedAt}
}
