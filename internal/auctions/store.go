package auctions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Store persists auctions. Update is the only write path for existing
// auctions: it loads the auction exclusively, runs fn, and persists the
// result only if fn returns nil. Bids may only be appended.
type Store interface {
	Create(ctx context.Context, a *Auction) error
	Get(ctx context.Context, id string) (*Auction, error)
	List(ctx context.Context, status Status) ([]*Auction, error)
	Update(ctx context.Context, id string, fn func(a *Auction) error) (*Auction, error)
	Due(ctx context.Context, now time.Time) ([]string, error)
}

// MemStore is an in-process Store.
type MemStore struct {
	mu       sync.Mutex
	auctions map[string]*Auction
}

func NewMemStore() *MemStore { return &MemStore{auctions: map[string]*Auction{}} }

func (m *MemStore) Create(_ context.Context, a *Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[a.ID] = a.Clone()
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemStore) List(_ context.Context, status Status) ([]*Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Auction, 0, len(m.auctions))
	for _, a := range m.auctions {
		if status == "" || a.Status == status {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (m *MemStore) Update(_ context.Context, id string, fn func(a *Auction) error) (*Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkAppendOnly(cur, next); err != nil {
		return nil, err
	}
	m.auctions[id] = next
	return next.Clone(), nil
}

func (m *MemStore) Due(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, a := range m.auctions {
		if a.Due(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var errRewrite = errors.New("auction bids are append-only")

func checkAppendOnly(before, after *Auction) error {
	if len(after.Bids) < len(before.Bids) {
		return errRewrite
	}
	for i := range before.Bids {
		if after.Bids[i] != before.Bids[i] {
			return errRewrite
		}
	}
	return nil
}
