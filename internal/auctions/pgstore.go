package auctions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps auctions in Postgres. Update holds the auction row lock
// (FOR UPDATE) for the whole read-modify-write, so bids on one auction
// serialize across API instances too.
type PGStore struct{ DB *pgxpool.Pool }

const auctionCols = `id, crop_id, owner_id, start_price, min_increment, start_at, end_at, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*Auction, error) {
	var a Auction
	var status string
	err := row.Scan(&a.ID, &a.CropID, &a.OwnerID, &a.StartPrice, &a.MinIncrement,
		&a.StartAt, &a.EndAt, &status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func (s *PGStore) Create(ctx context.Context, a *Auction) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO auctions(`+auctionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.CropID, a.OwnerID, a.StartPrice, a.MinIncrement,
		a.StartAt, a.EndAt, string(a.Status), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id string) (*Auction, error) {
	a, err := scanAuction(s.DB.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select auction: %w", err)
	}
	if a.Bids, err = loadBids(ctx, s.DB, id); err != nil {
		return nil, err
	}
	return a, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadBids(ctx context.Context, q querier, auctionID string) ([]Bid, error) {
	rows, err := q.Query(ctx, `
		SELECT seq, buyer_id, amount, placed_at
		FROM auction_bids WHERE auction_id=$1 ORDER BY seq`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("select bids: %w", err)
	}
	defer rows.Close()

	var out []Bid
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.Seq, &b.BuyerID, &b.Amount, &b.PlacedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// List returns auctions without their bid history; use Get for details.
func (s *PGStore) List(ctx context.Context, status Status) ([]*Auction, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+auctionCols+` FROM auctions
		WHERE ($1 = '' OR status = $1)
		ORDER BY start_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	var out []*Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, id string, fn func(a *Auction) error) (*Auction, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cur, err := scanAuction(tx.QueryRow(ctx, `SELECT `+auctionCols+` FROM auctions WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock auction: %w", err)
	}
	if cur.Bids, err = loadBids(ctx, tx, id); err != nil {
		return nil, err
	}

	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkAppendOnly(cur, next); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE auctions SET status=$2, updated_at=$3 WHERE id=$1`,
		id, string(next.Status), next.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}
	for _, b := range next.Bids[len(cur.Bids):] {
		if _, err := tx.Exec(ctx, `
			INSERT INTO auction_bids(auction_id, seq, buyer_id, amount, placed_at)
			VALUES ($1,$2,$3,$4,$5)`,
			id, b.Seq, b.BuyerID, b.Amount, b.PlacedAt); err != nil {
			return nil, fmt.Errorf("insert bid: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return next, nil
}

func (s *PGStore) Due(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM auctions
		WHERE (status='SCHEDULED' AND start_at <= $1)
		   OR (status='OPEN' AND end_at <= $1)
		ORDER BY id`, now)
	if err != nil {
		return nil, fmt.Errorf("due auctions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

var _ Store = (*PGStore)(nil)
var _ Store = (*MemStore)(nil)
