package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

// Upsert writes the current state of an active auction, including its
// highest bid so a restart does not lose an in-flight auction's escrow
// bookkeeping.
func (s *AuctionStore) Upsert(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (
			item_id, kind, seller, quantity, base_price,
			highest_bid, highest_bidder, start_time, end_time
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
		ON CONFLICT (item_id) DO UPDATE SET
			highest_bid = EXCLUDED.highest_bid,
			highest_bidder = EXCLUDED.highest_bidder,
			updated_at = NOW()`

	highestBid := "0"
	if a.HighestBid != nil {
		highestBid = a.HighestBid.String()
	}
	_, err := s.pool.Exec(ctx, query,
		int64(a.ItemID), string(a.Kind), a.Seller.Hex(), int64(a.Quantity),
		a.BasePrice.String(), highestBid, a.HighestBidder.Hex(),
		a.StartTime, a.EndTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert auction %d: %w", a.ItemID, err)
	}
	return nil
}

// Delete removes the auction row after settlement or cancellation.
func (s *AuctionStore) Delete(ctx context.Context, itemID uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auctions WHERE item_id = $1`, int64(itemID))
	if err != nil {
		return fmt.Errorf("postgres: delete auction %d: %w", itemID, err)
	}
	return nil
}

// ListActive returns every persisted auction, used to restore state at
// startup.
func (s *AuctionStore) ListActive(ctx context.Context) ([]domain.Auction, error) {
	const query = `
		SELECT item_id, kind, seller, quantity, base_price::text,
			highest_bid::text, highest_bidder, start_time, end_time
		FROM auctions ORDER BY item_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		var (
			itemID     int64
			kind       string
			seller     string
			quantity   int64
			basePrice  string
			highestBid string
			bidder     string
			a          domain.Auction
		)
		if err := rows.Scan(&itemID, &kind, &seller, &quantity, &basePrice, &highestBid, &bidder, &a.StartTime, &a.EndTime); err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		base, ok := new(big.Int).SetString(basePrice, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: auction %d: bad base price %q", itemID, basePrice)
		}
		bid, ok := new(big.Int).SetString(highestBid, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: auction %d: bad highest bid %q", itemID, highestBid)
		}
		a.ItemID = uint64(itemID)
		a.Kind = domain.AssetKind(kind)
		a.Seller = common.HexToAddress(seller)
		a.Quantity = uint64(quantity)
		a.BasePrice = base
		a.HighestBid = bid
		a.HighestBidder = common.HexToAddress(bidder)
		a.Active = true
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
