package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

// Upsert writes the current state of an active listing.
func (s *ListingStore) Upsert(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (item_id, kind, seller, quantity, unit_price, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (item_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(l.ItemID), string(l.Kind), l.Seller.Hex(),
		int64(l.Quantity), l.UnitPrice.String(), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert listing %d: %w", l.ItemID, err)
	}
	return nil
}

// Delete removes the listing row for a deactivated listing.
func (s *ListingStore) Delete(ctx context.Context, itemID uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE item_id = $1`, int64(itemID))
	if err != nil {
		return fmt.Errorf("postgres: delete listing %d: %w", itemID, err)
	}
	return nil
}

// ListActive returns every persisted listing, used to restore state at
// startup.
func (s *ListingStore) ListActive(ctx context.Context) ([]domain.Listing, error) {
	const query = `
		SELECT item_id, kind, seller, quantity, unit_price::text, created_at
		FROM listings ORDER BY item_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		var (
			itemID   int64
			kind     string
			seller   string
			quantity int64
			price    string
			l        domain.Listing
		)
		if err := rows.Scan(&itemID, &kind, &seller, &quantity, &price, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		unitPrice, ok := new(big.Int).SetString(price, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: listing %d: bad unit price %q", itemID, price)
		}
		l.ItemID = uint64(itemID)
		l.Kind = domain.AssetKind(kind)
		l.Seller = common.HexToAddress(seller)
		l.Quantity = uint64(quantity)
		l.UnitPrice = unitPrice
		l.Active = true
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
