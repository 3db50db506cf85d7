package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, item_id, kind, seller, buyer, quantity, amount::text, source, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t        domain.Trade
			itemID   int64
			quantity int64
			seller   string
			buyer    string
			amount   string
		)
		if err := rows.Scan(&t.ID, &itemID, &t.Kind, &seller, &buyer, &quantity, &amount, &t.Source, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: trade %s: bad amount %q", t.ID, amount)
		}
		t.ItemID = uint64(itemID)
		t.Quantity = uint64(quantity)
		t.Seller = common.HexToAddress(seller)
		t.Buyer = common.HexToAddress(buyer)
		t.Amount = value
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert records one completed settlement. Duplicate IDs are silently
// skipped so a replay after a partial failure is harmless.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (id, item_id, kind, seller, buyer, quantity, amount, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, int64(t.ItemID), string(t.Kind), t.Seller.Hex(), t.Buyer.Hex(),
		int64(t.Quantity), t.Amount.String(), string(t.Source), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByItem returns trades for one item, newest first.
func (s *TradeStore) ListByItem(ctx context.Context, itemID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE item_id = $1 ORDER BY created_at DESC`
	args := []any{int64(itemID)}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by item %d: %w", itemID, err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// ListByWallet returns trades where wallet was buyer or seller, newest
// first.
func (s *TradeStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE seller = $1 OR buyer = $1 ORDER BY created_at DESC`
	args := []any{wallet}
	query, args = applyListOpts(query, args, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by wallet %q: %w", wallet, err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// ListBefore returns up to limit trades older than cutoff, oldest first.
// Used by the archiver to page through cold data.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Trade, error) {
	const query = `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteBefore removes trades older than cutoff after they have been
// archived, returning the number deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func applyListOpts(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return query, args
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
