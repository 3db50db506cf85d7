package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore mirrors the in-memory listing registry into durable storage
// so a restarted process can reload active state. The registry is the
// source of truth; stores are write-behind.
type ListingStore interface {
	Upsert(ctx context.Context, l Listing) error
	Delete(ctx context.Context, itemID uint64) error
	ListActive(ctx context.Context) ([]Listing, error)
}

// AuctionStore mirrors the in-memory auction registry.
type AuctionStore interface {
	Upsert(ctx context.Context, a Auction) error
	Delete(ctx context.Context, itemID uint64) error
	ListActive(ctx context.Context) ([]Auction, error)
}

// TradeStore persists completed settlements.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListByItem(ctx context.Context, itemID uint64, opts ListOpts) ([]Trade, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
