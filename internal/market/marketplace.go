// Package market implements the marketplace ledger core: the listing and
// auction registries, the settlement engine that pairs custody transfers
// with payment movement, and the enumerable indexes of active records.
//
// Every exported operation runs under one exclusive lock over the whole
// marketplace state and is all-or-nothing: the first failing precondition
// aborts with no partial effect, and a failure after a custody or payment
// movement rolls that movement back before returning. There is no scheduler;
// auction expiry is a predicate checked when Bid or Settle is invoked.
package market

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// Marketplace owns all listing, auction, and index state. It is the sole
// writer of that state; external collaborators (custody adapters, payment
// ledger) are invoked only while the lock is held, which also serves as the
// reentrancy guard: a collaborator cannot re-enter a mutating operation
// mid-transfer.
type Marketplace struct {
	mu sync.Mutex

	unique   domain.CustodyAdapter
	fungible domain.CustodyAdapter
	payments domain.PaymentLedger

	// operator is the marketplace's own account: the address sellers grant
	// transfer approval to, and the escrow account remitted funds pass
	// through. Auction bids rest here until settlement or refund.
	operator common.Address

	listings map[uint64]*domain.Listing
	auctions map[uint64]*domain.Auction

	listingIndex *index
	auctionIndex *index

	now func() time.Time
}

// Option customizes a Marketplace.
type Option func(*Marketplace)

// WithClock overrides the time source. Tests use this to cross auction
// end times without sleeping.
func WithClock(now func() time.Time) Option {
	return func(m *Marketplace) { m.now = now }
}

// New creates an empty Marketplace over the given custody adapters and
// payment ledger. operator is the marketplace's own account.
func New(uniqueAdapter, fungibleAdapter domain.CustodyAdapter, payments domain.PaymentLedger, operator common.Address, opts ...Option) *Marketplace {
	m := &Marketplace{
		unique:       uniqueAdapter,
		fungible:     fungibleAdapter,
		payments:     payments,
		operator:     operator,
		listings:     make(map[uint64]*domain.Listing),
		auctions:     make(map[uint64]*domain.Auction),
		listingIndex: newIndex(),
		auctionIndex: newIndex(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Operator returns the marketplace's escrow/operator account.
func (m *Marketplace) Operator() common.Address {
	return m.operator
}

// adapter selects the custody adapter for the given kind.
func (m *Marketplace) adapter(kind domain.AssetKind) domain.CustodyAdapter {
	if kind == domain.KindUnique {
		return m.unique
	}
	return m.fungible
}

// GetListing returns the active listing for itemID, if any.
func (m *Marketplace) GetListing(itemID uint64) (domain.Listing, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[itemID]
	if !ok {
		return domain.Listing{}, false
	}
	return copyListing(l), true
}

// GetAuction returns the active auction for itemID, if any.
func (m *Marketplace) GetAuction(itemID uint64) (domain.Auction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[itemID]
	if !ok {
		return domain.Auction{}, false
	}
	return copyAuction(a), true
}

// ActiveListings returns every active listing in index order.
func (m *Marketplace) ActiveListings() []domain.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Listing, 0, m.listingIndex.len())
	for _, id := range m.listingIndex.ids {
		if l, ok := m.listings[id]; ok {
			out = append(out, copyListing(l))
		}
	}
	return out
}

// ActiveAuctions returns every active auction in index order.
func (m *Marketplace) ActiveAuctions() []domain.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Auction, 0, m.auctionIndex.len())
	for _, id := range m.auctionIndex.ids {
		if a, ok := m.auctions[id]; ok {
			out = append(out, copyAuction(a))
		}
	}
	return out
}

// Restore loads previously persisted active records, replacing current
// state. Used once at startup before the marketplace is exposed to callers.
func (m *Marketplace) Restore(listings []domain.Listing, auctions []domain.Auction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listings = make(map[uint64]*domain.Listing, len(listings))
	m.auctions = make(map[uint64]*domain.Auction, len(auctions))
	m.listingIndex = newIndex()
	m.auctionIndex = newIndex()

	for i := range listings {
		l := copyListing(&listings[i])
		m.listings[l.ItemID] = &l
		m.listingIndex.add(l.ItemID)
	}
	for i := range auctions {
		a := copyAuction(&auctions[i])
		m.auctions[a.ItemID] = &a
		m.auctionIndex.add(a.ItemID)
	}
}

func copyListing(l *domain.Listing) domain.Listing {
	out := *l
	out.UnitPrice = new(big.Int).Set(l.UnitPrice)
	return out
}

func copyAuction(a *domain.Auction) domain.Auction {
	out := *a
	out.BasePrice = new(big.Int).Set(a.BasePrice)
	out.HighestBid = new(big.Int)
	if a.HighestBid != nil {
		out.HighestBid.Set(a.HighestBid)
	}
	return out
}
