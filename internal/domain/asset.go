// Package domain defines the marketplace ledger's core types, its failure
// taxonomy, and the interfaces of its external collaborators (asset custody,
// payment ledger, persistence, event bus). Concrete implementations live in
// their own packages; the core and service layers depend only on this one.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetKind distinguishes the two custody models the ledger trades in.
type AssetKind string

const (
	// KindUnique is an asset with exactly one indivisible unit per
	// identifier and a single owner at a time.
	KindUnique AssetKind = "unique"

	// KindFungible is an asset where one identifier carries a divisible
	// quantity, possibly held by many owners concurrently.
	KindFungible AssetKind = "fungible"
)

// Valid reports whether k is one of the two known kinds.
func (k AssetKind) Valid() bool {
	return k == KindUnique || k == KindFungible
}

// Listing is one active fixed-price offer. Quantity is 0 for unique items
// and strictly positive for fungible ones; that pairing is enforced at
// creation and preserved for the listing's whole lifetime.
type Listing struct {
	ItemID    uint64
	UnitPrice *big.Int // smallest payment unit, > 0
	Seller    common.Address
	Quantity  uint64 // remaining quantity; 0 means unique
	Kind      AssetKind
	Active    bool
	CreatedAt time.Time
}

// Auction is one active timed ascending-bid sale. While active, HighestBid
// is zero when no bid has been accepted and otherwise strictly greater than
// BasePrice; every accepted bid strictly exceeds its predecessor.
type Auction struct {
	ItemID        uint64
	BasePrice     *big.Int // reserve, smallest payment unit, > 0
	Seller        common.Address
	HighestBid    *big.Int
	HighestBidder common.Address
	StartTime     time.Time
	EndTime       time.Time
	Quantity      uint64 // 0 for unique
	Kind          AssetKind
	Active        bool
}

// HasBid reports whether the auction has accepted at least one bid.
func (a Auction) HasBid() bool {
	return a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// TradeSource identifies which operation produced a trade.
type TradeSource string

const (
	TradeSourcePurchase      TradeSource = "purchase"
	TradeSourceBatchPurchase TradeSource = "batch_purchase"
	TradeSourceAuction       TradeSource = "auction_settlement"
)

// Trade is one completed settlement: custody moved from Seller to Buyer and
// Amount moved from Buyer to Seller within a single operation.
type Trade struct {
	ID        string
	ItemID    uint64
	Kind      AssetKind
	Seller    common.Address
	Buyer     common.Address
	Quantity  uint64 // 0 for unique
	Amount    *big.Int
	Source    TradeSource
	CreatedAt time.Time
}
