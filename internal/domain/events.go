package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventChannel is the pub/sub channel every marketplace event is published
// on. EventStream is the durable stream indexers replay from.
const (
	EventChannel = "ch:market"
	EventStream  = "stream:market"
)

// EventType names the mutating operation that produced an event.
type EventType string

const (
	EventItemListed       EventType = "item_listed"
	EventItemSold         EventType = "item_sold"
	EventBatchSold        EventType = "batch_sold"
	EventListingCancelled EventType = "listing_cancelled"
	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionSettled   EventType = "auction_settled"
	EventAuctionCancelled EventType = "auction_cancelled"
)

// Event is the single structured notification emitted by each mutating
// operation, carrying its key outcome fields for external observers and
// indexers. Amounts are decimal strings of the smallest payment unit so
// they survive JSON without precision loss.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Kind       AssetKind      `json:"kind"`
	ItemID     uint64         `json:"item_id,omitempty"`
	ItemIDs    []uint64       `json:"item_ids,omitempty"`
	Actor      common.Address `json:"actor"`
	Seller     common.Address `json:"seller,omitempty"`
	Quantity   uint64         `json:"quantity,omitempty"`
	Quantities []uint64       `json:"quantities,omitempty"`
	Price      string         `json:"price,omitempty"`  // unit or base price
	Amount     string         `json:"amount,omitempty"` // value actually moved
	Winner     string         `json:"winner,omitempty"` // auction settlement only
	OccurredAt time.Time      `json:"occurred_at"`
}
