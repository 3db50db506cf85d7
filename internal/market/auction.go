package market

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// CreateAuction opens a timed ascending-bid auction for itemID running from
// now until now+duration. Ownership, balance, and approval rules mirror
// CreateListing for both kinds; the asset is not escrowed at creation. If
// the caller already has an active listing for the item, it is implicitly
// cancelled so a seller can convert a listing into an auction in one call;
// someone else's listing blocks auction creation instead.
func (m *Marketplace) CreateAuction(ctx context.Context, itemID uint64, basePrice *big.Int, duration time.Duration, quantity uint64, kind domain.AssetKind, caller common.Address) (domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !kind.Valid() {
		return domain.Auction{}, fmt.Errorf("market: create auction: %w", domain.ErrInvalidKind)
	}
	if basePrice == nil || basePrice.Sign() <= 0 {
		return domain.Auction{}, fmt.Errorf("market: create auction: %w", domain.ErrInvalidPrice)
	}
	if duration <= 0 {
		return domain.Auction{}, fmt.Errorf("market: create auction: %w", domain.ErrInvalidDuration)
	}
	if m.auctionIndex.contains(itemID) {
		return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, domain.ErrAuctionConflict)
	}

	switch kind {
	case domain.KindUnique:
		if quantity != 0 {
			return domain.Auction{}, fmt.Errorf("market: create auction: unique quantity must be 0: %w", domain.ErrInvalidQuantity)
		}
		owner, err := m.unique.OwnerOf(ctx, itemID)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, err)
		}
		if owner != caller {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, domain.ErrNotOwner)
		}
		approved, err := m.uniqueApproved(ctx, caller, itemID)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, err)
		}
		if !approved {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, domain.ErrNotApproved)
		}

	case domain.KindFungible:
		if quantity == 0 {
			return domain.Auction{}, fmt.Errorf("market: create auction: fungible quantity must be positive: %w", domain.ErrInvalidQuantity)
		}
		approved, err := m.fungible.IsApprovedForAll(ctx, caller, m.operator)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, err)
		}
		if !approved {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, domain.ErrNotApproved)
		}
		balance, err := m.fungible.BalanceOf(ctx, caller, itemID)
		if err != nil {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, err)
		}
		if balance < quantity {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: balance %d below quantity %d: %w", itemID, balance, quantity, domain.ErrInvalidQuantity)
		}
	}

	// A listing by the caller converts into this auction; a listing by
	// anyone else keeps the item off the auction block.
	if l, ok := m.listings[itemID]; ok {
		if l.Seller != caller {
			return domain.Auction{}, fmt.Errorf("market: create auction item %d: %w", itemID, domain.ErrAlreadyListed)
		}
		l.Active = false
		delete(m.listings, itemID)
		m.listingIndex.remove(itemID)
	}

	start := m.now().UTC()
	a := &domain.Auction{
		ItemID:     itemID,
		BasePrice:  new(big.Int).Set(basePrice),
		Seller:     caller,
		HighestBid: new(big.Int),
		StartTime:  start,
		EndTime:    start.Add(duration),
		Quantity:   quantity,
		Kind:       kind,
		Active:     true,
	}
	m.auctions[itemID] = a
	m.auctionIndex.add(itemID)

	return copyAuction(a), nil
}

// BidResult reports an accepted bid and the refund it displaced.
type BidResult struct {
	Auction        domain.Auction
	PreviousBidder common.Address
	PreviousBid    *big.Int // nil when there was no previous bid
}

// Bid places value on the active auction for itemID. The bid must strictly
// exceed both the base price and the current highest bid. The full value is
// drawn from the bidder into escrow; the displaced bidder is refunded in
// full before the new bid is recorded, so the escrow never holds two bids
// for one auction. A refund that cannot be delivered fails the whole call.
func (m *Marketplace) Bid(ctx context.Context, itemID uint64, value *big.Int, bidder common.Address) (BidResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[itemID]
	if !ok {
		return BidResult{}, fmt.Errorf("market: bid item %d: %w", itemID, domain.ErrAuctionNotFound)
	}

	now := m.now().UTC()
	if now.Before(a.StartTime) {
		return BidResult{}, fmt.Errorf("market: bid item %d: %w", itemID, domain.ErrAuctionNotStarted)
	}
	if now.After(a.EndTime) {
		return BidResult{}, fmt.Errorf("market: bid item %d: %w", itemID, domain.ErrAuctionEnded)
	}
	if a.Kind == domain.KindUnique && m.listingIndex.contains(itemID) {
		return BidResult{}, fmt.Errorf("market: bid item %d: %w", itemID, domain.ErrAlreadyListed)
	}
	if value == nil || value.Cmp(a.BasePrice) <= 0 || value.Cmp(a.HighestBid) <= 0 {
		return BidResult{}, fmt.Errorf("market: bid item %d: %w", itemID, domain.ErrBidTooLow)
	}

	if err := m.payments.Transfer(ctx, bidder, m.operator, value); err != nil {
		return BidResult{}, fmt.Errorf("market: bid item %d: collect bid: %w", itemID, err)
	}

	res := BidResult{}
	if a.HasBid() {
		refund := new(big.Int).Set(a.HighestBid)
		if err := m.payments.Transfer(ctx, m.operator, a.HighestBidder, refund); err != nil {
			// The displaced bidder must be made whole before the new bid can
			// stand; undo the collection and surface the failure.
			if undoErr := m.payments.Transfer(ctx, m.operator, bidder, value); undoErr != nil {
				return BidResult{}, fmt.Errorf("market: bid item %d: undo collection after refund failure: %w (refund: %v)", itemID, undoErr, err)
			}
			return BidResult{}, fmt.Errorf("market: bid item %d: refund previous bidder: %w", itemID, err)
		}
		res.PreviousBidder = a.HighestBidder
		res.PreviousBid = refund
	}

	a.HighestBid = new(big.Int).Set(value)
	a.HighestBidder = bidder
	res.Auction = copyAuction(a)

	return res, nil
}

// SettleResult reports a finalized auction.
type SettleResult struct {
	Auction   domain.Auction
	Winner    common.Address
	Amount    *big.Int // winning bid, nil when the auction had no bids
	HasWinner bool
}

// Settle finalizes the auction for itemID after its end time. Only the
// seller may settle. With a winner, the asset moves from seller to winner
// and the winning bid moves from escrow to the seller; with no bids the
// asset never left the seller, so nothing moves. The record is deleted
// either way; settlement is terminal and a second call reports the auction
// as absent.
func (m *Marketplace) Settle(ctx context.Context, itemID uint64, caller common.Address) (SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[itemID]
	if !ok {
		return SettleResult{}, fmt.Errorf("market: settle item %d: %w", itemID, domain.ErrAuctionNotFound)
	}
	if a.Seller != caller {
		return SettleResult{}, fmt.Errorf("market: settle item %d: %w", itemID, domain.ErrNotOwner)
	}
	if !m.now().UTC().After(a.EndTime) {
		return SettleResult{}, fmt.Errorf("market: settle item %d: %w", itemID, domain.ErrAuctionRunning)
	}

	// Deactivate before any external call so the settlement cannot be
	// observed or re-entered half done.
	a.Active = false

	res := SettleResult{}
	if a.HasBid() {
		quantity := a.Quantity
		if a.Kind == domain.KindUnique {
			quantity = 1
		}
		if err := m.adapter(a.Kind).Transfer(ctx, a.Seller, a.HighestBidder, itemID, quantity); err != nil {
			a.Active = true
			return SettleResult{}, fmt.Errorf("market: settle item %d: %w: %v", itemID, domain.ErrCustody, err)
		}
		if err := m.payments.Transfer(ctx, m.operator, a.Seller, a.HighestBid); err != nil {
			if rollbackErr := m.adapter(a.Kind).Transfer(ctx, a.HighestBidder, a.Seller, itemID, quantity); rollbackErr != nil {
				return SettleResult{}, fmt.Errorf("market: settle item %d: custody rollback after payout failure: %w (payout: %v)", itemID, rollbackErr, err)
			}
			a.Active = true
			return SettleResult{}, fmt.Errorf("market: settle item %d: pay seller: %w", itemID, err)
		}
		res.Winner = a.HighestBidder
		res.Amount = new(big.Int).Set(a.HighestBid)
		res.HasWinner = true
	}

	res.Auction = copyAuction(a)
	delete(m.auctions, itemID)
	m.auctionIndex.remove(itemID)

	return res, nil
}

// CancelResult reports a cancelled auction and any refund it issued.
type CancelResult struct {
	Auction  domain.Auction
	Refunded common.Address
	Refund   *big.Int // nil when no bid was outstanding
}

// Cancel withdraws the auction for itemID. Only the seller may cancel, at
// any time before settlement. An outstanding highest bid is refunded in
// full; no asset moves. The record is deleted; cancellation is terminal.
func (m *Marketplace) Cancel(ctx context.Context, itemID uint64, caller common.Address) (CancelResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.auctions[itemID]
	if !ok {
		return CancelResult{}, fmt.Errorf("market: cancel auction item %d: %w", itemID, domain.ErrAuctionNotFound)
	}
	if a.Seller != caller {
		return CancelResult{}, fmt.Errorf("market: cancel auction item %d: %w", itemID, domain.ErrNotOwner)
	}

	res := CancelResult{}
	if a.HasBid() {
		refund := new(big.Int).Set(a.HighestBid)
		if err := m.payments.Transfer(ctx, m.operator, a.HighestBidder, refund); err != nil {
			return CancelResult{}, fmt.Errorf("market: cancel auction item %d: refund bidder: %w", itemID, err)
		}
		res.Refunded = a.HighestBidder
		res.Refund = refund
	}

	a.Active = false
	res.Auction = copyAuction(a)
	delete(m.auctions, itemID)
	m.auctionIndex.remove(itemID)

	return res, nil
}
