package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// CreateListing records a new active fixed-price listing for itemID.
// Quantity must be 0 for unique items and positive for fungible ones. The
// caller must own the item (unique) or hold at least quantity of it
// (fungible), and must have approved the marketplace operator for transfer;
// nothing is escrowed at listing time.
func (m *Marketplace) CreateListing(ctx context.Context, itemID uint64, quantity uint64, unitPrice *big.Int, kind domain.AssetKind, caller common.Address) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !kind.Valid() {
		return domain.Listing{}, fmt.Errorf("market: create listing: %w", domain.ErrInvalidKind)
	}
	if unitPrice == nil || unitPrice.Sign() <= 0 {
		return domain.Listing{}, fmt.Errorf("market: create listing: %w", domain.ErrInvalidPrice)
	}
	if m.auctionIndex.contains(itemID) {
		return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, domain.ErrAuctionConflict)
	}
	if m.listingIndex.contains(itemID) {
		return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, domain.ErrAlreadyListed)
	}

	switch kind {
	case domain.KindUnique:
		if quantity != 0 {
			return domain.Listing{}, fmt.Errorf("market: create listing: unique quantity must be 0: %w", domain.ErrInvalidQuantity)
		}
		owner, err := m.unique.OwnerOf(ctx, itemID)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, err)
		}
		if owner != caller {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, domain.ErrNotOwner)
		}
		approved, err := m.uniqueApproved(ctx, caller, itemID)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, err)
		}
		if !approved {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, domain.ErrNotApproved)
		}

	case domain.KindFungible:
		if quantity == 0 {
			return domain.Listing{}, fmt.Errorf("market: create listing: fungible quantity must be positive: %w", domain.ErrInvalidQuantity)
		}
		approved, err := m.fungible.IsApprovedForAll(ctx, caller, m.operator)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, err)
		}
		if !approved {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, domain.ErrNotApproved)
		}
		balance, err := m.fungible.BalanceOf(ctx, caller, itemID)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: %w", itemID, err)
		}
		if balance < quantity {
			return domain.Listing{}, fmt.Errorf("market: create listing item %d: balance %d below quantity %d: %w", itemID, balance, quantity, domain.ErrInvalidQuantity)
		}
	}

	l := &domain.Listing{
		ItemID:    itemID,
		UnitPrice: new(big.Int).Set(unitPrice),
		Seller:    caller,
		Quantity:  quantity,
		Kind:      kind,
		Active:    true,
		CreatedAt: m.now().UTC(),
	}
	m.listings[itemID] = l
	m.listingIndex.add(itemID)

	return copyListing(l), nil
}

// PurchaseResult reports what a purchase settled.
type PurchaseResult struct {
	Trade     domain.Trade
	Remaining uint64 // remaining listed quantity, 0 when the listing closed
	Closed    bool
}

// Purchase buys from the active listing for itemID. quantity must be 0 for
// a unique listing and within the remaining quantity for a fungible one.
// payment is the amount the caller remits; the seller receives exactly the
// required total and any surplus returns to the caller within this call.
func (m *Marketplace) Purchase(ctx context.Context, itemID uint64, quantity uint64, payment *big.Int, caller common.Address) (PurchaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[itemID]
	if !ok {
		return PurchaseResult{}, fmt.Errorf("market: purchase item %d: %w", itemID, domain.ErrNotListed)
	}
	if caller == l.Seller {
		return PurchaseResult{}, fmt.Errorf("market: purchase item %d: %w", itemID, domain.ErrIsOwner)
	}

	required, txQuantity, err := m.purchaseTerms(ctx, l, quantity)
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("market: purchase item %d: %w", itemID, err)
	}
	if payment == nil || payment.Cmp(required) < 0 {
		return PurchaseResult{}, fmt.Errorf("market: purchase item %d: %w", itemID, domain.ErrInsufficientPayment)
	}

	err = m.execute(ctx, settlement{
		kind:       l.Kind,
		itemIDs:    []uint64{itemID},
		quantities: []uint64{txQuantity},
		from:       l.Seller,
		to:         caller,
		payer:      caller,
		payee:      l.Seller,
		required:   required,
		payment:    payment,
	})
	if err != nil {
		return PurchaseResult{}, fmt.Errorf("market: purchase item %d: %w", itemID, err)
	}

	res := PurchaseResult{
		Trade: domain.Trade{
			ItemID:    itemID,
			Kind:      l.Kind,
			Seller:    l.Seller,
			Buyer:     caller,
			Quantity:  quantity,
			Amount:    required,
			Source:    domain.TradeSourcePurchase,
			CreatedAt: m.now().UTC(),
		},
	}

	if l.Kind == domain.KindFungible {
		l.Quantity -= quantity
		res.Remaining = l.Quantity
	}
	if l.Kind == domain.KindUnique || l.Quantity == 0 {
		l.Active = false
		delete(m.listings, itemID)
		m.listingIndex.remove(itemID)
		res.Closed = true
	}

	return res, nil
}

// purchaseTerms validates the requested quantity against the listing, checks
// that the seller's approval still holds, and returns the required payment
// and the quantity to pass to the custody adapter.
func (m *Marketplace) purchaseTerms(ctx context.Context, l *domain.Listing, quantity uint64) (*big.Int, uint64, error) {
	switch l.Kind {
	case domain.KindUnique:
		if quantity != 0 {
			return nil, 0, domain.ErrInvalidQuantity
		}
		approved, err := m.uniqueApproved(ctx, l.Seller, l.ItemID)
		if err != nil {
			return nil, 0, err
		}
		if !approved {
			return nil, 0, domain.ErrNotApproved
		}
		return new(big.Int).Set(l.UnitPrice), 1, nil

	case domain.KindFungible:
		if quantity == 0 {
			return nil, 0, domain.ErrInvalidQuantity
		}
		if quantity > l.Quantity {
			return nil, 0, domain.ErrQuantityExceeded
		}
		approved, err := m.fungible.IsApprovedForAll(ctx, l.Seller, m.operator)
		if err != nil {
			return nil, 0, err
		}
		if !approved {
			return nil, 0, domain.ErrNotApproved
		}
		required := new(big.Int).Mul(l.UnitPrice, new(big.Int).SetUint64(quantity))
		return required, quantity, nil
	}
	return nil, 0, domain.ErrInvalidKind
}

// BatchPurchaseResult reports a settled batch purchase.
type BatchPurchaseResult struct {
	Trades []domain.Trade
	Seller common.Address
	Total  *big.Int
}

// BatchPurchase buys from several listings of one seller in a single
// batched custody transfer followed by one payment of the summed total.
// All items must share the seller of itemIDs[0] and the same asset kind,
// and every precondition is checked for every item before anything moves;
// any failure rejects the whole batch.
func (m *Marketplace) BatchPurchase(ctx context.Context, itemIDs []uint64, quantities []uint64, payment *big.Int, caller common.Address) (BatchPurchaseResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(itemIDs) == 0 || len(itemIDs) != len(quantities) {
		return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase: %w", domain.ErrBatchMismatch)
	}
	seen := make(map[uint64]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase: duplicate item %d: %w", id, domain.ErrBatchMismatch)
		}
		seen[id] = true
	}

	first, ok := m.listings[itemIDs[0]]
	if !ok {
		return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase item %d: %w", itemIDs[0], domain.ErrNotListed)
	}
	seller := first.Seller
	kind := first.Kind
	if caller == seller {
		return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase: %w", domain.ErrIsOwner)
	}

	total := new(big.Int)
	txQuantities := make([]uint64, len(itemIDs))
	batch := make([]*domain.Listing, len(itemIDs))
	for i, id := range itemIDs {
		l, ok := m.listings[id]
		if !ok {
			return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase item %d: %w", id, domain.ErrNotListed)
		}
		if l.Seller != seller {
			return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase item %d: %w", id, domain.ErrSellerMismatch)
		}
		if l.Kind != kind {
			return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase item %d: mixed asset kinds: %w", id, domain.ErrBatchMismatch)
		}
		required, txQuantity, err := m.purchaseTerms(ctx, l, quantities[i])
		if err != nil {
			return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase item %d: %w", id, err)
		}
		total.Add(total, required)
		txQuantities[i] = txQuantity
		batch[i] = l
	}
	if payment == nil || payment.Cmp(total) < 0 {
		return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase: %w", domain.ErrInsufficientPayment)
	}

	err := m.execute(ctx, settlement{
		kind:       kind,
		itemIDs:    itemIDs,
		quantities: txQuantities,
		from:       seller,
		to:         caller,
		payer:      caller,
		payee:      seller,
		required:   total,
		payment:    payment,
	})
	if err != nil {
		return BatchPurchaseResult{}, fmt.Errorf("market: batch purchase: %w", err)
	}

	now := m.now().UTC()
	res := BatchPurchaseResult{Seller: seller, Total: total}
	for i, l := range batch {
		amount := new(big.Int).Set(l.UnitPrice)
		if l.Kind == domain.KindFungible {
			amount.Mul(amount, new(big.Int).SetUint64(quantities[i]))
			l.Quantity -= quantities[i]
		}
		res.Trades = append(res.Trades, domain.Trade{
			ItemID:    l.ItemID,
			Kind:      l.Kind,
			Seller:    seller,
			Buyer:     caller,
			Quantity:  quantities[i],
			Amount:    amount,
			Source:    domain.TradeSourceBatchPurchase,
			CreatedAt: now,
		})
		if l.Kind == domain.KindUnique || l.Quantity == 0 {
			l.Active = false
			delete(m.listings, l.ItemID)
			m.listingIndex.remove(l.ItemID)
		}
	}

	return res, nil
}

// CancelListing deactivates the caller's listing for itemID. Nothing was
// escrowed at listing time, so no asset or payment moves.
func (m *Marketplace) CancelListing(ctx context.Context, itemID uint64, kind domain.AssetKind, caller common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.listings[itemID]
	if !ok || l.Kind != kind {
		return fmt.Errorf("market: cancel listing item %d: %w", itemID, domain.ErrNotListed)
	}
	if l.Seller != caller {
		return fmt.Errorf("market: cancel listing item %d: %w", itemID, domain.ErrNotOwner)
	}
	if kind == domain.KindUnique {
		if _, err := m.unique.OwnerOf(ctx, itemID); err != nil {
			return fmt.Errorf("market: cancel listing item %d: %w", itemID, err)
		}
	}

	l.Active = false
	delete(m.listings, itemID)
	m.listingIndex.remove(itemID)
	return nil
}

// uniqueApproved reports whether the marketplace operator may move the
// unique item: either the owner approved the operator for all items or the
// item carries a single-item approval for the operator.
func (m *Marketplace) uniqueApproved(ctx context.Context, owner common.Address, itemID uint64) (bool, error) {
	all, err := m.unique.IsApprovedForAll(ctx, owner, m.operator)
	if err != nil {
		return false, err
	}
	if all {
		return true, nil
	}
	approved, err := m.unique.GetApproved(ctx, itemID)
	if err != nil {
		return false, err
	}
	return approved == m.operator, nil
}
