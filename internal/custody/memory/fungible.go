package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// FungibleLedger holds fungible-quantity items: each identifier carries a
// divisible balance per holder.
type FungibleLedger struct {
	mu          sync.RWMutex
	balances    map[uint64]map[common.Address]uint64
	operatorAll map[common.Address]map[common.Address]bool
}

// NewFungibleLedger creates an empty fungible-item ledger.
func NewFungibleLedger() *FungibleLedger {
	return &FungibleLedger{
		balances:    make(map[uint64]map[common.Address]uint64),
		operatorAll: make(map[common.Address]map[common.Address]bool),
	}
}

// Mint credits quantity of itemID to owner.
func (f *FungibleLedger) Mint(itemID uint64, owner common.Address, quantity uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	holders, ok := f.balances[itemID]
	if !ok {
		holders = make(map[common.Address]uint64)
		f.balances[itemID] = holders
	}
	holders[owner] += quantity
}

// SetApprovalForAll grants or revokes operator's right to move any of
// owner's balances.
func (f *FungibleLedger) SetApprovalForAll(owner, operator common.Address, approved bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ops, ok := f.operatorAll[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		f.operatorAll[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

// OwnerOf has no single answer for a fungible identifier.
func (f *FungibleLedger) OwnerOf(_ context.Context, itemID uint64) (common.Address, error) {
	return common.Address{}, fmt.Errorf("custody: owner of fungible item %d: %w", itemID, domain.ErrItemNotFound)
}

// GetApproved has no single answer for a fungible identifier.
func (f *FungibleLedger) GetApproved(_ context.Context, itemID uint64) (common.Address, error) {
	return common.Address{}, fmt.Errorf("custody: approved of fungible item %d: %w", itemID, domain.ErrItemNotFound)
}

func (f *FungibleLedger) BalanceOf(_ context.Context, owner common.Address, itemID uint64) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.balances[itemID][owner], nil
}

func (f *FungibleLedger) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.operatorAll[owner][operator], nil
}

func (f *FungibleLedger) Transfer(_ context.Context, from, to common.Address, itemID uint64, quantity uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.transferLocked(from, to, itemID, quantity)
}

// BatchTransfer moves several balances between the same pair of holders.
// Atomic: a failure on any item undoes the balances already moved.
func (f *FungibleLedger) BatchTransfer(_ context.Context, from, to common.Address, itemIDs []uint64, quantities []uint64) error {
	if len(itemIDs) != len(quantities) {
		return fmt.Errorf("custody: batch transfer: %w", domain.ErrBatchMismatch)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, id := range itemIDs {
		if err := f.transferLocked(from, to, id, quantities[i]); err != nil {
			for j := 0; j < i; j++ {
				// Reversal of a completed transfer cannot fail.
				_ = f.transferLocked(to, from, itemIDs[j], quantities[j])
			}
			return err
		}
	}
	return nil
}

func (f *FungibleLedger) transferLocked(from, to common.Address, itemID uint64, quantity uint64) error {
	holders, ok := f.balances[itemID]
	if !ok {
		return fmt.Errorf("custody: transfer item %d: %w", itemID, domain.ErrItemNotFound)
	}
	if holders[from] < quantity {
		return fmt.Errorf("custody: transfer item %d: balance %d below quantity %d: %w", itemID, holders[from], quantity, domain.ErrInsufficientFunds)
	}
	holders[from] -= quantity
	holders[to] += quantity
	return nil
}

// Compile-time interface check.
var _ domain.CustodyAdapter = (*FungibleLedger)(nil)
