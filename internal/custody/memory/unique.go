// Package memory provides in-process implementations of the custody and
// payment collaborators: a unique-item ledger, a fungible-item ledger, and
// a payment ledger. Local mode and the test suites run the marketplace
// against these; production deployments swap in the evm adapters.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// UniqueLedger holds uniquely-owned items: one owner per identifier, with
// per-item and operator-wide transfer approvals.
type UniqueLedger struct {
	mu             sync.RWMutex
	owners         map[uint64]common.Address
	tokenApprovals map[uint64]common.Address
	operatorAll    map[common.Address]map[common.Address]bool
}

// NewUniqueLedger creates an empty unique-item ledger.
func NewUniqueLedger() *UniqueLedger {
	return &UniqueLedger{
		owners:         make(map[uint64]common.Address),
		tokenApprovals: make(map[uint64]common.Address),
		operatorAll:    make(map[common.Address]map[common.Address]bool),
	}
}

// Mint assigns a fresh item to owner. It overwrites nothing: minting an
// existing identifier is an error.
func (u *UniqueLedger) Mint(itemID uint64, owner common.Address) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.owners[itemID]; ok {
		return fmt.Errorf("custody: mint item %d: already exists", itemID)
	}
	u.owners[itemID] = owner
	return nil
}

// SetApprovalForAll grants or revokes operator's right to move any of
// owner's items.
func (u *UniqueLedger) SetApprovalForAll(owner, operator common.Address, approved bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	ops, ok := u.operatorAll[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		u.operatorAll[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

// Approve grants spender a single-item approval.
func (u *UniqueLedger) Approve(itemID uint64, spender common.Address) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, ok := u.owners[itemID]; !ok {
		return fmt.Errorf("custody: approve item %d: %w", itemID, domain.ErrItemNotFound)
	}
	u.tokenApprovals[itemID] = spender
	return nil
}

func (u *UniqueLedger) OwnerOf(_ context.Context, itemID uint64) (common.Address, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	owner, ok := u.owners[itemID]
	if !ok {
		return common.Address{}, fmt.Errorf("custody: owner of item %d: %w", itemID, domain.ErrItemNotFound)
	}
	return owner, nil
}

func (u *UniqueLedger) BalanceOf(_ context.Context, owner common.Address, itemID uint64) (uint64, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.owners[itemID] == owner {
		return 1, nil
	}
	return 0, nil
}

func (u *UniqueLedger) IsApprovedForAll(_ context.Context, owner, operator common.Address) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.operatorAll[owner][operator], nil
}

func (u *UniqueLedger) GetApproved(_ context.Context, itemID uint64) (common.Address, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if _, ok := u.owners[itemID]; !ok {
		return common.Address{}, fmt.Errorf("custody: approved of item %d: %w", itemID, domain.ErrItemNotFound)
	}
	return u.tokenApprovals[itemID], nil
}

// Transfer moves the item to a new owner. The single-item approval is
// cleared on transfer, as the previous owner granted it. The quantity
// argument is ignored for unique items.
func (u *UniqueLedger) Transfer(_ context.Context, from, to common.Address, itemID uint64, _ uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.transferLocked(from, to, itemID)
}

// BatchTransfer moves several items between the same pair of owners. It is
// atomic: a failure on any item undoes the items already moved.
func (u *UniqueLedger) BatchTransfer(_ context.Context, from, to common.Address, itemIDs []uint64, _ []uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i, id := range itemIDs {
		if err := u.transferLocked(from, to, id); err != nil {
			for j := 0; j < i; j++ {
				u.owners[itemIDs[j]] = from
			}
			return err
		}
	}
	return nil
}

func (u *UniqueLedger) transferLocked(from, to common.Address, itemID uint64) error {
	owner, ok := u.owners[itemID]
	if !ok {
		return fmt.Errorf("custody: transfer item %d: %w", itemID, domain.ErrItemNotFound)
	}
	if owner != from {
		return fmt.Errorf("custody: transfer item %d: %w", itemID, domain.ErrNotOwner)
	}
	u.owners[itemID] = to
	delete(u.tokenApprovals, itemID)
	return nil
}

// Compile-time interface check.
var _ domain.CustodyAdapter = (*UniqueLedger)(nil)
