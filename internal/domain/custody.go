package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CustodyAdapter is the marketplace's view of an asset-custody contract.
// The ledger never holds assets itself; it queries ownership and approval
// state here and instructs the adapter to move assets at settlement.
//
// Every method can fail. Failures are terminal for the invoking operation
// and are propagated wrapped in ErrCustody where they abort a settlement;
// the ledger never retries, since a rejection reflects adapter-side
// authorization state that cannot change mid-operation.
//
// For unique assets, quantity arguments are ignored and OwnerOf/GetApproved
// are meaningful. For fungible assets, OwnerOf and GetApproved have no
// single answer and return ErrItemNotFound; BalanceOf and IsApprovedForAll
// are the relevant queries.
type CustodyAdapter interface {
	OwnerOf(ctx context.Context, itemID uint64) (common.Address, error)
	BalanceOf(ctx context.Context, owner common.Address, itemID uint64) (uint64, error)
	IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error)
	GetApproved(ctx context.Context, itemID uint64) (common.Address, error)
	Transfer(ctx context.Context, from, to common.Address, itemID uint64, quantity uint64) error
	BatchTransfer(ctx context.Context, from, to common.Address, itemIDs []uint64, quantities []uint64) error
}

// PaymentLedger is the marketplace's view of the payment currency. The
// ledger moves remitted funds into the marketplace's own escrow account at
// the start of a value-moving operation and out of it (to the payee, or
// back to the payer) before the operation returns; funds only rest in
// escrow across operations for active auction bids.
type PaymentLedger interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
}
