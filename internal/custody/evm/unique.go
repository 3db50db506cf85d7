package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// Minimal ERC-721 surface the adapter needs.
const erc721ABI = `[
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getApproved","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"safeTransferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

// UniqueAdapter is the on-chain custody adapter for an ERC-721 contract.
type UniqueAdapter struct {
	caller *contractCaller
}

// NewUniqueAdapter creates an adapter over the ERC-721 contract at the
// given address. key is the marketplace operator key transfers are signed
// with.
func NewUniqueAdapter(client *ethclient.Client, contract common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*UniqueAdapter, error) {
	caller, err := newContractCaller(client, contract, erc721ABI, key, chainID)
	if err != nil {
		return nil, err
	}
	return &UniqueAdapter{caller: caller}, nil
}

// OwnerOf returns the current owner of itemID. ERC-721 reverts the call for
// a nonexistent token; that revert is reported as ErrItemNotFound.
func (a *UniqueAdapter) OwnerOf(ctx context.Context, itemID uint64) (common.Address, error) {
	var results []interface{}
	if err := a.caller.call(ctx, &results, "ownerOf", new(big.Int).SetUint64(itemID)); err != nil {
		return common.Address{}, fmt.Errorf("evm: owner of item %d: %w", itemID, domain.ErrItemNotFound)
	}
	owner, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("evm: owner of item %d: unexpected result type %T", itemID, results[0])
	}
	return owner, nil
}

// BalanceOf reports 1 when owner holds itemID, else 0.
func (a *UniqueAdapter) BalanceOf(ctx context.Context, owner common.Address, itemID uint64) (uint64, error) {
	actual, err := a.OwnerOf(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if actual == owner {
		return 1, nil
	}
	return 0, nil
}

func (a *UniqueAdapter) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	var results []interface{}
	if err := a.caller.call(ctx, &results, "isApprovedForAll", owner, operator); err != nil {
		return false, err
	}
	approved, ok := results[0].(bool)
	if !ok {
		return false, fmt.Errorf("evm: isApprovedForAll: unexpected result type %T", results[0])
	}
	return approved, nil
}

func (a *UniqueAdapter) GetApproved(ctx context.Context, itemID uint64) (common.Address, error) {
	var results []interface{}
	if err := a.caller.call(ctx, &results, "getApproved", new(big.Int).SetUint64(itemID)); err != nil {
		return common.Address{}, fmt.Errorf("evm: approved of item %d: %w", itemID, domain.ErrItemNotFound)
	}
	approved, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("evm: approved of item %d: unexpected result type %T", itemID, results[0])
	}
	return approved, nil
}

// Transfer moves itemID from its owner to the recipient. The quantity
// argument is ignored for unique items.
func (a *UniqueAdapter) Transfer(ctx context.Context, from, to common.Address, itemID uint64, _ uint64) error {
	return a.caller.transact(ctx, "safeTransferFrom", from, to, new(big.Int).SetUint64(itemID))
}

// BatchTransfer moves several items with one transaction per item; ERC-721
// has no native batch call. Items already moved are not rolled back on a
// mid-batch failure, so callers settle batches against fungible contracts
// where atomicity is native; the marketplace core restricts batch
// purchases of unique items to this sequential path knowingly.
func (a *UniqueAdapter) BatchTransfer(ctx context.Context, from, to common.Address, itemIDs []uint64, _ []uint64) error {
	for _, id := range itemIDs {
		if err := a.Transfer(ctx, from, to, id, 1); err != nil {
			return fmt.Errorf("evm: batch transfer item %d: %w", id, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.CustodyAdapter = (*UniqueAdapter)(nil)
