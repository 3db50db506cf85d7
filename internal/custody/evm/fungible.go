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

// Minimal ERC-1155 surface the adapter needs.
const erc1155ABI = `[
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"isApprovedForAll","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"safeTransferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"id","type":"uint256"},{"name":"amount","type":"uint256"},{"name":"data","type":"bytes"}],"outputs":[]},
	{"name":"safeBatchTransferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"ids","type":"uint256[]"},{"name":"amounts","type":"uint256[]"},{"name":"data","type":"bytes"}],"outputs":[]}
]`

// FungibleAdapter is the on-chain custody adapter for an ERC-1155 contract.
type FungibleAdapter struct {
	caller *contractCaller
}

// NewFungibleAdapter creates an adapter over the ERC-1155 contract at the
// given address. key is the marketplace operator key transfers are signed
// with.
func NewFungibleAdapter(client *ethclient.Client, contract common.Address, key *ecdsa.PrivateKey, chainID *big.Int) (*FungibleAdapter, error) {
	caller, err := newContractCaller(client, contract, erc1155ABI, key, chainID)
	if err != nil {
		return nil, err
	}
	return &FungibleAdapter{caller: caller}, nil
}

// OwnerOf has no single answer for a fungible identifier.
func (a *FungibleAdapter) OwnerOf(_ context.Context, itemID uint64) (common.Address, error) {
	return common.Address{}, fmt.Errorf("evm: owner of fungible item %d: %w", itemID, domain.ErrItemNotFound)
}

// GetApproved has no single answer for a fungible identifier.
func (a *FungibleAdapter) GetApproved(_ context.Context, itemID uint64) (common.Address, error) {
	return common.Address{}, fmt.Errorf("evm: approved of fungible item %d: %w", itemID, domain.ErrItemNotFound)
}

func (a *FungibleAdapter) BalanceOf(ctx context.Context, owner common.Address, itemID uint64) (uint64, error) {
	var results []interface{}
	if err := a.caller.call(ctx, &results, "balanceOf", owner, new(big.Int).SetUint64(itemID)); err != nil {
		return 0, err
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("evm: balance of item %d: unexpected result type %T", itemID, results[0])
	}
	if !balance.IsUint64() {
		return 0, fmt.Errorf("evm: balance of item %d overflows uint64", itemID)
	}
	return balance.Uint64(), nil
}

func (a *FungibleAdapter) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
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

func (a *FungibleAdapter) Transfer(ctx context.Context, from, to common.Address, itemID uint64, quantity uint64) error {
	return a.caller.transact(ctx, "safeTransferFrom",
		from, to,
		new(big.Int).SetUint64(itemID),
		new(big.Int).SetUint64(quantity),
		[]byte{},
	)
}

// BatchTransfer uses the contract's native batch call, so the whole batch
// lands or reverts atomically on chain.
func (a *FungibleAdapter) BatchTransfer(ctx context.Context, from, to common.Address, itemIDs []uint64, quantities []uint64) error {
	if len(itemIDs) != len(quantities) {
		return fmt.Errorf("evm: batch transfer: %w", domain.ErrBatchMismatch)
	}
	ids := make([]*big.Int, len(itemIDs))
	amounts := make([]*big.Int, len(quantities))
	for i := range itemIDs {
		ids[i] = new(big.Int).SetUint64(itemIDs[i])
		amounts[i] = new(big.Int).SetUint64(quantities[i])
	}
	return a.caller.transact(ctx, "safeBatchTransferFrom", from, to, ids, amounts, []byte{})
}

// Compile-time interface check.
var _ domain.CustodyAdapter = (*FungibleAdapter)(nil)
