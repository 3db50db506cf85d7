// Package evm implements the custody adapter interface over on-chain
// ERC-721 and ERC-1155 contracts via an Ethereum JSON-RPC endpoint. Reads
// are eth_call queries; transfers are signed transactions sent from the
// marketplace operator key and confirmed before the adapter reports
// success, so a rejected or reverted transfer surfaces as an operation
// abort exactly like any other custody failure.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// contractCaller wraps one custody contract with the plumbing shared by the
// unique and fungible adapters: packed eth_call reads and signed, mined
// transaction writes.
type contractCaller struct {
	client   *ethclient.Client
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	sender   common.Address
	chainID  *big.Int
}

func newContractCaller(client *ethclient.Client, contract common.Address, abiJSON string, key *ecdsa.PrivateKey, chainID *big.Int) (*contractCaller, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("evm: parse abi: %w", err)
	}
	return &contractCaller{
		client:   client,
		contract: contract,
		abi:      parsed,
		key:      key,
		sender:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
	}, nil
}

// call performs an eth_call against the contract and unpacks the results.
func (c *contractCaller) call(ctx context.Context, results *[]interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("evm: pack %s: %w", method, err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("evm: call %s: %w", method, err)
	}

	unpacked, err := c.abi.Unpack(method, out)
	if err != nil {
		return fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	*results = unpacked
	return nil
}

// transact signs and sends a state-changing call from the operator key and
// waits for it to be mined. A reverted transaction is an error.
func (c *contractCaller) transact(ctx context.Context, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("evm: pack %s: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.sender)
	if err != nil {
		return fmt.Errorf("evm: nonce for %s: %w", c.sender.Hex(), err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("evm: suggest gas price: %w", err)
	}
	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.sender,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("evm: estimate gas for %s: %w", method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return fmt.Errorf("evm: sign %s: %w", method, err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("evm: send %s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return fmt.Errorf("evm: wait mined %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("evm: %s reverted in tx %s", method, signed.Hash().Hex())
	}
	return nil
}
