package memory

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// PaymentLedger tracks payment-currency balances per account, in the
// smallest payment unit.
type PaymentLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

// NewPaymentLedger creates an empty payment ledger.
func NewPaymentLedger() *PaymentLedger {
	return &PaymentLedger{balances: make(map[common.Address]*big.Int)}
}

// Credit adds amount to account's balance.
func (p *PaymentLedger) Credit(account common.Address, amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	bal, ok := p.balances[account]
	if !ok {
		bal = new(big.Int)
		p.balances[account] = bal
	}
	bal.Add(bal, amount)
}

func (p *PaymentLedger) BalanceOf(_ context.Context, account common.Address) (*big.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	bal, ok := p.balances[account]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(bal), nil
}

// Transfer moves amount between accounts, failing without effect when the
// source balance is insufficient.
func (p *PaymentLedger) Transfer(_ context.Context, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("payments: transfer: %w", domain.ErrInvalidPrice)
	}
	if amount.Sign() == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	src, ok := p.balances[from]
	if !ok || src.Cmp(amount) < 0 {
		return fmt.Errorf("payments: transfer from %s: %w", from.Hex(), domain.ErrInsufficientFunds)
	}
	dst, ok := p.balances[to]
	if !ok {
		dst = new(big.Int)
		p.balances[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// Compile-time interface check.
var _ domain.PaymentLedger = (*PaymentLedger)(nil)
