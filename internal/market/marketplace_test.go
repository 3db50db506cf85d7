package market

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/custody/memory"
	"github.com/DevKavathiya11/marketd/internal/domain"
)

var (
	operator = common.BytesToAddress([]byte{0x10})
	seller   = common.BytesToAddress([]byte{0x11})
	buyer    = common.BytesToAddress([]byte{0x12})
	buyer2   = common.BytesToAddress([]byte{0x13})
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture bundles a marketplace with its in-memory collaborators.
type fixture struct {
	m        *Marketplace
	unique   *memory.UniqueLedger
	fungible *memory.FungibleLedger
	payments *memory.PaymentLedger
	clock    *fakeClock
}

func newFixture() *fixture {
	f := &fixture{
		unique:   memory.NewUniqueLedger(),
		fungible: memory.NewFungibleLedger(),
		payments: memory.NewPaymentLedger(),
		clock:    newFakeClock(),
	}
	f.m = New(f.unique, f.fungible, f.payments, operator, WithClock(f.clock.Now))
	return f
}

// mintUnique gives owner a unique item with marketplace approval.
func (f *fixture) mintUnique(itemID uint64, owner common.Address) {
	if err := f.unique.Mint(itemID, owner); err != nil {
		panic(err)
	}
	f.unique.SetApprovalForAll(owner, operator, true)
}

// mintFungible gives owner a fungible balance with marketplace approval.
func (f *fixture) mintFungible(itemID uint64, owner common.Address, quantity uint64) {
	f.fungible.Mint(itemID, owner, quantity)
	f.fungible.SetApprovalForAll(owner, operator, true)
}

func (f *fixture) fund(account common.Address, amount int64) {
	f.payments.Credit(account, big.NewInt(amount))
}

func (f *fixture) balance(account common.Address) int64 {
	bal, err := f.payments.BalanceOf(context.Background(), account)
	if err != nil {
		panic(err)
	}
	return bal.Int64()
}

// blockingPayments wraps a payment ledger and rejects transfers into a
// blocked account, simulating a payee that cannot receive funds.
type blockingPayments struct {
	domain.PaymentLedger
	blocked common.Address
}

var errBlockedPayee = errors.New("payee cannot receive funds")

func (b *blockingPayments) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if to == b.blocked {
		return errBlockedPayee
	}
	return b.PaymentLedger.Transfer(ctx, from, to, amount)
}

// failingCustody wraps a custody adapter and rejects all transfers.
type failingCustody struct {
	domain.CustodyAdapter
}

var errCustodyRejected = errors.New("adapter rejected transfer")

func (f *failingCustody) Transfer(context.Context, common.Address, common.Address, uint64, uint64) error {
	return errCustodyRejected
}

func (f *failingCustody) BatchTransfer(context.Context, common.Address, common.Address, []uint64, []uint64) error {
	return errCustodyRejected
}
