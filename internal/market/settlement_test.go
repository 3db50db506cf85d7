package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// A rejected custody transfer aborts the purchase: the buyer's payment
// returns in full and the listing stays active.
func TestSettlement_CustodyFailureRefundsPayment(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	failing := &failingCustody{CustodyAdapter: f.unique}
	f.m = New(failing, f.fungible, f.payments, operator, WithClock(f.clock.Now))
	f.fund(buyer, 150)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.Purchase(ctx, 7, 0, big.NewInt(150), buyer)
	if !errors.Is(err, domain.ErrCustody) {
		t.Fatalf("err = %v, want ErrCustody", err)
	}

	if got := f.balance(buyer); got != 150 {
		t.Errorf("buyer balance = %d, want 150 (fully refunded)", got)
	}
	if got := f.balance(seller); got != 0 {
		t.Errorf("seller balance = %d, want 0", got)
	}
	if _, ok := f.m.GetListing(7); !ok {
		t.Error("listing removed despite failed settlement")
	}
}

// A seller who cannot receive payment fails the purchase, and the custody
// leg is rolled back: the asset returns to the seller and the buyer keeps
// their funds.
func TestSettlement_PaymentFailureRollsBackCustody(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	blocking := &blockingPayments{PaymentLedger: f.payments, blocked: seller}
	f.m = New(f.unique, f.fungible, blocking, operator, WithClock(f.clock.Now))
	f.fund(buyer, 100)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer)
	if err == nil {
		t.Fatal("purchase succeeded despite unpayable seller")
	}

	if owner, _ := f.unique.OwnerOf(ctx, 7); owner != seller {
		t.Errorf("owner = %s, want %s (custody rolled back)", owner, seller)
	}
	if got := f.balance(buyer); got != 100 {
		t.Errorf("buyer balance = %d, want 100", got)
	}
	if got := f.balance(operator); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
}

// A batch settlement failure moves nothing for any item.
func TestSettlement_BatchAllOrNothing(t *testing.T) {
	f := newFixture()
	f.mintFungible(1, seller, 10)
	f.mintFungible(2, seller, 10)
	blocking := &blockingPayments{PaymentLedger: f.payments, blocked: seller}
	f.m = New(f.unique, f.fungible, blocking, operator, WithClock(f.clock.Now))
	f.fund(buyer, 200)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 1, 10, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateListing(ctx, 2, 10, big.NewInt(7), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.BatchPurchase(ctx, []uint64{1, 2}, []uint64{4, 4}, big.NewInt(200), buyer)
	if err == nil {
		t.Fatal("batch purchase succeeded despite unpayable seller")
	}

	if bal, _ := f.fungible.BalanceOf(ctx, seller, 1); bal != 10 {
		t.Errorf("seller item 1 = %d, want 10", bal)
	}
	if bal, _ := f.fungible.BalanceOf(ctx, seller, 2); bal != 10 {
		t.Errorf("seller item 2 = %d, want 10", bal)
	}
	if got := f.balance(buyer); got != 200 {
		t.Errorf("buyer balance = %d, want 200", got)
	}
	for _, id := range []uint64{1, 2} {
		if l, ok := f.m.GetListing(id); !ok || l.Quantity != 10 {
			t.Errorf("listing %d quantity = %d, want 10", id, l.Quantity)
		}
	}
}

// Exact payment produces no surplus refund transfer.
func TestSettlement_ExactPayment(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	f.fund(buyer, 100)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	if got := f.balance(buyer); got != 0 {
		t.Errorf("buyer balance = %d, want 0", got)
	}
	if got := f.balance(seller); got != 100 {
		t.Errorf("seller balance = %d, want 100", got)
	}
	if got := f.balance(operator); got != 0 {
		t.Errorf("escrow = %d, want 0", got)
	}
}

// The payer's whole remittance is verified up front: a payer whose ledger
// balance is below the remitted amount fails before any custody movement.
func TestSettlement_InsufficientLedgerBalance(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	f.fund(buyer, 40)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if owner, _ := f.unique.OwnerOf(ctx, 7); owner != seller {
		t.Errorf("owner = %s, want %s", owner, seller)
	}
}
