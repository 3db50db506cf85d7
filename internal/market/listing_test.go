package market

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

func TestCreateListing_Unique(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)

	l, err := f.m.CreateListing(context.Background(), 7, 0, big.NewInt(100), domain.KindUnique, seller)
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if l.Seller != seller {
		t.Errorf("Seller = %s, want %s", l.Seller, seller)
	}
	if l.Quantity != 0 {
		t.Errorf("Quantity = %d, want 0", l.Quantity)
	}
	if !l.Active {
		t.Error("listing not active")
	}
	if got := f.m.ActiveListings(); len(got) != 1 || got[0].ItemID != 7 {
		t.Errorf("ActiveListings = %v, want item 7", got)
	}
}

func TestCreateListing_Failures(t *testing.T) {
	newListedFixture := func() *fixture {
		f := newFixture()
		f.mintUnique(7, seller)
		if _, err := f.m.CreateListing(context.Background(), 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
			t.Fatalf("seed listing: %v", err)
		}
		return f
	}

	tests := []struct {
		name    string
		setup   func() *fixture
		itemID  uint64
		qty     uint64
		price   int64
		kind    domain.AssetKind
		wantErr error
	}{
		{
			name:    "zero price",
			setup:   func() *fixture { f := newFixture(); f.mintUnique(1, seller); return f },
			itemID:  1, price: 0, kind: domain.KindUnique,
			wantErr: domain.ErrInvalidPrice,
		},
		{
			name:    "unique with quantity",
			setup:   func() *fixture { f := newFixture(); f.mintUnique(1, seller); return f },
			itemID:  1, qty: 5, price: 100, kind: domain.KindUnique,
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "fungible zero quantity",
			setup:   func() *fixture { f := newFixture(); f.mintFungible(1, seller, 10); return f },
			itemID:  1, qty: 0, price: 100, kind: domain.KindFungible,
			wantErr: domain.ErrInvalidQuantity,
		},
		{
			name:    "missing item",
			setup:   newFixture,
			itemID:  42, price: 100, kind: domain.KindUnique,
			wantErr: domain.ErrItemNotFound,
		},
		{
			name:    "already listed",
			setup:   newListedFixture,
			itemID:  7, price: 100, kind: domain.KindUnique,
			wantErr: domain.ErrAlreadyListed,
		},
		{
			name: "fungible balance below quantity",
			setup: func() *fixture {
				f := newFixture()
				f.mintFungible(3, seller, 5)
				return f
			},
			itemID:  3, qty: 20, price: 5, kind: domain.KindFungible,
			wantErr: domain.ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.setup()
			_, err := f.m.CreateListing(context.Background(), tt.itemID, tt.qty, big.NewInt(tt.price), tt.kind, seller)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			// Failure leaves state unchanged beyond what setup seeded.
			if n := len(f.m.ActiveListings()); n > 1 {
				t.Errorf("ActiveListings = %d after failure", n)
			}
		})
	}
}

func TestCreateListing_NotOwner(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)

	_, err := f.m.CreateListing(context.Background(), 7, 0, big.NewInt(100), domain.KindUnique, buyer)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("err = %v, want ErrNotOwner", err)
	}
}

func TestCreateListing_NotApproved(t *testing.T) {
	f := newFixture()
	if err := f.unique.Mint(7, seller); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.CreateListing(context.Background(), 7, 0, big.NewInt(100), domain.KindUnique, seller)
	if !errors.Is(err, domain.ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
}

func TestCreateListing_SingleItemApproval(t *testing.T) {
	f := newFixture()
	if err := f.unique.Mint(7, seller); err != nil {
		t.Fatal(err)
	}
	if err := f.unique.Approve(7, operator); err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.CreateListing(context.Background(), 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Errorf("CreateListing with single-item approval: %v", err)
	}
}

// Listing unique item #7 at 100; buyer pays 150. The seller receives
// exactly 100, the buyer gets 50 back, the asset moves, and the listing
// leaves the index.
func TestPurchase_Unique_SurplusRefunded(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	f.fund(buyer, 150)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	res, err := f.m.Purchase(ctx, 7, 0, big.NewInt(150), buyer)
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if !res.Closed {
		t.Error("listing should close after unique sale")
	}
	if res.Trade.Amount.Int64() != 100 {
		t.Errorf("trade amount = %d, want 100", res.Trade.Amount.Int64())
	}

	if owner, _ := f.unique.OwnerOf(ctx, 7); owner != buyer {
		t.Errorf("owner = %s, want %s", owner, buyer)
	}
	if got := f.balance(seller); got != 100 {
		t.Errorf("seller balance = %d, want 100", got)
	}
	if got := f.balance(buyer); got != 50 {
		t.Errorf("buyer balance = %d, want 50", got)
	}
	if got := f.balance(operator); got != 0 {
		t.Errorf("escrow balance = %d, want 0", got)
	}
	if got := f.m.ActiveListings(); len(got) != 0 {
		t.Errorf("ActiveListings = %v, want empty", got)
	}
}

// A second purchase of a sold unique item must fail, never succeed twice.
func TestPurchase_Unique_DoubleSale(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	f.fund(buyer, 100)
	f.fund(buyer2, 100)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if _, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer); err != nil {
		t.Fatalf("first purchase: %v", err)
	}

	_, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer2)
	if !errors.Is(err, domain.ErrNotListed) {
		t.Errorf("second purchase err = %v, want ErrNotListed", err)
	}
	if got := f.balance(buyer2); got != 100 {
		t.Errorf("buyer2 balance = %d, want 100 (untouched)", got)
	}
}

// Fungible item #3: 20 listed at 5/unit. Buying 8 leaves 12 listed; buying
// the remaining 12 closes the listing.
func TestPurchase_Fungible_PartialThenClose(t *testing.T) {
	f := newFixture()
	f.mintFungible(3, seller, 20)
	f.fund(buyer, 40)
	f.fund(buyer2, 60)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 3, 20, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	res, err := f.m.Purchase(ctx, 3, 8, big.NewInt(40), buyer)
	if err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	if res.Remaining != 12 || res.Closed {
		t.Errorf("after 8: remaining=%d closed=%v, want 12/false", res.Remaining, res.Closed)
	}
	if got, _ := f.m.GetListing(3); got.Quantity != 12 {
		t.Errorf("listed quantity = %d, want 12", got.Quantity)
	}

	res, err = f.m.Purchase(ctx, 3, 12, big.NewInt(60), buyer2)
	if err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	if !res.Closed {
		t.Error("listing should close at quantity 0")
	}
	if got := f.m.ActiveListings(); len(got) != 0 {
		t.Errorf("ActiveListings = %v, want empty", got)
	}

	if bal, _ := f.fungible.BalanceOf(ctx, buyer, 3); bal != 8 {
		t.Errorf("buyer balance = %d, want 8", bal)
	}
	if bal, _ := f.fungible.BalanceOf(ctx, buyer2, 3); bal != 12 {
		t.Errorf("buyer2 balance = %d, want 12", bal)
	}
	if got := f.balance(seller); got != 100 {
		t.Errorf("seller balance = %d, want 100", got)
	}
}

func TestPurchase_Failures(t *testing.T) {
	f := newFixture()
	f.mintFungible(3, seller, 20)
	f.fund(buyer, 1000)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 3, 20, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	tests := []struct {
		name    string
		itemID  uint64
		qty     uint64
		payment int64
		caller  common.Address
		wantErr error
	}{
		{"not listed", 99, 1, 5, buyer, domain.ErrNotListed},
		{"seller buys own", 3, 1, 5, seller, domain.ErrIsOwner},
		{"quantity exceeded", 3, 25, 125, buyer, domain.ErrQuantityExceeded},
		{"zero quantity", 3, 0, 5, buyer, domain.ErrInvalidQuantity},
		{"underpayment", 3, 4, 19, buyer, domain.ErrInsufficientPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.m.Purchase(ctx, tt.itemID, tt.qty, big.NewInt(tt.payment), tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got, _ := f.m.GetListing(3); got.Quantity != 20 {
		t.Errorf("listed quantity = %d after failures, want 20", got.Quantity)
	}
	if got := f.balance(buyer); got != 1000 {
		t.Errorf("buyer balance = %d after failures, want 1000", got)
	}
}

func TestPurchase_ApprovalRevoked(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	f.fund(buyer, 100)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	f.unique.SetApprovalForAll(seller, operator, false)

	_, err := f.m.Purchase(ctx, 7, 0, big.NewInt(100), buyer)
	if !errors.Is(err, domain.ErrNotApproved) {
		t.Errorf("err = %v, want ErrNotApproved", err)
	}
	if got := f.balance(buyer); got != 100 {
		t.Errorf("buyer balance = %d, want 100 (untouched)", got)
	}
}

func TestCancelListing(t *testing.T) {
	f := newFixture()
	f.mintUnique(7, seller)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 7, 0, big.NewInt(100), domain.KindUnique, seller); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}

	if err := f.m.CancelListing(ctx, 7, domain.KindUnique, buyer); !errors.Is(err, domain.ErrNotOwner) {
		t.Errorf("cancel by stranger: err = %v, want ErrNotOwner", err)
	}
	if err := f.m.CancelListing(ctx, 7, domain.KindUnique, seller); err != nil {
		t.Fatalf("CancelListing: %v", err)
	}
	if _, ok := f.m.GetListing(7); ok {
		t.Error("listing still present after cancel")
	}
	if err := f.m.CancelListing(ctx, 7, domain.KindUnique, seller); !errors.Is(err, domain.ErrNotListed) {
		t.Errorf("second cancel: err = %v, want ErrNotListed", err)
	}
}

func TestBatchPurchase(t *testing.T) {
	f := newFixture()
	f.mintFungible(1, seller, 10)
	f.mintFungible(2, seller, 10)
	f.fund(buyer, 200)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 1, 10, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateListing(ctx, 2, 10, big.NewInt(7), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}

	// 4*5 + 10*7 = 90; pay 100, 10 back.
	res, err := f.m.BatchPurchase(ctx, []uint64{1, 2}, []uint64{4, 10}, big.NewInt(100), buyer)
	if err != nil {
		t.Fatalf("BatchPurchase: %v", err)
	}
	if res.Total.Int64() != 90 {
		t.Errorf("total = %d, want 90", res.Total.Int64())
	}
	if len(res.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(res.Trades))
	}

	if got := f.balance(seller); got != 90 {
		t.Errorf("seller balance = %d, want 90", got)
	}
	if got := f.balance(buyer); got != 110 {
		t.Errorf("buyer balance = %d, want 110", got)
	}
	if l, ok := f.m.GetListing(1); !ok || l.Quantity != 6 {
		t.Errorf("item 1 quantity = %d, want 6", l.Quantity)
	}
	if _, ok := f.m.GetListing(2); ok {
		t.Error("item 2 should be fully sold and removed")
	}
}

func TestBatchPurchase_MismatchedSellers(t *testing.T) {
	f := newFixture()
	other := buyer2
	f.mintFungible(1, seller, 10)
	f.mintFungible(2, other, 10)
	f.fund(buyer, 200)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 1, 10, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}
	if _, err := f.m.CreateListing(ctx, 2, 10, big.NewInt(5), domain.KindFungible, other); err != nil {
		t.Fatal(err)
	}

	_, err := f.m.BatchPurchase(ctx, []uint64{1, 2}, []uint64{1, 1}, big.NewInt(200), buyer)
	if !errors.Is(err, domain.ErrSellerMismatch) {
		t.Errorf("err = %v, want ErrSellerMismatch", err)
	}

	// Nothing moved.
	if got := f.balance(buyer); got != 200 {
		t.Errorf("buyer balance = %d, want 200", got)
	}
	if bal, _ := f.fungible.BalanceOf(ctx, seller, 1); bal != 10 {
		t.Errorf("seller item 1 balance = %d, want 10", bal)
	}
	if l, ok := f.m.GetListing(1); !ok || l.Quantity != 10 {
		t.Errorf("item 1 quantity = %d, want 10", l.Quantity)
	}
}

func TestBatchPurchase_Failures(t *testing.T) {
	f := newFixture()
	f.mintFungible(1, seller, 10)
	f.fund(buyer, 1000)
	ctx := context.Background()

	if _, err := f.m.CreateListing(ctx, 1, 10, big.NewInt(5), domain.KindFungible, seller); err != nil {
		t.Fatal(err)
	}

	if _, err := f.m.BatchPurchase(ctx, []uint64{1}, []uint64{1, 2}, big.NewInt(100), buyer); !errors.Is(err, domain.ErrBatchMismatch) {
		t.Errorf("length mismatch: err = %v, want ErrBatchMismatch", err)
	}
	if _, err := f.m.BatchPurchase(ctx, []uint64{1, 1}, []uint64{1, 1}, big.NewInt(100), buyer); !errors.Is(err, domain.ErrBatchMismatch) {
		t.Errorf("duplicate item: err = %v, want ErrBatchMismatch", err)
	}
	if _, err := f.m.BatchPurchase(ctx, []uint64{1, 9}, []uint64{1, 1}, big.NewInt(100), buyer); !errors.Is(err, domain.ErrNotListed) {
		t.Errorf("absent item: err = %v, want ErrNotListed", err)
	}
	if _, err := f.m.BatchPurchase(ctx, []uint64{1}, []uint64{11}, big.NewInt(100), buyer); !errors.Is(err, domain.ErrQuantityExceeded) {
		t.Errorf("excess quantity: err = %v, want ErrQuantityExceeded", err)
	}
	if _, err := f.m.BatchPurchase(ctx, []uint64{1}, []uint64{4}, big.NewInt(19), buyer); !errors.Is(err, domain.ErrInsufficientPayment) {
		t.Errorf("underpayment: err = %v, want ErrInsufficientPayment", err)
	}

	if got := f.balance(buyer); got != 1000 {
		t.Errorf("buyer balance = %d after failures, want 1000", got)
	}
}
