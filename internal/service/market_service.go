// Package service orchestrates marketplace operations: it drives the core
// registries, mirrors their state into durable storage, publishes one event
// per mutating operation, and writes the audit log.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/DevKavathiya11/marketd/internal/domain"
	"github.com/DevKavathiya11/marketd/internal/market"
)

// MarketService exposes the public operation surface over the marketplace
// core. The core is the source of truth; stores are write-behind and bus or
// audit failures are logged, never allowed to undo a committed operation.
type MarketService struct {
	core     *market.Marketplace
	listings domain.ListingStore
	auctions domain.AuctionStore
	trades   domain.TradeStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	logger   *slog.Logger
}

// NewMarketService creates a MarketService with all required dependencies.
func NewMarketService(
	core *market.Marketplace,
	listings domain.ListingStore,
	auctions domain.AuctionStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		core:     core,
		listings: listings,
		auctions: auctions,
		trades:   trades,
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "market_service")),
	}
}

// LoadState restores active listings and auctions from storage into the
// core. Called once at startup, before the service is exposed to callers.
func (s *MarketService) LoadState(ctx context.Context) error {
	listings, err := s.listings.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load listings: %w", err)
	}
	auctions, err := s.auctions.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("market_service: load auctions: %w", err)
	}
	s.core.Restore(listings, auctions)

	s.logger.InfoContext(ctx, "state restored",
		slog.Int("listings", len(listings)),
		slog.Int("auctions", len(auctions)),
	)
	return nil
}

// ListForSale creates a fixed-price listing.
func (s *MarketService) ListForSale(ctx context.Context, itemID, quantity uint64, unitPrice *big.Int, kind domain.AssetKind, caller common.Address) (domain.Listing, error) {
	l, err := s.core.CreateListing(ctx, itemID, quantity, unitPrice, kind, caller)
	if err != nil {
		return domain.Listing{}, err
	}

	s.persistListing(ctx, l)
	s.emit(ctx, domain.Event{
		Type:     domain.EventItemListed,
		Kind:     kind,
		ItemID:   itemID,
		Actor:    caller,
		Seller:   caller,
		Quantity: quantity,
		Price:    unitPrice.String(),
	})
	s.auditLog(ctx, "item_listed", map[string]any{
		"item_id":  itemID,
		"kind":     string(kind),
		"seller":   caller.Hex(),
		"quantity": quantity,
		"price":    unitPrice.String(),
	})

	s.logger.InfoContext(ctx, "item listed",
		slog.Uint64("item_id", itemID),
		slog.String("kind", string(kind)),
		slog.String("seller", caller.Hex()),
		slog.String("price", unitPrice.String()),
	)
	return l, nil
}

// Purchase buys from an active listing.
func (s *MarketService) Purchase(ctx context.Context, itemID, quantity uint64, payment *big.Int, caller common.Address) (market.PurchaseResult, error) {
	res, err := s.core.Purchase(ctx, itemID, quantity, payment, caller)
	if err != nil {
		return market.PurchaseResult{}, err
	}

	res.Trade.ID = uuid.New().String()
	s.persistTrade(ctx, res.Trade)
	if res.Closed {
		s.dropListing(ctx, itemID)
	} else if l, ok := s.core.GetListing(itemID); ok {
		s.persistListing(ctx, l)
	}

	s.emit(ctx, domain.Event{
		Type:     domain.EventItemSold,
		Kind:     res.Trade.Kind,
		ItemID:   itemID,
		Actor:    caller,
		Seller:   res.Trade.Seller,
		Quantity: quantity,
		Amount:   res.Trade.Amount.String(),
	})
	s.auditLog(ctx, "item_sold", map[string]any{
		"trade_id": res.Trade.ID,
		"item_id":  itemID,
		"kind":     string(res.Trade.Kind),
		"seller":   res.Trade.Seller.Hex(),
		"buyer":    caller.Hex(),
		"quantity": quantity,
		"amount":   res.Trade.Amount.String(),
	})

	s.logger.InfoContext(ctx, "item sold",
		slog.Uint64("item_id", itemID),
		slog.String("buyer", caller.Hex()),
		slog.String("amount", res.Trade.Amount.String()),
		slog.Bool("closed", res.Closed),
	)
	return res, nil
}

// BatchPurchase buys from several listings of one seller atomically.
func (s *MarketService) BatchPurchase(ctx context.Context, itemIDs, quantities []uint64, payment *big.Int, caller common.Address) (market.BatchPurchaseResult, error) {
	res, err := s.core.BatchPurchase(ctx, itemIDs, quantities, payment, caller)
	if err != nil {
		return market.BatchPurchaseResult{}, err
	}

	for i := range res.Trades {
		res.Trades[i].ID = uuid.New().String()
		s.persistTrade(ctx, res.Trades[i])
		if l, ok := s.core.GetListing(res.Trades[i].ItemID); ok {
			s.persistListing(ctx, l)
		} else {
			s.dropListing(ctx, res.Trades[i].ItemID)
		}
	}

	s.emit(ctx, domain.Event{
		Type:       domain.EventBatchSold,
		Kind:       res.Trades[0].Kind,
		ItemIDs:    itemIDs,
		Actor:      caller,
		Seller:     res.Seller,
		Quantities: quantities,
		Amount:     res.Total.String(),
	})
	s.auditLog(ctx, "batch_sold", map[string]any{
		"item_ids": itemIDs,
		"seller":   res.Seller.Hex(),
		"buyer":    caller.Hex(),
		"total":    res.Total.String(),
	})

	s.logger.InfoContext(ctx, "batch sold",
		slog.Int("items", len(itemIDs)),
		slog.String("buyer", caller.Hex()),
		slog.String("total", res.Total.String()),
	)
	return res, nil
}

// CancelListing withdraws the caller's listing.
func (s *MarketService) CancelListing(ctx context.Context, itemID uint64, kind domain.AssetKind, caller common.Address) error {
	if err := s.core.CancelListing(ctx, itemID, kind, caller); err != nil {
		return err
	}

	s.dropListing(ctx, itemID)
	s.emit(ctx, domain.Event{
		Type:   domain.EventListingCancelled,
		Kind:   kind,
		ItemID: itemID,
		Actor:  caller,
	})
	s.auditLog(ctx, "listing_cancelled", map[string]any{
		"item_id": itemID,
		"kind":    string(kind),
		"seller":  caller.Hex(),
	})

	s.logger.InfoContext(ctx, "listing cancelled",
		slog.Uint64("item_id", itemID),
		slog.String("seller", caller.Hex()),
	)
	return nil
}

// CreateAuction opens a timed auction.
func (s *MarketService) CreateAuction(ctx context.Context, itemID uint64, basePrice *big.Int, duration time.Duration, quantity uint64, kind domain.AssetKind, caller common.Address) (domain.Auction, error) {
	a, err := s.core.CreateAuction(ctx, itemID, basePrice, duration, quantity, kind, caller)
	if err != nil {
		return domain.Auction{}, err
	}

	// Auction creation may have implicitly cancelled the caller's listing.
	if _, ok := s.core.GetListing(itemID); !ok {
		s.dropListing(ctx, itemID)
	}
	s.persistAuction(ctx, a)
	s.emit(ctx, domain.Event{
		Type:     domain.EventAuctionCreated,
		Kind:     kind,
		ItemID:   itemID,
		Actor:    caller,
		Seller:   caller,
		Quantity: quantity,
		Price:    basePrice.String(),
	})
	s.auditLog(ctx, "auction_created", map[string]any{
		"item_id":    itemID,
		"kind":       string(kind),
		"seller":     caller.Hex(),
		"quantity":   quantity,
		"base_price": basePrice.String(),
		"end_time":   a.EndTime,
	})

	s.logger.InfoContext(ctx, "auction created",
		slog.Uint64("item_id", itemID),
		slog.String("kind", string(kind)),
		slog.String("seller", caller.Hex()),
		slog.String("base_price", basePrice.String()),
		slog.Time("end_time", a.EndTime),
	)
	return a, nil
}

// Bid places a bid on an active auction.
func (s *MarketService) Bid(ctx context.Context, itemID uint64, value *big.Int, bidder common.Address) (market.BidResult, error) {
	res, err := s.core.Bid(ctx, itemID, value, bidder)
	if err != nil {
		return market.BidResult{}, err
	}

	s.persistAuction(ctx, res.Auction)
	s.emit(ctx, domain.Event{
		Type:   domain.EventBidPlaced,
		Kind:   res.Auction.Kind,
		ItemID: itemID,
		Actor:  bidder,
		Seller: res.Auction.Seller,
		Amount: value.String(),
	})
	s.auditLog(ctx, "bid_placed", map[string]any{
		"item_id": itemID,
		"bidder":  bidder.Hex(),
		"value":   value.String(),
	})

	s.logger.InfoContext(ctx, "bid placed",
		slog.Uint64("item_id", itemID),
		slog.String("bidder", bidder.Hex()),
		slog.String("value", value.String()),
	)
	return res, nil
}

// SettleAuction finalizes an expired auction.
func (s *MarketService) SettleAuction(ctx context.Context, itemID uint64, caller common.Address) (market.SettleResult, error) {
	res, err := s.core.Settle(ctx, itemID, caller)
	if err != nil {
		return market.SettleResult{}, err
	}

	s.dropAuction(ctx, itemID)

	evt := domain.Event{
		Type:   domain.EventAuctionSettled,
		Kind:   res.Auction.Kind,
		ItemID: itemID,
		Actor:  caller,
		Seller: res.Auction.Seller,
	}
	detail := map[string]any{
		"item_id": itemID,
		"seller":  res.Auction.Seller.Hex(),
	}
	if res.HasWinner {
		trade := domain.Trade{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			Kind:      res.Auction.Kind,
			Seller:    res.Auction.Seller,
			Buyer:     res.Winner,
			Quantity:  res.Auction.Quantity,
			Amount:    res.Amount,
			Source:    domain.TradeSourceAuction,
			CreatedAt: time.Now().UTC(),
		}
		s.persistTrade(ctx, trade)
		evt.Winner = res.Winner.Hex()
		evt.Amount = res.Amount.String()
		detail["winner"] = res.Winner.Hex()
		detail["amount"] = res.Amount.String()
	}
	s.emit(ctx, evt)
	s.auditLog(ctx, "auction_settled", detail)

	s.logger.InfoContext(ctx, "auction settled",
		slog.Uint64("item_id", itemID),
		slog.Bool("has_winner", res.HasWinner),
	)
	return res, nil
}

// CancelAuction withdraws an auction, refunding any outstanding bid.
func (s *MarketService) CancelAuction(ctx context.Context, itemID uint64, caller common.Address) (market.CancelResult, error) {
	res, err := s.core.Cancel(ctx, itemID, caller)
	if err != nil {
		return market.CancelResult{}, err
	}

	s.dropAuction(ctx, itemID)

	evt := domain.Event{
		Type:   domain.EventAuctionCancelled,
		Kind:   res.Auction.Kind,
		ItemID: itemID,
		Actor:  caller,
	}
	detail := map[string]any{
		"item_id": itemID,
		"seller":  caller.Hex(),
	}
	if res.Refund != nil {
		evt.Amount = res.Refund.String()
		detail["refunded"] = res.Refunded.Hex()
		detail["refund"] = res.Refund.String()
	}
	s.emit(ctx, evt)
	s.auditLog(ctx, "auction_cancelled", detail)

	s.logger.InfoContext(ctx, "auction cancelled",
		slog.Uint64("item_id", itemID),
		slog.String("seller", caller.Hex()),
	)
	return res, nil
}

// Listings returns the active listings.
func (s *MarketService) Listings(ctx context.Context) []domain.Listing {
	return s.core.ActiveListings()
}

// Auctions returns the active auctions.
func (s *MarketService) Auctions(ctx context.Context) []domain.Auction {
	return s.core.ActiveAuctions()
}

// GetListing returns the active listing for itemID.
func (s *MarketService) GetListing(ctx context.Context, itemID uint64) (domain.Listing, bool) {
	return s.core.GetListing(itemID)
}

// GetAuction returns the active auction for itemID.
func (s *MarketService) GetAuction(ctx context.Context, itemID uint64) (domain.Auction, bool) {
	return s.core.GetAuction(itemID)
}

// TradesByItem returns trade history for one item.
func (s *MarketService) TradesByItem(ctx context.Context, itemID uint64, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByItem(ctx, itemID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: trades by item %d: %w", itemID, err)
	}
	return trades, nil
}

// TradesByWallet returns trade history for one wallet.
func (s *MarketService) TradesByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListByWallet(ctx, wallet, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: trades by wallet %q: %w", wallet, err)
	}
	return trades, nil
}

func (s *MarketService) persistListing(ctx context.Context, l domain.Listing) {
	if err := s.listings.Upsert(ctx, l); err != nil {
		s.logger.WarnContext(ctx, "persist listing failed",
			slog.Uint64("item_id", l.ItemID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) dropListing(ctx context.Context, itemID uint64) {
	if err := s.listings.Delete(ctx, itemID); err != nil {
		s.logger.WarnContext(ctx, "delete listing failed",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) persistAuction(ctx context.Context, a domain.Auction) {
	if err := s.auctions.Upsert(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "persist auction failed",
			slog.Uint64("item_id", a.ItemID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) dropAuction(ctx context.Context, itemID uint64) {
	if err := s.auctions.Delete(ctx, itemID); err != nil {
		s.logger.WarnContext(ctx, "delete auction failed",
			slog.Uint64("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) persistTrade(ctx context.Context, t domain.Trade) {
	if err := s.trades.Insert(ctx, t); err != nil {
		s.logger.WarnContext(ctx, "persist trade failed",
			slog.String("trade_id", t.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) emit(ctx context.Context, evt domain.Event) {
	evt.ID = uuid.New().String()
	evt.OccurredAt = time.Now().UTC()

	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		s.logger.WarnContext(ctx, "publish event failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
	if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
