package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
	"github.com/DevKavathiya11/marketd/internal/market"
)

// AuctionService defines the methods the auction handler requires from the
// service layer.
type AuctionService interface {
	CreateAuction(ctx context.Context, itemID uint64, basePrice *big.Int, duration time.Duration, quantity uint64, kind domain.AssetKind, caller common.Address) (domain.Auction, error)
	Bid(ctx context.Context, itemID uint64, value *big.Int, bidder common.Address) (market.BidResult, error)
	SettleAuction(ctx context.Context, itemID uint64, caller common.Address) (market.SettleResult, error)
	CancelAuction(ctx context.Context, itemID uint64, caller common.Address) (market.CancelResult, error)
	Auctions(ctx context.Context) []domain.Auction
	GetAuction(ctx context.Context, itemID uint64) (domain.Auction, bool)
}

// AuctionHandler serves timed-auction endpoints.
type AuctionHandler struct {
	svc    AuctionService
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and logger.
func NewAuctionHandler(svc AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{svc: svc, logger: logger}
}

// createAuctionRequest is the JSON body for opening an auction. Duration is a
// Go duration string such as "24h" or "30m".
type createAuctionRequest struct {
	ItemID    uint64 `json:"item_id"`
	BasePrice string `json:"base_price"`
	Duration  string `json:"duration"`
	Quantity  uint64 `json:"quantity"`
	Kind      string `json:"kind"`
	Caller    string `json:"caller"`
}

// CreateAuction opens a timed ascending auction for an owned item.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	base, err := parseAmount(req.BasePrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "base_price: "+err.Error())
		return
	}
	dur, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	auction, err := h.svc.CreateAuction(r.Context(), req.ItemID, base, dur, req.Quantity, domain.AssetKind(req.Kind), caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create auction failed",
				slog.Uint64("item_id", req.ItemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAuctionJSON(auction))
}

// listAuctionsResponse wraps the list endpoint output.
type listAuctionsResponse struct {
	Auctions []auctionJSON `json:"auctions"`
	Total    int           `json:"total"`
}

// ListAuctions returns all active auctions.
// GET /api/auctions
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions := h.svc.Auctions(r.Context())

	out := make([]auctionJSON, len(auctions))
	for i, a := range auctions {
		out[i] = toAuctionJSON(a)
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: out, Total: len(out)})
}

// GetAuction returns a single active auction by item id.
// GET /api/auctions/{item}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	auction, ok := h.svc.GetAuction(r.Context(), itemID)
	if !ok {
		writeError(w, http.StatusNotFound, "auction not found")
		return
	}
	writeJSON(w, http.StatusOK, toAuctionJSON(auction))
}

// bidRequest is the JSON body for placing a bid.
type bidRequest struct {
	Value  string `json:"value"`
	Bidder string `json:"bidder"`
}

// bidResponse reports the accepted bid and the displaced one, if any.
type bidResponse struct {
	Auction        auctionJSON `json:"auction"`
	PreviousBidder string      `json:"previous_bidder,omitempty"`
	PreviousBid    string      `json:"previous_bid,omitempty"`
}

// Bid places a bid on an active auction.
// POST /api/auctions/{item}/bids
func (h *AuctionHandler) Bid(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	value, err := parseAmount(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "value: "+err.Error())
		return
	}
	bidder, err := parseAddress(req.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bidder: "+err.Error())
		return
	}

	res, err := h.svc.Bid(r.Context(), itemID, value, bidder)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: bid failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	out := bidResponse{Auction: toAuctionJSON(res.Auction)}
	if res.PreviousBid != nil {
		out.PreviousBidder = res.PreviousBidder.Hex()
		out.PreviousBid = res.PreviousBid.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// settleRequest is the JSON body for settling an auction.
type settleRequest struct {
	Caller string `json:"caller"`
}

// settleResponse reports the settlement outcome.
type settleResponse struct {
	Auction   auctionJSON `json:"auction"`
	HasWinner bool        `json:"has_winner"`
	Winner    string      `json:"winner,omitempty"`
	Amount    string      `json:"amount,omitempty"`
}

// Settle finalizes an ended auction.
// POST /api/auctions/{item}/settle
func (h *AuctionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req settleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	res, err := h.svc.SettleAuction(r.Context(), itemID, caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: settle auction failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	out := settleResponse{
		Auction:   toAuctionJSON(res.Auction),
		HasWinner: res.HasWinner,
	}
	if res.HasWinner {
		out.Winner = res.Winner.Hex()
		out.Amount = res.Amount.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// cancelAuctionRequest is the JSON body for withdrawing an auction.
type cancelAuctionRequest struct {
	Caller string `json:"caller"`
}

// cancelAuctionResponse reports the refunded bid, if any.
type cancelAuctionResponse struct {
	Status   string `json:"status"`
	ItemID   uint64 `json:"item_id"`
	Refunded string `json:"refunded,omitempty"`
	Refund   string `json:"refund,omitempty"`
}

// CancelAuction withdraws an active auction, refunding any outstanding bid.
// DELETE /api/auctions/{item}
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req cancelAuctionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	res, err := h.svc.CancelAuction(r.Context(), itemID, caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: cancel auction failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	out := cancelAuctionResponse{
		Status: "cancelled",
		ItemID: itemID,
	}
	if res.Refund != nil {
		out.Refunded = res.Refunded.Hex()
		out.Refund = res.Refund.String()
	}
	writeJSON(w, http.StatusOK, out)
}
