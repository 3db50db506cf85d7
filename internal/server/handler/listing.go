package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
	"github.com/DevKavathiya11/marketd/internal/market"
)

// ListingService defines the methods the listing handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ListingService interface {
	ListForSale(ctx context.Context, itemID, quantity uint64, unitPrice *big.Int, kind domain.AssetKind, caller common.Address) (domain.Listing, error)
	Purchase(ctx context.Context, itemID, quantity uint64, payment *big.Int, caller common.Address) (market.PurchaseResult, error)
	BatchPurchase(ctx context.Context, itemIDs, quantities []uint64, payment *big.Int, caller common.Address) (market.BatchPurchaseResult, error)
	CancelListing(ctx context.Context, itemID uint64, kind domain.AssetKind, caller common.Address) error
	Listings(ctx context.Context) []domain.Listing
	GetListing(ctx context.Context, itemID uint64) (domain.Listing, bool)
}

// ListingHandler serves fixed-price listing endpoints.
type ListingHandler struct {
	svc    ListingService
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler with the given service and logger.
func NewListingHandler(svc ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{svc: svc, logger: logger}
}

// createListingRequest is the JSON body for creating a listing.
type createListingRequest struct {
	ItemID    uint64 `json:"item_id"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Kind      string `json:"kind"`
	Caller    string `json:"caller"`
}

// CreateListing puts an owned item up for fixed-price sale.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := parseAmount(req.UnitPrice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unit_price: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	listing, err := h.svc.ListForSale(r.Context(), req.ItemID, req.Quantity, price, domain.AssetKind(req.Kind), caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create listing failed",
				slog.Uint64("item_id", req.ItemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toListingJSON(listing))
}

// listListingsResponse wraps the list endpoint output.
type listListingsResponse struct {
	Listings []listingJSON `json:"listings"`
	Total    int           `json:"total"`
}

// ListListings returns all active listings.
// GET /api/listings
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings := h.svc.Listings(r.Context())

	out := make([]listingJSON, len(listings))
	for i, l := range listings {
		out[i] = toListingJSON(l)
	}
	writeJSON(w, http.StatusOK, listListingsResponse{Listings: out, Total: len(out)})
}

// GetListing returns a single active listing by item id.
// GET /api/listings/{item}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, ok := h.svc.GetListing(r.Context(), itemID)
	if !ok {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	writeJSON(w, http.StatusOK, toListingJSON(listing))
}

// purchaseRequest is the JSON body for buying from a listing.
type purchaseRequest struct {
	Quantity uint64 `json:"quantity"`
	Payment  string `json:"payment"`
	Caller   string `json:"caller"`
}

// purchaseResponse reports the completed trade plus listing state.
type purchaseResponse struct {
	Trade     tradeJSON `json:"trade"`
	Remaining uint64    `json:"remaining"`
	Closed    bool      `json:"closed"`
}

// Purchase buys from an active listing.
// POST /api/listings/{item}/purchase
func (h *ListingHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := parseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "payment: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	res, err := h.svc.Purchase(r.Context(), itemID, req.Quantity, payment, caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: purchase failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, purchaseResponse{
		Trade:     toTradeJSON(res.Trade),
		Remaining: res.Remaining,
		Closed:    res.Closed,
	})
}

// batchPurchaseRequest is the JSON body for a multi-item purchase.
type batchPurchaseRequest struct {
	ItemIDs    []uint64 `json:"item_ids"`
	Quantities []uint64 `json:"quantities"`
	Payment    string   `json:"payment"`
	Caller     string   `json:"caller"`
}

// batchPurchaseResponse reports the completed trades and the summed total.
type batchPurchaseResponse struct {
	Trades []tradeJSON `json:"trades"`
	Seller string      `json:"seller"`
	Total  string      `json:"total"`
}

// BatchPurchase buys from several listings of one seller atomically.
// POST /api/listings/batch-purchase
func (h *ListingHandler) BatchPurchase(w http.ResponseWriter, r *http.Request) {
	var req batchPurchaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := parseAmount(req.Payment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "payment: "+err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	res, err := h.svc.BatchPurchase(r.Context(), req.ItemIDs, req.Quantities, payment, caller)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: batch purchase failed",
				slog.Int("items", len(req.ItemIDs)),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchPurchaseResponse{
		Trades: toTradeJSONs(res.Trades),
		Seller: res.Seller.Hex(),
		Total:  res.Total.String(),
	})
}

// cancelListingRequest is the JSON body for withdrawing a listing.
type cancelListingRequest struct {
	Kind   string `json:"kind"`
	Caller string `json:"caller"`
}

// CancelListing withdraws an active listing.
// DELETE /api/listings/{item}
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathItemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req cancelListingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	caller, err := parseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, "caller: "+err.Error())
		return
	}

	if err := h.svc.CancelListing(r.Context(), itemID, domain.AssetKind(req.Kind), caller); err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: cancel listing failed",
				slog.Uint64("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "cancelled",
		"item_id": itemID,
	})
}
