// Package handler serves the marketplace HTTP API. Handlers decode JSON
// requests carrying the caller's address, invoke the service layer, and map
// the failure taxonomy onto HTTP status codes.
package handler

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps the domain failure taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch domain.Classify(err) {
	case domain.FailureValidation:
		return http.StatusBadRequest
	case domain.FailureAuthorization:
		return http.StatusForbidden
	case domain.FailureConflict:
		return http.StatusConflict
	case domain.FailureNotFound:
		return http.StatusNotFound
	case domain.FailurePayment:
		return http.StatusPaymentRequired
	case domain.FailureCustody, domain.FailureState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err through the failure taxonomy and writes it.
// Internal failures get a generic message so upstream detail never leaks.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// decodeBody decodes the request body as JSON into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathItemID extracts the {item} path parameter as a uint64 using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathItemID(r *http.Request) (uint64, error) {
	raw := r.PathValue("item")
	if raw == "" {
		return 0, fmt.Errorf("missing item id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

// parseAmount parses a base-10 payment amount string into a big integer.
// Amounts travel as decimal strings because they exceed float64 precision.
func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing amount")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// parseAddress validates and parses a hex account address.
func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ---------------------------------------------------------------------------
// Response shapes. Domain records carry big integers and binary addresses;
// on the wire amounts are decimal strings and addresses hex.
// ---------------------------------------------------------------------------

type listingJSON struct {
	ItemID    uint64 `json:"item_id"`
	UnitPrice string `json:"unit_price"`
	Seller    string `json:"seller"`
	Quantity  uint64 `json:"quantity"`
	Kind      string `json:"kind"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func toListingJSON(l domain.Listing) listingJSON {
	return listingJSON{
		ItemID:    l.ItemID,
		UnitPrice: l.UnitPrice.String(),
		Seller:    l.Seller.Hex(),
		Quantity:  l.Quantity,
		Kind:      string(l.Kind),
		Active:    l.Active,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type auctionJSON struct {
	ItemID        uint64 `json:"item_id"`
	BasePrice     string `json:"base_price"`
	Seller        string `json:"seller"`
	HighestBid    string `json:"highest_bid"`
	HighestBidder string `json:"highest_bidder,omitempty"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Quantity      uint64 `json:"quantity"`
	Kind          string `json:"kind"`
	Active        bool   `json:"active"`
}

func toAuctionJSON(a domain.Auction) auctionJSON {
	out := auctionJSON{
		ItemID:    a.ItemID,
		BasePrice: a.BasePrice.String(),
		Seller:    a.Seller.Hex(),
		StartTime: a.StartTime.UTC().Format(time.RFC3339),
		EndTime:   a.EndTime.UTC().Format(time.RFC3339),
		Quantity:  a.Quantity,
		Kind:      string(a.Kind),
		Active:    a.Active,
	}
	if a.HighestBid != nil {
		out.HighestBid = a.HighestBid.String()
	} else {
		out.HighestBid = "0"
	}
	if a.HasBid() {
		out.HighestBidder = a.HighestBidder.Hex()
	}
	return out
}

type tradeJSON struct {
	ID        string `json:"id"`
	ItemID    uint64 `json:"item_id"`
	Kind      string `json:"kind"`
	Seller    string `json:"seller"`
	Buyer     string `json:"buyer"`
	Quantity  uint64 `json:"quantity"`
	Amount    string `json:"amount"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

func toTradeJSON(t domain.Trade) tradeJSON {
	return tradeJSON{
		ID:        t.ID,
		ItemID:    t.ItemID,
		Kind:      string(t.Kind),
		Seller:    t.Seller.Hex(),
		Buyer:     t.Buyer.Hex(),
		Quantity:  t.Quantity,
		Amount:    t.Amount.String(),
		Source:    string(t.Source),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toTradeJSONs(trades []domain.Trade) []tradeJSON {
	out := make([]tradeJSON, len(trades))
	for i, t := range trades {
		out[i] = toTradeJSON(t)
	}
	return out
}
