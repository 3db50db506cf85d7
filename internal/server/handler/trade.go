package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/DevKavathiya11/marketd/internal/domain"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	TradesByItem(ctx context.Context, itemID uint64, opts domain.ListOpts) ([]domain.Trade, error)
	TradesByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.Trade, error)
}

// TradeHandler serves settled-trade history endpoints.
type TradeHandler struct {
	svc    TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(svc TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{svc: svc, logger: logger}
}

// listTradesResponse wraps the trade history output.
type listTradesResponse struct {
	Trades []tradeJSON `json:"trades"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ListTrades returns trade history filtered by item or wallet.
// GET /api/trades?item_id=7&limit=50&offset=0
// GET /api/trades?wallet=0x...&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemRaw := q.Get("item_id")
	wallet := q.Get("wallet")

	if itemRaw == "" && wallet == "" {
		writeError(w, http.StatusBadRequest, "item_id or wallet query parameter required")
		return
	}

	opts := parseListOpts(r)

	var trades []domain.Trade
	var err error

	if itemRaw != "" {
		itemID, parseErr := strconv.ParseUint(itemRaw, 10, 64)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		trades, err = h.svc.TradesByItem(r.Context(), itemID, opts)
	} else {
		if _, addrErr := parseAddress(wallet); addrErr != nil {
			writeError(w, http.StatusBadRequest, "wallet: "+addrErr.Error())
			return
		}
		trades, err = h.svc.TradesByWallet(r.Context(), wallet, opts)
	}

	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	writeJSON(w, http.StatusOK, listTradesResponse{
		Trades: toTradeJSONs(trades),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
