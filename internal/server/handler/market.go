package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/engine"
)

// MarketService defines what the market handler needs from the engine. It is
// declared locally so the handler package does not depend on the concrete
// engine beyond its parameter types.
type MarketService interface {
	CreateMarket(ctx context.Context, p engine.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	GetQuote(ctx context.Context, marketID, outcomeID string, amount float64) (domain.Quote, error)
	OpenMarket(ctx context.Context, id string) (domain.Market, error)
	LockMarket(ctx context.Context, id string) (domain.Market, error)
	SettleMarket(ctx context.Context, id, winningOutcomeID string) (domain.SettlementResult, error)
	CancelMarket(ctx context.Context, id string) (domain.CancelResult, error)
	VoidMarket(ctx context.Context, id string) (domain.CancelResult, error)
}

// MarketHandler serves market lifecycle and quote endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// CreateMarket creates a market from a template.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var p engine.CreateMarketParams
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), p)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets filtered by status.
// GET /api/markets?status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusOpen
	}

	markets, err := h.markets.ListMarkets(r.Context(), status, opts)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetQuote prices a prospective bet without committing it.
// GET /api/markets/{id}/quote?outcomeId=...&amount=50
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	q := r.URL.Query()

	outcomeID := q.Get("outcomeId")
	if outcomeID == "" {
		writeError(w, http.StatusBadRequest, "missing outcomeId")
		return
	}
	amount, err := strconv.ParseFloat(q.Get("amount"), 64)
	if err != nil || amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	quote, err := h.markets.GetQuote(r.Context(), id, outcomeID, amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// OpenMarket opens a pending market for trading.
// POST /api/markets/{id}/open
func (h *MarketHandler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.OpenMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// LockMarket halts new buys on a market.
// POST /api/markets/{id}/lock
func (h *MarketHandler) LockMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.LockMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type settleRequest struct {
	WinningOutcomeID string `json:"winningOutcomeId"`
}

// SettleMarket resolves a market to a winning outcome.
// POST /api/markets/{id}/settle
func (h *MarketHandler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WinningOutcomeID == "" {
		writeError(w, http.StatusBadRequest, "missing winningOutcomeId")
		return
	}

	result, err := h.markets.SettleMarket(r.Context(), pathParam(r, "id"), req.WinningOutcomeID)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CancelMarket aborts a market and refunds all stakes.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	result, err := h.markets.CancelMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VoidMarket invalidates a market and refunds all stakes.
// POST /api/markets/{id}/void
func (h *MarketHandler) VoidMarket(w http.ResponseWriter, r *http.Request) {
	result, err := h.markets.VoidMarket(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
