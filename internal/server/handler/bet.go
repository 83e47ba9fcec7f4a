package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/engine"
)

// BetService defines what the bet handler needs from the engine.
type BetService interface {
	PlaceBet(ctx context.Context, req engine.PlaceBetRequest) (domain.Bet, error)
	GetBet(ctx context.Context, id string) (domain.Bet, error)
	CashOut(ctx context.Context, betID string) (domain.CashOutResult, error)
	ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet placement and cash-out endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// PlaceBet places a bet on a market outcome.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req engine.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns a bet by ID.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	bet, err := h.bets.GetBet(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// CashOut unwinds an active bet at the current market price.
// POST /api/bets/{id}/cashout
func (h *BetHandler) CashOut(w http.ResponseWriter, r *http.Request) {
	result, err := h.bets.CashOut(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListUserBets returns a user's bets, newest first.
// GET /api/users/{id}/bets
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	userID := pathParam(r, "id")
	bets, err := h.bets.ListUserBets(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
