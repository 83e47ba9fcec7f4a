package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/pricing"
)

// PlaceBetRequest is the caller-facing input for a new wager.
type PlaceBetRequest struct {
	MarketID  string  `json:"marketId"`
	OutcomeID string  `json:"outcomeId"`
	UserID    string  `json:"userId"`
	Amount    float64 `json:"amount"`
}

// solveShares inverts the cost function. A failed solve gets one
// automatic retry with a widened bracket before the numerical error
// surfaces.
func solveShares(q []float64, b float64, i int, amount float64) (float64, error) {
	delta, err := pricing.SharesForCost(q, b, i, amount)
	if errors.Is(err, domain.ErrNoConvergence) {
		delta, err = pricing.SharesForCostWidened(q, b, i, amount)
	}
	return delta, err
}

// GetQuote prices a prospective bet against the current snapshot without
// committing anything.
func (e *Engine) GetQuote(ctx context.Context, marketID, outcomeID string, amount float64) (domain.Quote, error) {
	m, err := e.ledger.Snapshot(ctx, marketID)
	if err != nil {
		return domain.Quote{}, err
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.Quote{}, domain.ErrMarketNotOpen
	}
	idx := m.OutcomeIndex(outcomeID)
	if idx < 0 {
		return domain.Quote{}, domain.ErrInvalidOutcome
	}
	if amount < m.Limits.MinBet || amount > m.Limits.MaxBet {
		return domain.Quote{}, fmt.Errorf("amount %.2f outside [%.2f, %.2f]: %w",
			amount, m.Limits.MinBet, m.Limits.MaxBet, domain.ErrBetOutOfRange)
	}

	q := m.ShareVector()
	delta, err := solveShares(q, m.Liquidity, idx, amount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("engine: quote market %s: %w", marketID, err)
	}

	after := make([]float64, len(q))
	copy(after, q)
	after[idx] += delta

	return domain.Quote{
		MarketID:    marketID,
		OutcomeID:   outcomeID,
		Amount:      amount,
		Shares:      delta,
		PriceBefore: pricing.Price(q, m.Liquidity, idx),
		PriceAfter:  pricing.Price(after, m.Liquidity, idx),
		Version:     m.Version,
	}, nil
}

// PlaceBet validates the request, debits the stake, and commits the trade
// at the ledger's serialization point. The cost is recomputed at commit
// time; a version race or cost deviation triggers a fresh re-quote, up to
// the configured attempt bound. A failed commit always refunds the debit,
// so the ledger is never mutated without a confirmed balance change.
func (e *Engine) PlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Bet, error) {
	if req.Amount <= 0 {
		return domain.Bet{}, fmt.Errorf("%w: amount must be positive", domain.ErrBetOutOfRange)
	}
	if req.UserID == "" {
		return domain.Bet{}, fmt.Errorf("%w: user id required", domain.ErrValidation)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		bet, err := e.tryPlaceBet(ctx, req)
		if err == nil {
			return bet, nil
		}
		if !errors.Is(err, domain.ErrConcurrency) {
			return domain.Bet{}, err
		}
		lastErr = err
		e.logger.DebugContext(ctx, "bet lost version race, re-quoting",
			slog.String("market_id", req.MarketID),
			slog.Int("attempt", attempt),
		)
	}
	return domain.Bet{}, fmt.Errorf("engine: place bet after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// tryPlaceBet runs one quote-debit-commit round against a single snapshot.
func (e *Engine) tryPlaceBet(ctx context.Context, req PlaceBetRequest) (domain.Bet, error) {
	m, err := e.ledger.Snapshot(ctx, req.MarketID)
	if err != nil {
		return domain.Bet{}, err
	}
	if m.Status != domain.MarketStatusOpen {
		return domain.Bet{}, domain.ErrMarketNotOpen
	}
	idx := m.OutcomeIndex(req.OutcomeID)
	if idx < 0 {
		return domain.Bet{}, domain.ErrInvalidOutcome
	}
	if req.Amount < m.Limits.MinBet || req.Amount > m.Limits.MaxBet {
		return domain.Bet{}, fmt.Errorf("amount %.2f outside [%.2f, %.2f]: %w",
			req.Amount, m.Limits.MinBet, m.Limits.MaxBet, domain.ErrBetOutOfRange)
	}

	q := m.ShareVector()
	b := m.Liquidity
	delta, err := solveShares(q, b, idx, req.Amount)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("engine: solve shares: %w", err)
	}

	// LMSR exposure is global: a buy on one outcome raises the worst-case
	// payout only on that outcome, but the cap applies to every outcome's
	// liability, so check them all.
	if m.Limits.MaxExposure > 0 {
		for i := range q {
			liability := q[i]
			if i == idx {
				liability += delta
			}
			if liability > m.Limits.MaxExposure {
				return domain.Bet{}, fmt.Errorf("payout liability %.2f on outcome %d exceeds %.2f: %w",
					liability, i, m.Limits.MaxExposure, domain.ErrExposureExceeded)
			}
		}
	}

	priceBefore := pricing.Price(q, b, idx)
	odds, err := pricing.ProbabilityToAmericanOdds(priceBefore)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("engine: odds: %w", err)
	}

	betID := uuid.New().String()

	// Debit first: a trade must never mutate the ledger without a
	// confirmed balance change backing it.
	if err := e.balance.Debit(ctx, req.UserID, req.Amount, betID); err != nil {
		return domain.Bet{}, fmt.Errorf("engine: debit user %s: %w: %w", req.UserID, domain.ErrExternal, err)
	}

	committed, cost, err := e.ledger.ApplyTrade(ctx, req.MarketID, idx, delta, req.Amount, e.cfg.CostTolerance, m.Version)
	if err != nil {
		e.refund(ctx, req.UserID, req.Amount, betID)
		return domain.Bet{}, err
	}

	now := time.Now().UTC()
	bet := domain.Bet{
		ID:               betID,
		MarketID:         req.MarketID,
		OutcomeID:        req.OutcomeID,
		UserID:           req.UserID,
		Amount:           cost,
		Shares:           delta,
		PriceAtPlacement: priceBefore,
		OddsAtPlacement:  odds,
		Status:           domain.BetStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.bets.Create(ctx, bet); err != nil {
		// Compensate: unwind the committed trade, then refund.
		if _, _, undoErr := e.ledger.ApplyTrade(ctx, req.MarketID, idx, -delta, -cost, e.cfg.CostTolerance, committed.Version); undoErr != nil {
			e.logger.ErrorContext(ctx, "bet persist rollback failed",
				slog.String("bet_id", betID),
				slog.String("error", undoErr.Error()),
			)
		}
		e.refund(ctx, req.UserID, req.Amount, betID)
		return domain.Bet{}, fmt.Errorf("engine: persist bet: %w: %w", domain.ErrExternal, err)
	}

	e.publishPrices(ctx, committed)
	e.logger.InfoContext(ctx, "bet placed",
		slog.String("bet_id", betID),
		slog.String("market_id", req.MarketID),
		slog.String("user_id", req.UserID),
		slog.Float64("amount", cost),
		slog.Float64("shares", delta),
	)
	return bet, nil
}

// CashOut unwinds a bet's outstanding shares at the current ledger state
// and credits the holder. Allowed only while the market is open or locked
// and the market has cash-out enabled.
func (e *Engine) CashOut(ctx context.Context, betID string) (domain.CashOutResult, error) {
	bet, err := e.bets.Get(ctx, betID)
	if err != nil {
		return domain.CashOutResult{}, fmt.Errorf("engine: load bet %s: %w", betID, err)
	}
	if bet.Status != domain.BetStatusActive {
		return domain.CashOutResult{}, fmt.Errorf("bet %s is %s: %w", betID, bet.Status, domain.ErrNotCashable)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res, err := e.tryCashOut(ctx, bet)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrConcurrency) {
			return domain.CashOutResult{}, err
		}
		lastErr = err
	}
	return domain.CashOutResult{}, fmt.Errorf("engine: cash out after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

func (e *Engine) tryCashOut(ctx context.Context, bet domain.Bet) (domain.CashOutResult, error) {
	m, err := e.ledger.Snapshot(ctx, bet.MarketID)
	if err != nil {
		return domain.CashOutResult{}, err
	}
	if m.Status != domain.MarketStatusOpen && m.Status != domain.MarketStatusLocked {
		return domain.CashOutResult{}, fmt.Errorf("market %s is %s: %w", m.ID, m.Status, domain.ErrMarketClosed)
	}
	if !m.CashOutEnabled {
		return domain.CashOutResult{}, fmt.Errorf("market %s: %w", m.ID, domain.ErrNotCashable)
	}
	idx := m.OutcomeIndex(bet.OutcomeID)
	if idx < 0 {
		return domain.CashOutResult{}, domain.ErrInvalidOutcome
	}

	value := pricing.CashOutValue(m.ShareVector(), m.Liquidity, idx, bet.Shares)

	committed, cost, err := e.ledger.ApplyTrade(ctx, bet.MarketID, idx, -bet.Shares, -value, e.cfg.CostTolerance, m.Version)
	if err != nil {
		return domain.CashOutResult{}, err
	}
	value = -cost

	// Claim the bet before any money moves. Settlement and refunds claim
	// through the same status guard, so exactly one path pays each bet.
	now := time.Now().UTC()
	claimed := bet
	claimed.Status = domain.BetStatusCashedOut
	claimed.SettledAmount = value
	claimed.ProfitLoss = value - bet.Amount
	claimed.UpdatedAt = now
	claimed.SettledAt = &now
	if err := e.bets.UpdateIf(ctx, claimed, domain.BetStatusActive); err != nil {
		e.restorePosition(ctx, bet, idx, value, committed.Version)
		if errors.Is(err, domain.ErrConcurrency) {
			return domain.CashOutResult{}, fmt.Errorf("bet %s already resolved: %w", bet.ID, domain.ErrNotCashable)
		}
		return domain.CashOutResult{}, fmt.Errorf("engine: claim cash-out %s: %w: %w", bet.ID, domain.ErrExternal, err)
	}

	if err := e.balance.Credit(ctx, bet.UserID, value, bet.ID); err != nil {
		e.restorePosition(ctx, bet, idx, value, committed.Version)
		e.releaseClaim(ctx, bet, claimed)
		return domain.CashOutResult{}, fmt.Errorf("engine: credit user %s: %w: %w", bet.UserID, domain.ErrExternal, err)
	}

	e.publishPrices(ctx, committed)
	e.logger.InfoContext(ctx, "bet cashed out",
		slog.String("bet_id", bet.ID),
		slog.Float64("value", value),
		slog.Float64("pnl", claimed.ProfitLoss),
	)
	return domain.CashOutResult{BetID: bet.ID, Value: value}, nil
}

// restorePosition re-applies an unwound position after a cash-out aborts.
// On a market that resolved in the meantime the buy-back is rejected; the
// share vector no longer prices anything there, so the failure is logged
// and the resolution path's payout stands.
func (e *Engine) restorePosition(ctx context.Context, bet domain.Bet, idx int, value float64, version int64) {
	if _, _, err := e.ledger.ApplyTrade(ctx, bet.MarketID, idx, bet.Shares, value, e.cfg.CostTolerance, version); err != nil {
		e.logger.WarnContext(ctx, "cash-out position restore failed",
			slog.String("bet_id", bet.ID),
			slog.String("market_id", bet.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// refund credits back a debited stake; a failure here is logged loudly but
// cannot be repaired in-process.
func (e *Engine) refund(ctx context.Context, userID string, amount float64, ref string) {
	if err := e.balance.Credit(ctx, userID, amount, ref); err != nil {
		e.logger.ErrorContext(ctx, "refund of aborted trade failed",
			slog.String("user_id", userID),
			slog.String("ref", ref),
			slog.Float64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// publishPrices refreshes the price cache and broadcasts a price update.
// Both are best-effort: the trade is already committed.
func (e *Engine) publishPrices(ctx context.Context, m domain.Market) {
	prices := pricing.Prices(m.ShareVector(), m.Liquidity)
	now := time.Now().UTC()

	if e.prices != nil {
		pv := domain.PriceVector{MarketID: m.ID, Prices: prices, Version: m.Version, UpdatedAt: now}
		if err := e.prices.Set(ctx, pv); err != nil {
			e.logger.WarnContext(ctx, "price cache update failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		payload, err := json.Marshal(domain.PriceUpdate{
			MarketID: m.ID,
			Prices:   prices,
			Volume:   m.Volume,
			Version:  m.Version,
			At:       now,
		})
		if err == nil {
			if err := e.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
				e.logger.WarnContext(ctx, "price publish failed",
					slog.String("market_id", m.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// GetBet returns a bet by ID.
func (e *Engine) GetBet(ctx context.Context, betID string) (domain.Bet, error) {
	return e.bets.Get(ctx, betID)
}

// GetMarket returns the current snapshot of a market.
func (e *Engine) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	return e.ledger.Snapshot(ctx, marketID)
}

// ListUserBets returns a user's bets, newest first.
func (e *Engine) ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	return e.bets.ListByUser(ctx, userID, opts)
}
