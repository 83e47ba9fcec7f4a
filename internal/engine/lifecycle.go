package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// OpenMarket moves a pending market to open, making it tradeable.
func (e *Engine) OpenMarket(ctx context.Context, marketID string) (domain.Market, error) {
	m, err := e.ledger.Snapshot(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if len(m.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("%w: market %s has %d outcomes, need at least 2", domain.ErrValidation, marketID, len(m.Outcomes))
	}
	if m.Liquidity <= 0 {
		return domain.Market{}, fmt.Errorf("%w: market %s has non-positive liquidity", domain.ErrValidation, marketID)
	}

	now := time.Now().UTC()
	opened, err := e.ledger.Transition(ctx, marketID, domain.MarketStatusOpen, func(m *domain.Market) {
		if m.OpensAt == nil {
			m.OpensAt = &now
		}
	})
	if err != nil {
		return domain.Market{}, err
	}

	e.publishMarketEvent(ctx, opened)
	e.logger.InfoContext(ctx, "market opened", slog.String("market_id", marketID))
	return opened, nil
}

// LockMarket halts new buys on a market. Cash-out of existing positions
// remains available while locked.
func (e *Engine) LockMarket(ctx context.Context, marketID string) (domain.Market, error) {
	locked, err := e.ledger.Transition(ctx, marketID, domain.MarketStatusLocked, nil)
	if err != nil {
		return domain.Market{}, err
	}
	e.publishMarketEvent(ctx, locked)
	e.logger.InfoContext(ctx, "market locked", slog.String("market_id", marketID))
	return locked, nil
}

// CancelMarket aborts a market before resolution and refunds every
// outstanding stake at its original amount.
func (e *Engine) CancelMarket(ctx context.Context, marketID string) (domain.CancelResult, error) {
	return e.abortMarket(ctx, marketID, domain.MarketStatusCancelled, domain.BetStatusRefunded)
}

// VoidMarket invalidates a market (for example an abandoned event) and
// refunds every outstanding stake. Bets are marked voided rather than
// refunded so the two cases stay distinguishable in reporting.
func (e *Engine) VoidMarket(ctx context.Context, marketID string) (domain.CancelResult, error) {
	return e.abortMarket(ctx, marketID, domain.MarketStatusVoided, domain.BetStatusVoided)
}

// abortMarket transitions the market first so trading halts before any
// refund moves, then claims each active bet with a status-guarded write
// ahead of its credit. A refund failure leaves the market aborted with the
// remaining bets still active; a repeated call resumes and finishes them.
func (e *Engine) abortMarket(ctx context.Context, marketID string, target domain.MarketStatus, betStatus domain.BetStatus) (domain.CancelResult, error) {
	m, err := e.ledger.Snapshot(ctx, marketID)
	if err != nil {
		return domain.CancelResult{}, err
	}

	now := time.Now().UTC()
	fresh := m.Status != target
	if fresh {
		if m, err = e.ledger.Transition(ctx, marketID, target, func(m *domain.Market) {
			m.SettledAt = &now
		}); err != nil {
			return domain.CancelResult{}, err
		}
	}

	bets, err := e.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("engine: list bets for %s: %w", marketID, err)
	}

	result := domain.CancelResult{MarketID: marketID, Status: target}
	for _, bet := range bets {
		if bet.Status != domain.BetStatusActive {
			continue
		}
		claimed := bet
		claimed.Status = betStatus
		claimed.SettledAmount = bet.Amount
		claimed.ProfitLoss = 0
		claimed.UpdatedAt = now
		claimed.SettledAt = &now
		if err := e.bets.UpdateIf(ctx, claimed, domain.BetStatusActive); err != nil {
			if errors.Is(err, domain.ErrConcurrency) {
				continue
			}
			return result, fmt.Errorf("engine: claim bet %s: %w: %w", bet.ID, domain.ErrExternal, err)
		}
		if err := e.balance.Credit(ctx, bet.UserID, bet.Amount, bet.ID); err != nil {
			e.releaseClaim(ctx, bet, claimed)
			return result, fmt.Errorf("engine: refund bet %s: %w: %w", bet.ID, domain.ErrExternal, err)
		}
	}

	bets, err = e.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return result, fmt.Errorf("engine: list bets for %s: %w", marketID, err)
	}
	for _, bet := range bets {
		if bet.Status != betStatus {
			continue
		}
		result.Refunds = append(result.Refunds, domain.Refund{BetID: bet.ID, UserID: bet.UserID, Amount: bet.Amount})
		result.Total += bet.Amount
	}

	if fresh {
		e.publishMarketEvent(ctx, m)
		if e.notifier != nil {
			e.notifier.MarketAborted(ctx, m, result.Total, len(result.Refunds))
		}
		e.logger.InfoContext(ctx, "market aborted",
			slog.String("market_id", marketID),
			slog.String("status", string(target)),
			slog.Int("refunds", len(result.Refunds)),
			slog.Float64("total", result.Total),
		)
	}
	return result, nil
}

// ListMarkets returns markets in the given status.
func (e *Engine) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return e.ledger.ListByStatus(ctx, status, opts)
}

// ListBets returns a market's bets.
func (e *Engine) ListBets(ctx context.Context, marketID string) ([]domain.Bet, error) {
	return e.bets.ListByMarket(ctx, marketID)
}

func (e *Engine) publishMarketEvent(ctx context.Context, m domain.Market) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.MarketEvent{
		MarketID:         m.ID,
		Status:           m.Status,
		WinningOutcomeID: m.WinningOutcomeID,
		At:               time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelMarkets, payload); err != nil {
		e.logger.WarnContext(ctx, "market event publish failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}
