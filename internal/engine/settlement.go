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

// SettleMarket resolves a market to the given winning outcome: the market
// transitions to settled first, then every active bet on the winner pays
// out its full share count and every other active bet is marked lost. The
// status flip happens before any money moves, so no new cash-out can start
// once resolution has begun; each bet is then claimed with a status-guarded
// write before its payout, so a cash-out that was already in flight either
// owns the bet or loses it, never both. A repeated call with the same
// winning outcome is idempotent: it finishes paying any bet left unclaimed
// by an aborted run and returns the stored result. A different outcome is
// rejected with ErrAlreadySettled.
func (e *Engine) SettleMarket(ctx context.Context, marketID, winningOutcomeID string) (domain.SettlementResult, error) {
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "settle:"+marketID, e.cfg.SettleLockTTL)
		if err != nil {
			return domain.SettlementResult{}, fmt.Errorf("engine: settle fence %s: %w", marketID, err)
		}
		defer unlock()
	}

	m, err := e.ledger.Snapshot(ctx, marketID)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	if idx := m.OutcomeIndex(winningOutcomeID); idx < 0 {
		return domain.SettlementResult{}, domain.ErrInvalidOutcome
	}

	fresh := true
	switch m.Status {
	case domain.MarketStatusSettled:
		if m.WinningOutcomeID != winningOutcomeID {
			return domain.SettlementResult{}, fmt.Errorf("market %s settled to %s, got %s: %w",
				marketID, m.WinningOutcomeID, winningOutcomeID, domain.ErrAlreadySettled)
		}
		fresh = false
	case domain.MarketStatusLocked:
		// settle directly
	case domain.MarketStatusOpen:
		if !e.cfg.SettleFromOpen {
			return domain.SettlementResult{}, fmt.Errorf("market %s is open: %w", marketID, domain.ErrMarketNotLocked)
		}
		if m, err = e.LockMarket(ctx, marketID); err != nil {
			return domain.SettlementResult{}, err
		}
	default:
		return domain.SettlementResult{}, fmt.Errorf("market %s is %s: %w", marketID, m.Status, domain.ErrMarketNotLocked)
	}

	now := time.Now().UTC()
	if fresh {
		if m, err = e.ledger.Transition(ctx, marketID, domain.MarketStatusSettled, func(m *domain.Market) {
			m.WinningOutcomeID = winningOutcomeID
			m.SettledAt = &now
		}); err != nil {
			return domain.SettlementResult{}, err
		}
	}

	result, err := e.resolveBets(ctx, marketID, winningOutcomeID, now)
	if err != nil {
		return result, err
	}

	if fresh {
		e.publishSettlement(ctx, m, result)
		e.archive(ctx, marketID)
		if e.notifier != nil {
			e.notifier.MarketSettled(ctx, m, result.TotalPaidOut, len(result.SettledBets))
		}
		e.logger.InfoContext(ctx, "market settled",
			slog.String("market_id", marketID),
			slog.String("winning_outcome", winningOutcomeID),
			slog.Int("bets", len(result.SettledBets)),
			slog.Float64("paid_out", result.TotalPaidOut),
		)
	}
	return result, nil
}

// resolveBets claims and pays every still-active bet on a settled market,
// then rebuilds the full settlement result from the bet store. The claim
// precedes the credit: a bet that cannot be claimed has already been
// resolved elsewhere and must not be paid here.
func (e *Engine) resolveBets(ctx context.Context, marketID, winningOutcomeID string, now time.Time) (domain.SettlementResult, error) {
	result := domain.SettlementResult{MarketID: marketID, WinningOutcomeID: winningOutcomeID}

	bets, err := e.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return result, fmt.Errorf("engine: list bets for %s: %w", marketID, err)
	}

	for _, bet := range bets {
		if bet.Status != domain.BetStatusActive {
			continue
		}
		claimed := bet
		if claimed.OutcomeID == winningOutcomeID {
			claimed.Status = domain.BetStatusWon
			claimed.SettledAmount = bet.PotentialPayout()
		} else {
			claimed.Status = domain.BetStatusLost
			claimed.SettledAmount = 0
		}
		claimed.ProfitLoss = claimed.SettledAmount - claimed.Amount
		claimed.UpdatedAt = now
		claimed.SettledAt = &now

		if err := e.bets.UpdateIf(ctx, claimed, domain.BetStatusActive); err != nil {
			if errors.Is(err, domain.ErrConcurrency) {
				// A cash-out claimed the bet first; its credit is the
				// bet's one and only payout.
				continue
			}
			return result, fmt.Errorf("engine: claim bet %s: %w: %w", bet.ID, domain.ErrExternal, err)
		}
		if claimed.SettledAmount > 0 {
			if err := e.balance.Credit(ctx, claimed.UserID, claimed.SettledAmount, claimed.ID); err != nil {
				e.releaseClaim(ctx, bet, claimed)
				return result, fmt.Errorf("engine: pay out bet %s: %w: %w", bet.ID, domain.ErrExternal, err)
			}
		}
	}

	bets, err = e.bets.ListByMarket(ctx, marketID)
	if err != nil {
		return result, fmt.Errorf("engine: list bets for %s: %w", marketID, err)
	}
	for _, bet := range bets {
		if bet.Status != domain.BetStatusWon && bet.Status != domain.BetStatusLost {
			continue
		}
		result.SettledBets = append(result.SettledBets, bet)
		result.TotalPaidOut += bet.SettledAmount
	}
	return result, nil
}

// releaseClaim puts a claimed bet back to its pre-claim state after the
// payout behind it failed, so a later run can pay it.
func (e *Engine) releaseClaim(ctx context.Context, original, claimed domain.Bet) {
	if err := e.bets.UpdateIf(ctx, original, claimed.Status); err != nil {
		e.logger.ErrorContext(ctx, "claim release failed",
			slog.String("bet_id", original.ID),
			slog.String("claimed_status", string(claimed.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publishSettlement(ctx context.Context, m domain.Market, result domain.SettlementResult) {
	e.publishMarketEvent(ctx, m)
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, domain.ChannelSettlements, payload); err != nil {
		e.logger.WarnContext(ctx, "settlement publish failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// archive exports the resolved market to blob storage, best-effort.
func (e *Engine) archive(ctx context.Context, marketID string) {
	if e.archiver == nil {
		return
	}
	path, err := e.archiver.ArchiveMarket(ctx, marketID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.logger.WarnContext(ctx, "market archive failed",
				slog.String("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	e.logger.InfoContext(ctx, "market archived",
		slog.String("market_id", marketID),
		slog.String("path", path),
	)
}
