package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// CreateMarketParams describes a market to build. Outcomes carry labels;
// outcome IDs are generated. For propositions only Line is required: the
// over/under pair is derived from it.
type CreateMarketParams struct {
	Type           domain.MarketType `json:"type"`
	Label          string            `json:"label"`
	Outcomes       []string          `json:"outcomes"`
	Line           float64           `json:"line,omitempty"`
	Liquidity      float64           `json:"liquidity,omitempty"`
	Limits         *domain.BetLimits `json:"limits,omitempty"`
	CashOutEnabled *bool             `json:"cashOutEnabled,omitempty"`
	OpensAt        *time.Time        `json:"opensAt,omitempty"`
	ClosesAt       *time.Time        `json:"closesAt,omitempty"`
}

// marketTemplate holds per-type defaults. Liquidity scales with the typical
// outcome count and volume of the market type; limits bound single stakes
// and the platform's worst-case payout on any outcome.
type marketTemplate struct {
	liquidity float64
	limits    domain.BetLimits
	minOut    int
	maxOut    int
	cashOut   bool
}

var templates = map[domain.MarketType]marketTemplate{
	domain.MarketTypePoolWinner: {
		liquidity: 250,
		limits:    domain.BetLimits{MinBet: 1, MaxBet: 500, MaxExposure: 25_000},
		minOut:    2, maxOut: 128,
		cashOut: true,
	},
	domain.MarketTypeMatchup: {
		liquidity: 100,
		limits:    domain.BetLimits{MinBet: 1, MaxBet: 1_000, MaxExposure: 10_000},
		minOut:    2, maxOut: 2,
		cashOut: true,
	},
	domain.MarketTypeFutures: {
		liquidity: 500,
		limits:    domain.BetLimits{MinBet: 1, MaxBet: 2_000, MaxExposure: 50_000},
		minOut:    2, maxOut: 64,
		cashOut: true,
	},
	domain.MarketTypeProposition: {
		liquidity: 100,
		limits:    domain.BetLimits{MinBet: 1, MaxBet: 500, MaxExposure: 10_000},
		minOut:    2, maxOut: 2,
		cashOut: false,
	},
	domain.MarketTypeHeadToHead: {
		liquidity: 150,
		limits:    domain.BetLimits{MinBet: 1, MaxBet: 1_000, MaxExposure: 15_000},
		minOut:    3, maxOut: 3,
		cashOut: true,
	},
}

// CreateMarket builds a typed market from the template for its type,
// registers it with the ledger, and returns the pending market. Markets are
// born pending; OpenMarket makes them tradable.
func (e *Engine) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	tpl, ok := templates[p.Type]
	if !ok {
		return domain.Market{}, fmt.Errorf("%w: unknown market type %q", domain.ErrValidation, p.Type)
	}
	if strings.TrimSpace(p.Label) == "" {
		return domain.Market{}, fmt.Errorf("%w: market label is required", domain.ErrValidation)
	}

	labels := p.Outcomes
	if p.Type == domain.MarketTypeProposition && len(labels) == 0 {
		if p.Line <= 0 {
			return domain.Market{}, fmt.Errorf("%w: proposition requires a positive line", domain.ErrValidation)
		}
		labels = []string{
			fmt.Sprintf("Over %.1f", p.Line),
			fmt.Sprintf("Under %.1f", p.Line),
		}
	}
	if p.Type == domain.MarketTypeHeadToHead && len(labels) == 2 {
		labels = append(labels, "Tie")
	}

	if len(labels) < tpl.minOut || len(labels) > tpl.maxOut {
		return domain.Market{}, fmt.Errorf("%w: market type %s needs %d..%d outcomes, got %d",
			domain.ErrValidation, p.Type, tpl.minOut, tpl.maxOut, len(labels))
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		key := strings.ToLower(strings.TrimSpace(l))
		if key == "" {
			return domain.Market{}, fmt.Errorf("%w: empty outcome label", domain.ErrValidation)
		}
		if seen[key] {
			return domain.Market{}, fmt.Errorf("%w: duplicate outcome label %q", domain.ErrValidation, l)
		}
		seen[key] = true
	}

	b := tpl.liquidity
	if p.Liquidity > 0 {
		b = p.Liquidity
	}
	limits := tpl.limits
	if p.Limits != nil {
		limits = *p.Limits
	}
	if limits.MinBet <= 0 || limits.MaxBet < limits.MinBet {
		return domain.Market{}, fmt.Errorf("%w: bet limits min %.2f max %.2f", domain.ErrValidation, limits.MinBet, limits.MaxBet)
	}
	cashOut := tpl.cashOut
	if p.CashOutEnabled != nil {
		cashOut = *p.CashOutEnabled
	}

	now := time.Now().UTC()
	m := domain.Market{
		ID:             uuid.New().String(),
		Type:           p.Type,
		Label:          p.Label,
		Outcomes:       make([]domain.Outcome, len(labels)),
		Liquidity:      b,
		Status:         domain.MarketStatusPending,
		Version:        1,
		Limits:         limits,
		CashOutEnabled: cashOut,
		OpensAt:        p.OpensAt,
		ClosesAt:       p.ClosesAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, label := range labels {
		m.Outcomes[i] = domain.Outcome{
			ID:    uuid.New().String(),
			Label: label,
		}
	}

	if err := e.ledger.Register(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("engine: create market: %w", err)
	}

	if e.notifier != nil {
		e.notifier.MarketCreated(ctx, m)
	}
	e.logger.InfoContext(ctx, "market created",
		slog.String("market_id", m.ID),
		slog.String("type", string(m.Type)),
		slog.Int("outcomes", len(m.Outcomes)),
		slog.Float64("liquidity", b),
	)
	return m, nil
}
