// Package ledger owns the mutable per-market state: the share vector, the
// lifecycle status, and the version counter. All mutation happens through
// ApplyTrade and Transition, which serialize to a single writer per market
// while leaving unrelated markets fully parallel.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/pricing"
)

// entry holds one market's current snapshot. The mutex is the single
// safety-critical serialization point: exactly one trade may be in flight
// per market at a time.
type entry struct {
	mu    sync.Mutex
	state *domain.Market
}

// Ledger maintains versioned, copy-on-write market snapshots backed by a
// MarketStore. Callers only ever hold the snapshot version they last read;
// every mutation yields a new immutable state plus a version bump, written
// through to the store with optimistic concurrency before it becomes
// visible.
type Ledger struct {
	store  domain.MarketStore
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates a Ledger backed by the given store.
func New(store domain.MarketStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   store,
		logger:  logger.With(slog.String("component", "ledger")),
		entries: make(map[string]*entry),
	}
}

// Register creates a market in the store and attaches it to the ledger.
func (l *Ledger) Register(ctx context.Context, m domain.Market) error {
	if err := l.store.Create(ctx, m); err != nil {
		return fmt.Errorf("ledger: create market %s: %w", m.ID, err)
	}
	snap := m.Clone()
	l.mu.Lock()
	l.entries[m.ID] = &entry{state: &snap}
	l.mu.Unlock()
	return nil
}

// lookup returns the entry for a market, lazily loading it from the store
// the first time an instance sees the market.
func (l *Ledger) lookup(ctx context.Context, marketID string) (*entry, error) {
	l.mu.RLock()
	e, ok := l.entries[marketID]
	l.mu.RUnlock()
	if ok {
		return e, nil
	}

	m, err := l.store.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("ledger: load market %s: %w", marketID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok = l.entries[marketID]; ok {
		return e, nil
	}
	snap := m.Clone()
	e = &entry{state: &snap}
	l.entries[marketID] = e
	return e, nil
}

// Snapshot returns a copy of the market's current state. The copy is safe to
// read and quote against without holding any lock.
func (l *Ledger) Snapshot(ctx context.Context, marketID string) (domain.Market, error) {
	e, err := l.lookup(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	e.mu.Lock()
	snap := e.state.Clone()
	e.mu.Unlock()
	return snap, nil
}

// ApplyTrade atomically commits a trade against the market: q[outcome] +=
// delta, volume and version bump, price-sum revalidation, and write-through
// to the store. The cost is computed against the state at commit time and
// must match expectedCost within tolerance, otherwise the trade is rejected
// with ErrCostDeviation so the caller can re-quote. A caller whose read
// version no longer matches is rejected with ErrStaleVersion.
//
// Buys (delta > 0) require an open market; sells (delta < 0, cash-out)
// are also accepted while the market is locked. delta == 0 is rejected
// explicitly rather than treated as a silent success.
func (l *Ledger) ApplyTrade(ctx context.Context, marketID string, outcome int, delta, expectedCost, tolerance float64, expectedVersion int64) (domain.Market, float64, error) {
	e, err := l.lookup(ctx, marketID)
	if err != nil {
		return domain.Market{}, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	if outcome < 0 || outcome >= len(st.Outcomes) {
		return domain.Market{}, 0, domain.ErrInvalidOutcome
	}
	if delta == 0 {
		return domain.Market{}, 0, domain.ErrZeroDelta
	}
	switch st.Status {
	case domain.MarketStatusOpen:
		// any trade
	case domain.MarketStatusLocked:
		if delta > 0 {
			return domain.Market{}, 0, domain.ErrMarketNotOpen
		}
	default:
		return domain.Market{}, 0, domain.ErrMarketNotOpen
	}
	if st.Version != expectedVersion {
		return domain.Market{}, 0, fmt.Errorf("market %s at v%d, caller read v%d: %w",
			marketID, st.Version, expectedVersion, domain.ErrStaleVersion)
	}

	q := st.ShareVector()
	cost := pricing.CostToBuy(q, st.Liquidity, outcome, delta)
	if math.Abs(cost-expectedCost) > tolerance {
		return domain.Market{}, 0, fmt.Errorf("commit cost %.6f vs quoted %.6f: %w",
			cost, expectedCost, domain.ErrCostDeviation)
	}

	next := st.Clone()
	next.Outcomes[outcome].Shares += delta
	next.Outcomes[outcome].Volume += math.Abs(cost)
	next.Volume += math.Abs(cost)
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	if err := pricing.ValidatePriceSum(next.ShareVector(), next.Liquidity); err != nil {
		return domain.Market{}, 0, fmt.Errorf("ledger: post-trade invariant: %w", err)
	}

	if err := l.store.Save(ctx, next, st.Version); err != nil {
		return domain.Market{}, 0, fmt.Errorf("ledger: save market %s: %w", marketID, err)
	}
	e.state = &next

	l.logger.DebugContext(ctx, "trade committed",
		slog.String("market_id", marketID),
		slog.Int("outcome", outcome),
		slog.Float64("delta", delta),
		slog.Float64("cost", cost),
		slog.Int64("version", next.Version),
	)
	return next.Clone(), cost, nil
}

// Transition moves the market to the next lifecycle status, applying the
// optional mutate hook to the new snapshot before it is persisted. The
// lifecycle is one-directional; terminal states reject everything.
func (l *Ledger) Transition(ctx context.Context, marketID string, status domain.MarketStatus, mutate func(*domain.Market)) (domain.Market, error) {
	e, err := l.lookup(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	if !st.Status.CanTransitionTo(status) {
		return domain.Market{}, fmt.Errorf("market %s: %s -> %s: %w",
			marketID, st.Status, status, domain.ErrInvalidTransition)
	}

	next := st.Clone()
	next.Status = status
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(&next)
	}

	if err := l.store.Save(ctx, next, st.Version); err != nil {
		return domain.Market{}, fmt.Errorf("ledger: save market %s: %w", marketID, err)
	}
	e.state = &next

	l.logger.InfoContext(ctx, "market status changed",
		slog.String("market_id", marketID),
		slog.String("from", string(st.Status)),
		slog.String("to", string(status)),
	)
	return next.Clone(), nil
}

// ListByStatus returns markets in the given status straight from the store.
// Listing is a read-side query and does not populate ledger entries.
func (l *Ledger) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	ms, err := l.store.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: list %s markets: %w", status, err)
	}
	return ms, nil
}
