package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/pricing"
	"github.com/alanyoungcy/poolhouse/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarket(status domain.MarketStatus) domain.Market {
	now := time.Now().UTC()
	return domain.Market{
		ID:        "m1",
		Type:      domain.MarketTypeMatchup,
		Label:     "Home vs Away",
		Outcomes:  []domain.Outcome{{ID: "o1", Label: "Home"}, {ID: "o2", Label: "Away"}},
		Liquidity: 100,
		Status:    status,
		Version:   1,
		Limits:    domain.BetLimits{MinBet: 1, MaxBet: 1_000},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestLedger(t *testing.T, status domain.MarketStatus) *Ledger {
	t.Helper()
	l := New(memory.NewMarketStore(), testLogger())
	require.NoError(t, l.Register(context.Background(), testMarket(status)))
	return l
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	snap, err := l.Snapshot(ctx, "m1")
	require.NoError(t, err)
	snap.Outcomes[0].Shares = 999

	again, err := l.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, again.Outcomes[0].Shares)
}

func TestSnapshotUnknownMarket(t *testing.T) {
	l := New(memory.NewMarketStore(), testLogger())
	_, err := l.Snapshot(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyTradeCommits(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	m, _ := l.Snapshot(ctx, "m1")
	delta := 80.0
	expected := pricing.CostToBuy(m.ShareVector(), m.Liquidity, 0, delta)

	committed, cost, err := l.ApplyTrade(ctx, "m1", 0, delta, expected, 0.01, m.Version)
	require.NoError(t, err)
	assert.InDelta(t, expected, cost, 1e-9)
	assert.Equal(t, int64(2), committed.Version)
	assert.InDelta(t, delta, committed.Outcomes[0].Shares, 1e-9)
	assert.InDelta(t, cost, committed.Volume, 1e-9)
}

func TestApplyTradeStaleVersion(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	m, _ := l.Snapshot(ctx, "m1")
	expected := pricing.CostToBuy(m.ShareVector(), m.Liquidity, 0, 50)
	_, _, err := l.ApplyTrade(ctx, "m1", 0, 50, expected, 0.01, m.Version)
	require.NoError(t, err)

	// The same snapshot version is now stale.
	_, _, err = l.ApplyTrade(ctx, "m1", 1, 50, expected, 0.01, m.Version)
	assert.ErrorIs(t, err, domain.ErrStaleVersion)
	assert.ErrorIs(t, err, domain.ErrConcurrency)
}

func TestApplyTradeCostDeviation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	m, _ := l.Snapshot(ctx, "m1")
	expected := pricing.CostToBuy(m.ShareVector(), m.Liquidity, 0, 50)

	_, _, err := l.ApplyTrade(ctx, "m1", 0, 50, expected+1, 0.01, m.Version)
	assert.ErrorIs(t, err, domain.ErrCostDeviation)

	// The rejected trade must not have touched the state.
	after, _ := l.Snapshot(ctx, "m1")
	assert.Equal(t, m.Version, after.Version)
	assert.Zero(t, after.Outcomes[0].Shares)
}

func TestApplyTradeZeroDelta(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)
	m, _ := l.Snapshot(ctx, "m1")
	_, _, err := l.ApplyTrade(ctx, "m1", 0, 0, 0, 0.01, m.Version)
	assert.ErrorIs(t, err, domain.ErrZeroDelta)
}

func TestApplyTradeInvalidOutcome(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)
	m, _ := l.Snapshot(ctx, "m1")
	_, _, err := l.ApplyTrade(ctx, "m1", 5, 10, 5, 0.01, m.Version)
	assert.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestApplyTradeStatusRules(t *testing.T) {
	ctx := context.Background()

	t.Run("pending rejects everything", func(t *testing.T) {
		l := newTestLedger(t, domain.MarketStatusPending)
		m, _ := l.Snapshot(ctx, "m1")
		_, _, err := l.ApplyTrade(ctx, "m1", 0, 10, 9, 0.01, m.Version)
		assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})

	t.Run("locked rejects buys but accepts sells", func(t *testing.T) {
		l := newTestLedger(t, domain.MarketStatusOpen)
		m, _ := l.Snapshot(ctx, "m1")
		buy := pricing.CostToBuy(m.ShareVector(), m.Liquidity, 0, 60)
		committed, _, err := l.ApplyTrade(ctx, "m1", 0, 60, buy, 0.01, m.Version)
		require.NoError(t, err)

		locked, err := l.Transition(ctx, "m1", domain.MarketStatusLocked, nil)
		require.NoError(t, err)

		_, _, err = l.ApplyTrade(ctx, "m1", 0, 10, 5, 0.01, locked.Version)
		assert.ErrorIs(t, err, domain.ErrMarketNotOpen)

		sell := pricing.CostToBuy(committed.ShareVector(), committed.Liquidity, 0, -60)
		_, cost, err := l.ApplyTrade(ctx, "m1", 0, -60, sell, 0.01, locked.Version)
		require.NoError(t, err)
		assert.Negative(t, cost)
	})

	t.Run("settled rejects everything", func(t *testing.T) {
		l := newTestLedger(t, domain.MarketStatusLocked)
		m, err := l.Transition(ctx, "m1", domain.MarketStatusSettled, nil)
		require.NoError(t, err)
		_, _, err = l.ApplyTrade(ctx, "m1", 0, -10, -5, 0.01, m.Version)
		assert.ErrorIs(t, err, domain.ErrMarketNotOpen)
	})
}

func TestTransitionLifecycle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusPending)

	m, err := l.Transition(ctx, "m1", domain.MarketStatusOpen, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Version)

	m, err = l.Transition(ctx, "m1", domain.MarketStatusLocked, nil)
	require.NoError(t, err)

	m, err = l.Transition(ctx, "m1", domain.MarketStatusSettled, func(m *domain.Market) {
		m.WinningOutcomeID = "o1"
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", m.WinningOutcomeID)
}

func TestTransitionRejectsInvalidMoves(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		from domain.MarketStatus
		to   domain.MarketStatus
	}{
		{"pending to locked", domain.MarketStatusPending, domain.MarketStatusLocked},
		{"pending to settled", domain.MarketStatusPending, domain.MarketStatusSettled},
		{"open to settled", domain.MarketStatusOpen, domain.MarketStatusSettled},
		{"locked to open", domain.MarketStatusLocked, domain.MarketStatusOpen},
		{"settled to anything", domain.MarketStatusSettled, domain.MarketStatusCancelled},
		{"cancelled to open", domain.MarketStatusCancelled, domain.MarketStatusOpen},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newTestLedger(t, tc.from)
			_, err := l.Transition(ctx, "m1", tc.to, nil)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		})
	}
}

func TestCancelAllowedFromAnyPreSettledState(t *testing.T) {
	ctx := context.Background()
	for _, from := range []domain.MarketStatus{
		domain.MarketStatusPending, domain.MarketStatusOpen, domain.MarketStatusLocked,
	} {
		l := newTestLedger(t, from)
		m, err := l.Transition(ctx, "m1", domain.MarketStatusCancelled, nil)
		require.NoError(t, err, "from %s", from)
		assert.Equal(t, domain.MarketStatusCancelled, m.Status)
	}
}

func TestConcurrentTradesSerialize(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	const workers = 8
	const tradesPerWorker = 25

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(outcome int) {
			defer wg.Done()
			for i := 0; i < tradesPerWorker; i++ {
				for {
					m, err := l.Snapshot(ctx, "m1")
					if err != nil {
						errs <- err
						return
					}
					cost := pricing.CostToBuy(m.ShareVector(), m.Liquidity, outcome, 1)
					_, _, err = l.ApplyTrade(ctx, "m1", outcome, 1, cost, 0.01, m.Version)
					if err == nil {
						break
					}
					if !errors.Is(err, domain.ErrConcurrency) {
						errs <- err
						return
					}
				}
			}
		}(w % 2)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	final, err := l.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(1+workers*tradesPerWorker), final.Version)
	total := final.Outcomes[0].Shares + final.Outcomes[1].Shares
	assert.InDelta(t, float64(workers*tradesPerWorker), total, 1e-6)
}

func TestLazyLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketStore()
	require.NoError(t, store.Create(ctx, testMarket(domain.MarketStatusOpen)))

	// A fresh ledger has no entry; the first access loads it.
	l := New(store, testLogger())
	m, err := l.Snapshot(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, domain.MarketStatusOpen)

	open, err := l.ListByStatus(ctx, domain.MarketStatusOpen, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, open, 1)

	locked, err := l.ListByStatus(ctx, domain.MarketStatusLocked, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, locked)
}
