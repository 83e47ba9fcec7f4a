package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/poolhouse/internal/balance"
	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/ledger"
	"github.com/alanyoungcy/poolhouse/internal/store/memory"
)

const openingBalance = 1_000.0

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture bundles an engine with its collaborators so tests can inspect
// balances and stores directly.
type fixture struct {
	engine  *Engine
	ledger  *ledger.Ledger
	markets *memory.MarketStore
	bets    *memory.BetStore
	funds   *stubBalance
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	markets := memory.NewMarketStore()
	bets := memory.NewBetStore()
	funds := &stubBalance{mem: balance.NewMemoryService(openingBalance)}
	led := ledger.New(markets, testLogger())
	return &fixture{
		engine:  New(led, bets, funds, testLogger(), cfg),
		ledger:  led,
		markets: markets,
		bets:    bets,
		funds:   funds,
	}
}

// openMatchup creates and opens a two-outcome market, optionally overriding
// the template limits.
func (f *fixture) openMatchup(t *testing.T, limits *domain.BetLimits) domain.Market {
	t.Helper()
	ctx := context.Background()
	m, err := f.engine.CreateMarket(ctx, CreateMarketParams{
		Type:     domain.MarketTypeMatchup,
		Label:    "Home vs Away",
		Outcomes: []string{"Home", "Away"},
		Limits:   limits,
	})
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	m, err = f.engine.OpenMarket(ctx, m.ID)
	if err != nil {
		t.Fatalf("open market: %v", err)
	}
	return m
}

// stubBalance delegates to an in-memory funds ledger and can be made to fail
// on demand.
type stubBalance struct {
	mem        *balance.MemoryService
	failDebit  bool
	failCredit bool
	debits     int
	credits    int
}

var errBalanceDown = errors.New("balance service unavailable")

func (s *stubBalance) Debit(ctx context.Context, userID string, amount float64, ref string) error {
	if s.failDebit {
		return errBalanceDown
	}
	s.debits++
	return s.mem.Debit(ctx, userID, amount, ref)
}

func (s *stubBalance) Credit(ctx context.Context, userID string, amount float64, ref string) error {
	if s.failCredit {
		return errBalanceDown
	}
	s.credits++
	return s.mem.Credit(ctx, userID, amount, ref)
}

func (s *stubBalance) Balance(userID string) float64 { return s.mem.Balance(userID) }

// flakyBetStore fails Create a configured number of times before recovering.
type flakyBetStore struct {
	*memory.BetStore
	failCreates int
}

var errStoreDown = errors.New("bet store unavailable")

func (s *flakyBetStore) Create(ctx context.Context, b domain.Bet) error {
	if s.failCreates > 0 {
		s.failCreates--
		return errStoreDown
	}
	return s.BetStore.Create(ctx, b)
}
