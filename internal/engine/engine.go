// Package engine is the trading core of poolhouse: it validates and commits
// bets against the ledger, unwinds positions, and resolves markets. All
// pricing goes through the pure LMSR functions in internal/pricing; all
// state mutation goes through the per-market serialization in
// internal/ledger.
package engine

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/ledger"
	"github.com/alanyoungcy/poolhouse/internal/notify"
)

// Config holds the engine's trading parameters.
type Config struct {
	// CostTolerance is the maximum allowed deviation between a quoted
	// amount and the cost recomputed at commit time.
	CostTolerance float64

	// MaxAttempts bounds retries of a trade that lost a version race.
	MaxAttempts int

	// SettleFromOpen permits settling a market that was never explicitly
	// locked; the engine locks it as part of settlement.
	SettleFromOpen bool

	// SettleLockTTL is the distributed-lock TTL fencing a settlement run.
	SettleLockTTL time.Duration
}

// withDefaults fills zero values with production defaults.
func (c Config) withDefaults() Config {
	if c.CostTolerance <= 0 {
		c.CostTolerance = 0.01
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SettleLockTTL <= 0 {
		c.SettleLockTTL = 30 * time.Second
	}
	return c
}

// Engine exposes the caller-facing trading contract: market creation and
// lifecycle, quotes, bets, cash-out, settlement, and cancellation.
type Engine struct {
	ledger  *ledger.Ledger
	bets    domain.BetStore
	balance domain.BalanceService
	logger  *slog.Logger
	cfg     Config

	// Optional collaborators; nil disables the corresponding side effect.
	prices   domain.PriceCache
	bus      domain.SignalBus
	locks    domain.LockManager
	archiver domain.Archiver
	notifier *notify.Notifier
}

// New creates an Engine over the given ledger, bet store, and balance
// service. Optional collaborators are attached with the Set* methods before
// the engine starts serving requests.
func New(led *ledger.Ledger, bets domain.BetStore, balance domain.BalanceService, logger *slog.Logger, cfg Config) *Engine {
	return &Engine{
		ledger:  led,
		bets:    bets,
		balance: balance,
		logger:  logger.With(slog.String("component", "engine")),
		cfg:     cfg.withDefaults(),
	}
}

// SetPriceCache attaches a price cache refreshed after every trade.
func (e *Engine) SetPriceCache(pc domain.PriceCache) { e.prices = pc }

// SetSignalBus attaches a bus for price and lifecycle events.
func (e *Engine) SetSignalBus(bus domain.SignalBus) { e.bus = bus }

// SetLockManager attaches a distributed lock fencing settlement.
func (e *Engine) SetLockManager(lm domain.LockManager) { e.locks = lm }

// SetArchiver attaches an archiver invoked after a market resolves.
func (e *Engine) SetArchiver(a domain.Archiver) { e.archiver = a }

// SetNotifier attaches operator notifications.
func (e *Engine) SetNotifier(n *notify.Notifier) { e.notifier = n }
