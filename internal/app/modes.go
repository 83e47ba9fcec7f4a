package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/poolhouse/internal/balance"
	"github.com/alanyoungcy/poolhouse/internal/domain"
	"github.com/alanyoungcy/poolhouse/internal/engine"
	"github.com/alanyoungcy/poolhouse/internal/ledger"
	"github.com/alanyoungcy/poolhouse/internal/server"
	"github.com/alanyoungcy/poolhouse/internal/server/handler"
	"github.com/alanyoungcy/poolhouse/internal/server/ws"
	"github.com/alanyoungcy/poolhouse/internal/store/memory"
)

// buildEngine assembles the ledger and trading engine over the given stores.
func (a *App) buildEngine(markets domain.MarketStore, bets domain.BetStore, funds domain.BalanceService) *engine.Engine {
	led := ledger.New(markets, a.logger)
	return engine.New(led, bets, funds, a.logger, engine.Config{
		CostTolerance:  a.cfg.Engine.CostTolerance,
		MaxAttempts:    a.cfg.Engine.MaxAttempts,
		SettleFromOpen: a.cfg.Engine.SettleFromOpen,
		SettleLockTTL:  a.cfg.Engine.SettleLockTTL.Duration,
	})
}

// buildServer registers the HTTP handlers around the engine.
func (a *App) buildServer(eng *engine.Engine, wsHub *ws.Hub, limiter domain.RateLimiter) *server.Server {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.logger),
		Markets: handler.NewMarketHandler(eng, a.logger),
		Bets:    handler.NewBetHandler(eng, a.logger),
	}
	return server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, wsHub, limiter, a.logger)
}

// ServerMode runs the full production stack: PostgreSQL stores, Redis
// collaborators, the external balance service, and the HTTP + WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	eng := a.buildEngine(deps.MarketStore, deps.BetStore, deps.Balance)
	eng.SetPriceCache(deps.PriceCache)
	eng.SetSignalBus(deps.SignalBus)
	eng.SetLockManager(deps.LockManager)
	eng.SetNotifier(deps.Notifier)
	if deps.Archiver != nil {
		eng.SetArchiver(deps.Archiver)
	}

	wsHub := ws.NewHub(deps.SignalBus, a.logger)
	srv := a.buildServer(eng, wsHub, deps.RateLimiter)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return wsHub.Run(ctx)
	})
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// demoOpeningBalance funds every demo account on first touch.
const demoOpeningBalance = 1000.0

// DemoMode runs the engine on in-memory stores and an in-process balance
// ledger, with no external services. A sample market is created and opened
// so the API is immediately usable.
func (a *App) DemoMode(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting demo mode",
		slog.Float64("opening_balance", demoOpeningBalance),
	)

	eng := a.buildEngine(memory.NewMarketStore(), memory.NewBetStore(), balance.NewMemoryService(demoOpeningBalance))

	m, err := eng.CreateMarket(ctx, engine.CreateMarketParams{
		Type:     domain.MarketTypeMatchup,
		Label:    "Demo: Home vs Away",
		Outcomes: []string{"Home", "Away"},
	})
	if err != nil {
		return err
	}
	if _, err := eng.OpenMarket(ctx, m.ID); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "demo market open", slog.String("market_id", m.ID))

	srv := a.buildServer(eng, nil, nil)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
