package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nationforge/economy/internal/archive"
	"github.com/nationforge/economy/internal/domain"
	"github.com/nationforge/economy/internal/server"
	"github.com/nationforge/economy/internal/server/handler"
	"github.com/nationforge/economy/internal/server/ws"
	"github.com/nationforge/economy/internal/service"
	"github.com/nationforge/economy/internal/settlement"
)

// services bundles the two domain services every mode builds.
type services struct {
	ledger   *service.LedgerService
	auctions *service.AuctionService
}

func (a *App) buildServices(deps *Dependencies) services {
	caps := make(map[domain.TransactionType]decimal.Decimal, len(a.cfg.Ledger.DailyCaps))
	for typ, limit := range a.cfg.Ledger.DailyCaps {
		caps[domain.TransactionType(typ)] = decimal.NewFromFloat(limit)
	}

	ledgerSvc := service.NewLedgerService(deps.LedgerStore, caps, a.logger)
	auctionSvc := service.NewAuctionService(
		deps.AuctionStore,
		deps.AuctionCache,
		deps.SignalBus,
		deps.RateLimiter,
		service.AuctionConfig{
			BidRateLimit:  a.cfg.Auction.BidRateLimit,
			BidRateWindow: a.cfg.Auction.BidRateWindow.Duration,
		},
		a.logger,
	)
	return services{ledger: ledgerSvc, auctions: auctionSvc}
}

func (a *App) newSettlementWorker(deps *Dependencies, svcs services) *settlement.Worker {
	return settlement.NewWorker(svcs.auctions, deps.Notifier, settlement.Config{
		Interval:  a.cfg.Settlement.Interval.Duration,
		BatchSize: a.cfg.Settlement.BatchSize,
	}, a.logger)
}

// ServeMode runs the HTTP API and the WebSocket broadcaster. Settlement only
// happens when an external scheduler calls POST /api/settlement/sweep.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	sweeper := a.newSettlementWorker(deps, svcs)

	a.startHTTPServer(ctx, g, deps, svcs, sweeper)

	return g.Wait()
}

// SettleMode runs only the background settlement worker. Useful for a
// dedicated settler instance next to a fleet of serve instances.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	worker := a.newSettlementWorker(deps, svcs)

	g.Go(func() error {
		return worker.Run(ctx)
	})

	return g.Wait()
}

// FullMode runs every subsystem: the HTTP API, the WebSocket broadcaster,
// the settlement worker, and the archive exporter when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	worker := a.newSettlementWorker(deps, svcs)

	g.Go(func() error {
		return worker.Run(ctx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		runner := archive.NewRunner(deps.Archiver, deps.Notifier, archive.Config{
			Interval:      a.cfg.Archive.Interval.Duration,
			RetentionDays: a.cfg.Archive.RetentionDays,
		}, a.logger)
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps, svcs, worker)

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs services,
	sweeper handler.Sweeper,
) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Accounts:   handler.NewAccountHandler(svcs.ledger, a.logger),
		Auctions:   handler.NewAuctionHandler(svcs.auctions, a.logger),
		Assets:     handler.NewAssetHandler(deps.AssetStore, a.logger),
		Settlement: handler.NewSettlementHandler(sweeper, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Info("HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
