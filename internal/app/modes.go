package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DevKavathiya11/marketd/internal/server"
	"github.com/DevKavathiya11/marketd/internal/server/handler"
	"github.com/DevKavathiya11/marketd/internal/server/ws"
	"github.com/DevKavathiya11/marketd/internal/service"
)

// Serve restores marketplace state, then runs the HTTP API, WebSocket hub,
// and (when enabled) the trade archival loop until the context is cancelled.
func (a *App) Serve(ctx context.Context, deps *Dependencies) error {
	svc := service.NewMarketService(
		deps.Core,
		deps.ListingStore,
		deps.AuctionStore,
		deps.TradeStore,
		deps.AuditStore,
		deps.SignalBus,
		a.logger,
	)

	if err := svc.LoadState(ctx); err != nil {
		return fmt.Errorf("serve: restore state: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub.
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// HTTP server.
	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Listings: handler.NewListingHandler(svc, a.logger),
		Auctions: handler.NewAuctionHandler(svc, a.logger),
		Trades:   handler.NewTradeHandler(svc, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIToken:     a.cfg.Server.APIToken,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Trade archival loop.
	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiver(ctx, deps)
		})
	}

	return g.Wait()
}

// runArchiver periodically archives trades older than the retention window.
// Archival failures are logged and retried on the next tick; they never take
// the process down.
func (a *App) runArchiver(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	a.logger.InfoContext(ctx, "archiver started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			count, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "trade archival failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.InfoContext(ctx, "trades archived",
					slog.Int64("count", count),
					slog.Time("cutoff", cutoff),
				)
			}
		}
	}
}
