package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paritybot/paritybot/internal/arb"
	"github.com/paritybot/paritybot/internal/book"
	"github.com/paritybot/paritybot/internal/feed"
	"github.com/paritybot/paritybot/internal/rebalance"
	"github.com/paritybot/paritybot/internal/server"
	"github.com/paritybot/paritybot/internal/server/handler"
	"github.com/paritybot/paritybot/internal/server/ws"
	"github.com/paritybot/paritybot/internal/service"
)

// DetectMode runs the real-time feed, the orderbook store, and the arbitrage
// detector.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode",
		slog.Int("markets", len(a.cfg.Feed.Markets)),
		slog.Float64("threshold", a.cfg.Arbitrage.Threshold),
	)

	g, ctx := errgroup.WithContext(ctx)

	_, session, err := a.startDetection(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("detect mode: %w", err)
	}
	a.startStatusServer(ctx, g, deps, session)

	return g.Wait()
}

// RebalanceMode runs only the inventory rebalancer against the configured
// account source. Without a feed connection, tokens are valued at 0.50.
func (a *App) RebalanceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting rebalance mode",
		slog.Duration("interval", a.cfg.Rebalance.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	a.startRebalancer(ctx, g, deps, nil)
	a.startStatusServer(ctx, g, deps, nil)
	return g.Wait()
}

// ArchiveMode runs a single archival pass and exits. It is meant to be
// scheduled externally (cron, CI job).
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: archiver not wired (postgres and s3 must be enabled)")
	}

	cutoff := retentionCutoff(a.cfg.Archive.RetentionDays, time.Now().UTC())
	moved, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("moved", moved),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// FullMode runs every configured subsystem: detection, the rebalancer, and
// the periodic archive job.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	books, session, err := a.startDetection(ctx, g, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	a.startStatusServer(ctx, g, deps, session)

	if a.cfg.Rebalance.Enabled {
		a.startRebalancer(ctx, g, deps, books)
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// startDetection wires the orderbook store, detector, session and mirror and
// adds their goroutines to the group. It returns the store so other
// subsystems can value inventory from live books, and the session for the
// status API.
func (a *App) startDetection(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*book.Store, *feed.Session, error) {
	books := book.NewStore(a.cfg.Feed.StaleAfter.Duration, a.logger)

	arbSvc := service.NewArbService(deps.OpportunityStore, deps.SignalBus, deps.Notifier, a.logger)
	detector := arb.NewDetector(a.cfg.Arbitrage.Threshold, a.cfg.Arbitrage.DebounceEpsilon, arbSvc, a.logger)

	session := feed.NewSession(feed.SessionConfig{
		URL: a.cfg.Feed.WsURL,
		Backoff: feed.Backoff{
			Base:       a.cfg.Feed.ReconnectBase.Duration,
			Max:        a.cfg.Feed.ReconnectMax.Duration,
			JitterFrac: a.cfg.Feed.ReconnectJitter,
		},
		QueueSize: a.cfg.Feed.QueueSize,
	}, books, detector, a.logger)

	mirror := service.NewMirrorListener(deps.BookMirror, deps.Notifier, a.logger)
	session.AddListener(mirror)

	for _, m := range a.cfg.Feed.Markets {
		if err := session.SubscribeMarket(m.ID, m.YesTokenID, m.NoTokenID); err != nil {
			return nil, nil, fmt.Errorf("subscribe %s: %w", m.ID, err)
		}
	}

	g.Go(func() error {
		return session.Run(ctx)
	})
	g.Go(func() error {
		return mirror.Run(ctx)
	})

	return books, session, nil
}

// startStatusServer adds the HTTP status API to the group when enabled.
// feedStatus may be nil in modes that run without a feed.
func (a *App) startStatusServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, feedStatus handler.FeedStatus) {
	if !a.cfg.Server.Enabled {
		return
	}

	startedAt := time.Now().UTC()

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimit:       a.cfg.Server.RateLimit,
			RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
			Limiter:         deps.RateLimiter,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(startedAt, a.logger),
			Status:        handler.NewStatusHandler(a.cfg.Mode, feedStatus, startedAt, a.logger),
			Opportunities: handler.NewOpportunityHandler(deps.OpportunityStore, a.logger),
			Rebalance:     handler.NewRebalanceHandler(deps.RebalanceStore, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startRebalancer adds the rebalance loop to the group. books may be nil.
func (a *App) startRebalancer(ctx context.Context, g *errgroup.Group, deps *Dependencies, books *book.Store) {
	policy, err := rebalance.NewPolicy(rebalance.Bounds{
		Min:    a.cfg.Rebalance.MinRatio,
		Target: a.cfg.Rebalance.TargetRatio,
		Max:    a.cfg.Rebalance.MaxRatio,
	}, a.cfg.Rebalance.MinTradeSize)
	if err != nil {
		// Validate() catches bad bounds before we get here.
		g.Go(func() error { return fmt.Errorf("rebalancer: %w", err) })
		return
	}

	svc := service.NewRebalanceService(
		service.RebalanceConfig{
			MarketID:           a.cfg.Rebalance.MarketID,
			Interval:           a.cfg.Rebalance.Interval.Duration,
			Cooldown:           a.cfg.Rebalance.Cooldown.Duration,
			ImbalanceThreshold: a.cfg.Rebalance.ImbalanceThreshold,
			MinTradeSize:       a.cfg.Rebalance.MinTradeSize,
		},
		policy,
		deps.AccountSource,
		books,
		deps.RebalanceStore,
		deps.SignalBus,
		deps.Notifier,
		deps.LockManager,
		a.logger,
	)

	g.Go(func() error {
		return svc.Run(ctx)
	})
}

// runArchiveLoop periodically moves aged opportunities to cold storage.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := retentionCutoff(a.cfg.Archive.RetentionDays, time.Now().UTC())
			moved, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()))
				continue
			}
			if moved > 0 {
				a.logger.InfoContext(ctx, "archive pass complete",
					slog.Int64("moved", moved))
			}
		}
	}
}
