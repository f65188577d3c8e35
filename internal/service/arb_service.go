// Package service wires the detection and rebalancing pipelines to their
// persistence, messaging and notification dependencies.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paritybot/paritybot/internal/domain"
	"github.com/paritybot/paritybot/internal/notify"
)

// arbChannel is the pub/sub channel for live opportunity events; arbStream is
// the durable stream external executors replay from.
const (
	arbChannel = "arbs"
	arbStream  = "arb_events"
)

// ArbService records detected opportunities and fans them out to the signal
// bus and notifier. It implements arb.Sink, so it can be handed directly to
// the detector.
//
// Persistence and messaging failures are logged, never propagated: a broken
// database must not stall detection.
type ArbService struct {
	store    domain.OpportunityStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewArbService creates an ArbService. store, bus and notifier may each be
// nil when that output is not configured.
func NewArbService(store domain.OpportunityStore, bus domain.SignalBus, notifier *notify.Notifier, logger *slog.Logger) *ArbService {
	return &ArbService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "arb_service")),
	}
}

// HandleOpportunity assigns the opportunity an identity, persists it, and
// publishes it for downstream consumers.
func (s *ArbService) HandleOpportunity(ctx context.Context, opp domain.ArbOpportunity) {
	opp.ID = uuid.New().String()

	if s.store != nil {
		if err := s.store.Create(ctx, opp); err != nil {
			s.logger.ErrorContext(ctx, "arb_service: record opportunity failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":          notify.EventArbDetected,
			"opp_id":         opp.ID,
			"market_id":      opp.MarketID,
			"direction":      opp.Direction,
			"profit_percent": opp.ProfitPercent,
			"cost":           opp.Cost,
			"yes_price":      opp.YesPrice,
			"no_price":       opp.NoPrice,
			"detected_at":    opp.DetectedAt.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, arbChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "arb_service: publish event failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, arbStream, evt); err != nil {
			s.logger.WarnContext(ctx, "arb_service: stream append failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		title, message := notify.FormatOpportunity(opp)
		if err := s.notifier.Notify(ctx, notify.EventArbDetected, title, message); err != nil {
			s.logger.WarnContext(ctx, "arb_service: notify failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// ListRecent returns the most recently recorded opportunities.
func (s *ArbService) ListRecent(ctx context.Context, limit int) ([]domain.ArbOpportunity, error) {
	if s.store == nil {
		return nil, fmt.Errorf("arb_service: no opportunity store configured")
	}
	opps, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("arb_service: list recent: %w", err)
	}
	return opps, nil
}
