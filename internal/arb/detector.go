package arb

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/paritybot/paritybot/internal/domain"
)

// Sink consumes detected opportunities. Implementations must not block the
// caller for long; the detector runs on the feed's dispatch workers.
type Sink interface {
	HandleOpportunity(ctx context.Context, opp domain.ArbOpportunity)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, opp domain.ArbOpportunity)

// HandleOpportunity calls f.
func (f SinkFunc) HandleOpportunity(ctx context.Context, opp domain.ArbOpportunity) {
	f(ctx, opp)
}

// Detector evaluates market book pairs and forwards opportunities to a sink.
// It keeps per-market debounce state so an unchanged opportunity is not
// re-emitted on every tick.
type Detector struct {
	threshold float64
	epsilon   float64 // 0 disables debouncing
	sink      Sink
	logger    *slog.Logger

	mu   sync.Mutex
	last map[string]lastEmit // marketID -> most recent emission
}

type lastEmit struct {
	direction domain.ArbDirection
	profit    float64
}

// NewDetector creates a Detector. threshold <= 0 falls back to
// DefaultThreshold; epsilon is the debounce band on profit_percent.
func NewDetector(threshold, epsilon float64, sink Sink, logger *slog.Logger) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{
		threshold: threshold,
		epsilon:   epsilon,
		sink:      sink,
		logger:    logger.With(slog.String("component", "arb_detector")),
		last:      make(map[string]lastEmit),
	}
}

// Evaluate checks one pair and emits at most one opportunity. It returns the
// opportunity when one was emitted, nil when none existed or it was debounced.
func (d *Detector) Evaluate(ctx context.Context, pair domain.MarketBookPair) *domain.ArbOpportunity {
	opp := CheckArbitrage(pair, d.threshold)

	d.mu.Lock()
	if opp == nil {
		// Parity restored: clear debounce state so the next deviation fires.
		delete(d.last, pair.MarketID)
		d.mu.Unlock()
		return nil
	}
	prev, seen := d.last[pair.MarketID]
	if seen && d.epsilon > 0 && prev.direction == opp.Direction &&
		math.Abs(prev.profit-opp.ProfitPercent) < d.epsilon {
		d.mu.Unlock()
		return nil
	}
	d.last[pair.MarketID] = lastEmit{direction: opp.Direction, profit: opp.ProfitPercent}
	d.mu.Unlock()

	d.logger.Info("arbitrage detected",
		slog.String("market_id", opp.MarketID),
		slog.String("direction", string(opp.Direction)),
		slog.Float64("profit_percent", opp.ProfitPercent),
		slog.Float64("cost", opp.Cost),
	)
	if d.sink != nil {
		d.sink.HandleOpportunity(ctx, *opp)
	}
	return opp
}

// Forget drops debounce state for a market, e.g. after unsubscribing.
func (d *Detector) Forget(marketID string) {
	d.mu.Lock()
	delete(d.last, marketID)
	d.mu.Unlock()
}
