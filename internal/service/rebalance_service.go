package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/paritybot/paritybot/internal/book"
	"github.com/paritybot/paritybot/internal/domain"
	"github.com/paritybot/paritybot/internal/notify"
	"github.com/paritybot/paritybot/internal/rebalance"
)

const (
	rebalanceChannel = "rebalance"
	rebalanceLockKey = "rebalance"
)

// RebalanceConfig holds the tunables for the rebalance loop.
type RebalanceConfig struct {
	// MarketID selects the book pair used to value inventory via the YES
	// mid price. Empty means no live book; tokens are valued at 0.50.
	MarketID string

	// Interval between rebalance passes.
	Interval time.Duration

	// Cooldown suppresses further actions for this long after one is
	// emitted, letting fills settle before re-measuring.
	Cooldown time.Duration

	// ImbalanceThreshold triggers the YES/NO imbalance pre-check; 0
	// disables it.
	ImbalanceThreshold float64

	MinTradeSize float64
}

// RebalanceService periodically measures account inventory against the
// policy's cash-ratio band and emits corrective actions. A distributed lock
// keeps concurrent replicas from emitting duplicate actions.
type RebalanceService struct {
	cfg      RebalanceConfig
	policy   *rebalance.Policy
	account  domain.AccountSource
	books    *book.Store
	store    domain.RebalanceStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	locks    domain.LockManager
	logger   *slog.Logger

	now        func() time.Time
	lastAction time.Time
}

// NewRebalanceService creates a RebalanceService. books, store, bus,
// notifier and locks may each be nil when that collaborator is not
// configured.
func NewRebalanceService(
	cfg RebalanceConfig,
	policy *rebalance.Policy,
	account domain.AccountSource,
	books *book.Store,
	store domain.RebalanceStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	locks domain.LockManager,
	logger *slog.Logger,
) *RebalanceService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &RebalanceService{
		cfg:      cfg,
		policy:   policy,
		account:  account,
		books:    books,
		store:    store,
		bus:      bus,
		notifier: notifier,
		locks:    locks,
		logger:   logger.With(slog.String("component", "rebalance_service")),
		now:      time.Now,
	}
}

// Run executes rebalance passes at the configured interval until ctx is
// cancelled. Individual pass failures are logged and the loop continues.
func (s *RebalanceService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "rebalance pass failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce executes a single rebalance pass: refresh the position, value
// inventory at the current mid, and emit at most one corrective action.
func (s *RebalanceService) RunOnce(ctx context.Context) error {
	if s.cfg.Cooldown > 0 && !s.lastAction.IsZero() && s.now().Sub(s.lastAction) < s.cfg.Cooldown {
		s.logger.DebugContext(ctx, "rebalance pass skipped, cooling down")
		return nil
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, rebalanceLockKey, s.cfg.Interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				s.logger.DebugContext(ctx, "rebalance pass skipped, lock held elsewhere")
				return nil
			}
			return err
		}
		defer unlock()
	}

	pos, err := s.account.Position(ctx)
	if err != nil {
		return err
	}

	valuation := s.valuation()

	action := domain.RebalanceAction{Type: domain.RebalanceNone}
	if s.cfg.ImbalanceThreshold > 0 {
		action = rebalance.ImbalanceAction(pos, valuation, s.cfg.ImbalanceThreshold, s.cfg.MinTradeSize)
	}
	if !action.IsNeeded() {
		action = s.policy.CalculateAction(pos, valuation)
	}

	if !action.IsNeeded() {
		s.logger.DebugContext(ctx, "inventory within bounds",
			slog.Float64("ratio", rebalance.Ratio(pos, valuation)),
			slog.Float64("valuation", valuation))
		return nil
	}

	action.ID = uuid.New().String()
	action.CreatedAt = s.now().UTC()
	s.emit(ctx, pos, valuation, action)
	s.lastAction = s.now()
	return nil
}

// valuation returns the per-token value used to price inventory: the YES mid
// of the configured market, or 0.50 when no usable book exists.
func (s *RebalanceService) valuation() float64 {
	if s.books == nil || s.cfg.MarketID == "" {
		return 0.5
	}
	pair, err := s.books.Snapshot(s.cfg.MarketID)
	if err != nil {
		return 0.5
	}
	if mid := domain.Mid(pair.Yes); mid > 0 {
		return mid
	}
	return 0.5
}

func (s *RebalanceService) emit(ctx context.Context, pos domain.Position, valuation float64, action domain.RebalanceAction) {
	s.logger.InfoContext(ctx, "rebalance action",
		slog.String("action_id", action.ID),
		slog.String("type", string(action.Type)),
		slog.Float64("amount", action.Amount),
		slog.Float64("ratio", rebalance.Ratio(pos, valuation)),
		slog.String("reason", action.Reason),
	)

	if s.store != nil {
		if err := s.store.Create(ctx, action); err != nil {
			s.logger.ErrorContext(ctx, "rebalance_service: record action failed",
				slog.String("action_id", action.ID),
				slog.String("error", err.Error()))
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":      notify.EventRebalanceAction,
			"action_id":  action.ID,
			"type":       action.Type,
			"amount":     action.Amount,
			"reason":     action.Reason,
			"created_at": action.CreatedAt.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, rebalanceChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "rebalance_service: publish event failed",
				slog.String("action_id", action.ID),
				slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil {
		title, message := notify.FormatRebalance(action)
		if err := s.notifier.Notify(ctx, notify.EventRebalanceAction, title, message); err != nil {
			s.logger.WarnContext(ctx, "rebalance_service: notify failed",
				slog.String("action_id", action.ID),
				slog.String("error", err.Error()))
		}
	}
}
