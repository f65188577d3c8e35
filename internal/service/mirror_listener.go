package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
	"github.com/paritybot/paritybot/internal/notify"
)

// mirrorQueueSize bounds the backlog of book updates waiting to be mirrored.
const mirrorQueueSize = 256

// MirrorListener implements domain.SessionListener. It mirrors best bid/ask
// updates into the shared cache on its own goroutine so cache latency never
// touches the feed, and forwards connection-state transitions to the
// notifier.
type MirrorListener struct {
	mirror   domain.BookMirror
	notifier *notify.Notifier
	logger   *slog.Logger

	updates chan domain.OrderbookUpdated
}

// NewMirrorListener creates a MirrorListener. mirror and notifier may each
// be nil when that output is not configured.
func NewMirrorListener(mirror domain.BookMirror, notifier *notify.Notifier, logger *slog.Logger) *MirrorListener {
	return &MirrorListener{
		mirror:   mirror,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "mirror")),
		updates:  make(chan domain.OrderbookUpdated, mirrorQueueSize),
	}
}

// OnOrderbookUpdated queues the update for mirroring. When the queue is full
// the update is dropped; the next update for the market supersedes it anyway.
func (m *MirrorListener) OnOrderbookUpdated(ev domain.OrderbookUpdated) {
	if m.mirror == nil {
		return
	}
	select {
	case m.updates <- ev:
	default:
		m.logger.Warn("mirror queue full, dropping update",
			slog.String("market_id", ev.Pair.MarketID))
	}
}

// OnConnectionStateChanged logs the transition and notifies operators.
func (m *MirrorListener) OnConnectionStateChanged(ev domain.ConnectionStateChanged) {
	if m.notifier == nil {
		return
	}
	title, message := notify.FormatConnectionState(ev)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.notifier.Notify(ctx, notify.EventConnectionState, title, message); err != nil {
		m.logger.Warn("connection-state notify failed", slog.String("error", err.Error()))
	}
}

// Run consumes queued updates and writes them to the cache until ctx is
// cancelled.
func (m *MirrorListener) Run(ctx context.Context) error {
	if m.mirror == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.updates:
			m.push(ctx, ev.Pair)
		}
	}
}

func (m *MirrorListener) push(ctx context.Context, pair domain.MarketBookPair) {
	for _, b := range []domain.OutcomeBook{pair.Yes, pair.No} {
		if b.Token.ID == "" {
			continue
		}
		if err := m.mirror.SetBBO(ctx, b.Token.ID, b.Bid, b.Ask, pair.UpdatedAt); err != nil {
			m.logger.Warn("mirror write failed",
				slog.String("token_id", b.Token.ID),
				slog.String("error", err.Error()))
		}
	}
}
