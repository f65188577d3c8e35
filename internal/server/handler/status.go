package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// FeedStatus reports the live market-data session. Implemented by the feed
// session; nil when the process runs without a feed (rebalance/archive modes).
type FeedStatus interface {
	State() domain.ConnectionState
	Markets() []string
}

// StatusHandler serves a runtime snapshot of the process: mode, feed
// connection state and the markets currently subscribed.
type StatusHandler struct {
	mode      string
	feed      FeedStatus
	startedAt time.Time
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. feed may be nil.
func NewStatusHandler(mode string, feed FeedStatus, startedAt time.Time, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		feed:      feed,
		startedAt: startedAt,
		logger:    logHandler(logger, "status"),
	}
}

// Status returns the current runtime snapshot.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	feedState := "disabled"
	markets := []string{}
	if h.feed != nil {
		feedState = string(h.feed.State())
		if m := h.feed.Markets(); m != nil {
			markets = m
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"feed_state":     feedState,
		"markets":        markets,
		"uptime_seconds": uptime,
	})
}
