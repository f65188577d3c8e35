package handler

import (
	"log/slog"
	"net/http"

	"github.com/paritybot/paritybot/internal/domain"
)

// RebalanceHandler serves recorded rebalance actions.
type RebalanceHandler struct {
	store  domain.RebalanceStore
	logger *slog.Logger
}

// NewRebalanceHandler creates a RebalanceHandler backed by the given store.
func NewRebalanceHandler(store domain.RebalanceStore, logger *slog.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		store:  store,
		logger: logHandler(logger, "rebalance"),
	}
}

// ListRecent returns the most recently emitted rebalance actions, newest first.
// GET /api/rebalance/recent?limit=50
func (h *RebalanceHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "rebalance store not configured")
		return
	}

	actions, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("list recent failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list rebalance actions")
		return
	}
	if actions == nil {
		actions = []domain.RebalanceAction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"count":   len(actions),
	})
}
