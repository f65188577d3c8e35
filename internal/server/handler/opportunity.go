package handler

import (
	"log/slog"
	"net/http"

	"github.com/paritybot/paritybot/internal/domain"
)

// OpportunityHandler serves recorded arbitrage opportunities.
type OpportunityHandler struct {
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler backed by the given store.
func NewOpportunityHandler(store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{
		store:  store,
		logger: logHandler(logger, "opportunity"),
	}
}

// ListRecent returns the most recently detected opportunities, newest first.
// GET /api/opportunities/recent?limit=50
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "opportunity store not configured")
		return
	}

	opps, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("list recent failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.ArbOpportunity{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": opps,
		"count":         len(opps),
	})
}
