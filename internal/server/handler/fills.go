package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// FillsHandler lists recorded fills.
type FillsHandler struct {
	store  domain.FillStore
	logger *slog.Logger
}

// NewFillsHandler creates a FillsHandler.
func NewFillsHandler(store domain.FillStore, logger *slog.Logger) *FillsHandler {
	return &FillsHandler{store: store, logger: logger.With(slog.String("handler", "fills"))}
}

// ListFills returns the most recent fills, newest first.
// GET /api/fills?limit=N
func (h *FillsHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	fills, err := h.store.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list fills failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}
	if fills == nil {
		fills = []domain.Fill{}
	}
	writeJSON(w, http.StatusOK, fills)
}
