package handler

import (
	"net/http"

	"github.com/alanyoungcy/cryptobot/internal/trader"
)

// StateSource reports the trader's current state.
type StateSource interface {
	Snapshot() trader.State
}

// StatusHandler serves the trader's holding and cooldown list.
type StatusHandler struct {
	source StateSource
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StateSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// GetStatus responds with the asset held and the blacklist.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.source.Snapshot()
	if st.Holding == "" {
		writeError(w, http.StatusServiceUnavailable, "trader not started")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
