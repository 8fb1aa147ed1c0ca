package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// PricesHandler serves the logger's cached USDT prices.
type PricesHandler struct {
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewPricesHandler creates a PricesHandler.
func NewPricesHandler(cache domain.PriceCache, logger *slog.Logger) *PricesHandler {
	return &PricesHandler{cache: cache, logger: logger.With(slog.String("handler", "prices"))}
}

// GetPrices returns the cached price of each requested asset. Assets
// without a cached price are left out.
// GET /api/prices?assets=BTC,ETH
func (h *PricesHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	var assets []string
	for _, a := range strings.Split(r.URL.Query().Get("assets"), ",") {
		if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
			assets = append(assets, a)
		}
	}
	if len(assets) == 0 {
		writeError(w, http.StatusBadRequest, "assets is required")
		return
	}

	prices, err := h.cache.GetPrices(r.Context(), assets)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get prices failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get prices")
		return
	}
	writeJSON(w, http.StatusOK, prices)
}
