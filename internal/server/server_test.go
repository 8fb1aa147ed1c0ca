package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/metrics"
	"github.com/alanyoungcy/cryptobot/internal/server/handler"
	"github.com/alanyoungcy/cryptobot/internal/trader"
)

type stateSource struct{ st trader.State }

func (s stateSource) Snapshot() trader.State { return s.st }

type fillStore struct{ fills []domain.Fill }

func (f *fillStore) InsertBatch(context.Context, []domain.Fill) error { return nil }

func (f *fillStore) ListRecent(_ context.Context, limit int) ([]domain.Fill, error) {
	return f.fills[:min(limit, len(f.fills))], nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int) (bool, error) { return false, nil }
func (denyLimiter) Wait(context.Context, string, int) error          { return nil }

func newTestServer(cfg Config, st trader.State, fills []domain.Fill) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := metrics.New()
	rec.RecordTrade("filled")
	return NewServer(cfg, Handlers{
		Health:  handler.NewHealthHandler("trader"),
		Status:  handler.NewStatusHandler(stateSource{st: st}),
		Fills:   handler.NewFillsHandler(&fillStore{fills: fills}, logger),
		Metrics: rec.Handler(),
	}, logger)
}

func do(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	srv := newTestServer(Config{APIKey: "secret"}, trader.State{}, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "trader", body["mode"])

	rr = do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cryptobot_")
}

func TestStatusRequiresKey(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := trader.State{
		Holding:   "ETH",
		Blacklist: []domain.BlacklistEntry{{Symbol: "ETHBTC", BaseAsset: "ETH", Close: 0.07, EnteredAt: t0}},
		UpdatedAt: t0,
	}
	srv := newTestServer(Config{APIKey: "secret"}, st, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, srv.Handler(), http.MethodGet, "/api/status", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rr.Code)
	var got trader.State
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "ETH", got.Holding)
	require.Len(t, got.Blacklist, 1)
	assert.Equal(t, "ETHBTC", got.Blacklist[0].Symbol)
}

func TestStatusBeforeStart(t *testing.T) {
	srv := newTestServer(Config{}, trader.State{}, nil)
	rr := do(t, srv.Handler(), http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestFillsLimit(t *testing.T) {
	fills := []domain.Fill{{OrderID: "3"}, {OrderID: "2"}, {OrderID: "1"}}
	srv := newTestServer(Config{}, trader.State{}, fills)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/fills?limit=2", map[string]string{"Authorization": "Bearer ignored"})
	require.Equal(t, http.StatusOK, rr.Code)
	var got []domain.Fill
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].OrderID)
}

func TestRateLimitedAPI(t *testing.T) {
	srv := newTestServer(Config{Limiter: denyLimiter{}}, trader.State{Holding: "USDT"}, nil)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = do(t, srv.Handler(), http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

type priceCache struct{ prices map[string]float64 }

func (c priceCache) SetPrice(context.Context, string, float64, time.Time) error     { return nil }
func (c priceCache) SetPrices(context.Context, map[string]float64, time.Time) error { return nil }

func (c priceCache) GetPrice(_ context.Context, asset string) (float64, time.Time, error) {
	p, ok := c.prices[asset]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

func (c priceCache) GetPrices(_ context.Context, assets []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range assets {
		if p, ok := c.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

func TestPrices(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Config{}, Handlers{
		Prices: handler.NewPricesHandler(priceCache{prices: map[string]float64{"BTC": 50000, "ETH": 3500}}, logger),
	}, logger)

	rr := do(t, srv.Handler(), http.MethodGet, "/api/prices?assets=btc,%20ETH,DOGE", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]float64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, map[string]float64{"BTC": 50000, "ETH": 3500}, got)

	rr = do(t, srv.Handler(), http.MethodGet, "/api/prices", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(Config{CORSOrigins: []string{"https://ops.example.com"}}, trader.State{}, nil)

	rr := do(t, srv.Handler(), http.MethodOptions, "/api/status", map[string]string{"Origin": "https://OPS.example.com"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://OPS.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))

	rr = do(t, srv.Handler(), http.MethodGet, "/api/health", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
