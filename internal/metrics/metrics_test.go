package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderExposesMetrics(t *testing.T) {
	r := New()
	r.ObserveStage("fetch", 250*time.Millisecond)
	r.SetScreened("crypto_output_log_1min", 3)
	r.RecordTrade("filled")
	r.RecordRetry()
	r.SetBlacklistSize(2)
	r.RecordError("exchange")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `cryptobot_screened_symbols{buffer="crypto_output_log_1min"} 3`)
	assert.Contains(t, out, `cryptobot_trades_total{outcome="filled"} 1`)
	assert.Contains(t, out, "cryptobot_order_retries_total 1")
	assert.Contains(t, out, "cryptobot_blacklist_entries 2")
	assert.Contains(t, out, `cryptobot_stage_duration_seconds_count{stage="fetch"} 1`)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveStage("fetch", time.Second)
		r.SetScreened("x", 1)
		r.RecordTrade("failed")
		r.RecordRetry()
		r.SetBlacklistSize(0)
		r.RecordError("x")
	})
}
