// Package metrics exposes logger and trader activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records cycle and trade metrics on its own registry. A nil
// Recorder discards everything.
type Recorder struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	screened      *prometheus.GaugeVec
	trades        *prometheus.CounterVec
	retries       prometheus.Counter
	blacklist     prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cryptobot",
				Name:      "stage_duration_seconds",
				Help:      "Duration of logger and trader stages in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		screened: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "cryptobot",
				Name:      "screened_symbols",
				Help:      "Symbols in the latest screened set of each buffer",
			},
			[]string{"buffer"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptobot",
				Name:      "trades_total",
				Help:      "Multi-hop trades by outcome",
			},
			[]string{"outcome"},
		),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cryptobot",
			Name:      "order_retries_total",
			Help:      "Orders retried after an insufficient balance error",
		}),
		blacklist: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "cryptobot",
			Name:      "blacklist_entries",
			Help:      "Assets currently on cooldown",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cryptobot",
				Name:      "errors_total",
				Help:      "Errors encountered by kind",
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetScreened records the size of a buffer's screened set.
func (r *Recorder) SetScreened(buffer string, n int) {
	if r == nil {
		return
	}
	r.screened.WithLabelValues(buffer).Set(float64(n))
}

// RecordTrade counts a finished trade attempt.
func (r *Recorder) RecordTrade(outcome string) {
	if r == nil {
		return
	}
	r.trades.WithLabelValues(outcome).Inc()
}

// RecordRetry counts one order retry.
func (r *Recorder) RecordRetry() {
	if r == nil {
		return
	}
	r.retries.Inc()
}

// SetBlacklistSize records the number of blacklisted assets.
func (r *Recorder) SetBlacklistSize(n int) {
	if r == nil {
		return
	}
	r.blacklist.Set(float64(n))
}

// RecordError counts an error of the given kind.
func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}
