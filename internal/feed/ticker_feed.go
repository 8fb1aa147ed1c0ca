// Package feed keeps live views of streamed data: the latest all-market
// ticker snapshot and the latest screened set published on the signal bus.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/platform/binance"
)

// TickerFeed maintains the latest 24h ticker of every symbol from the
// all-market websocket stream. It implements domain.TickerSource so the
// logger can read tickers without polling the REST endpoint.
type TickerFeed struct {
	streamURL string
	maxAge    time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	tickers map[string]domain.Ticker
	updated time.Time

	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed. Snapshots older than maxAge are reported
// as stale by Tickers; zero disables the check.
func NewTickerFeed(streamURL string, maxAge time.Duration, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		streamURL: streamURL,
		maxAge:    maxAge,
		logger:    logger.With(slog.String("component", "ticker_feed")),
		tickers:   make(map[string]domain.Ticker),
		done:      make(chan struct{}),
	}
}

// Run connects and keeps the snapshot current until ctx is cancelled.
// Reconnects with backoff on disconnect.
func (f *TickerFeed) Run(ctx context.Context) error {
	delay := 2 * time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			delay = 2 * time.Second
		} else {
			f.logger.Warn("ticker stream disconnected, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("backoff", delay),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, time.Minute)
	}
}

func (f *TickerFeed) runConnection(ctx context.Context) error {
	client := binance.NewStreamClient(f.streamURL)
	defer client.Close()

	client.OnTickers(f.Apply)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	f.logger.Info("ticker stream connected")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	case <-client.Done():
		return client.Err()
	}
}

// Apply merges a batch into the snapshot. The stream only pushes symbols
// that changed, so older entries are kept.
func (f *TickerFeed) Apply(batch []domain.Ticker) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range batch {
		if cur, ok := f.tickers[t.Symbol]; ok && cur.Date.After(t.Date) {
			continue
		}
		f.tickers[t.Symbol] = t
	}
	f.updated = time.Now()
}

// Tickers returns the current snapshot sorted by symbol.
func (f *TickerFeed) Tickers(_ context.Context) ([]domain.Ticker, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.tickers) == 0 {
		return nil, fmt.Errorf("feed: tickers: %w", domain.ErrNoData)
	}
	if f.maxAge > 0 && time.Since(f.updated) > f.maxAge {
		return nil, fmt.Errorf("feed: tickers stale since %s: %w", f.updated.Format(time.RFC3339), domain.ErrNoData)
	}
	out := make([]domain.Ticker, 0, len(f.tickers))
	for _, t := range f.tickers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
