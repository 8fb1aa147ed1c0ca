package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptobot/internal/aggregate"
	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/graph"
)

// Bootstrap defaults.
const (
	DefaultHistoryMinutes = 2880
	historyPadding        = 60
	fiveSecondSeedBars    = 25
	maxDownloadAttempts   = 5
)

// BootstrapExchange is what the bootstrapper needs from the venue.
type BootstrapExchange interface {
	domain.MetadataSource
	domain.TickerSource
	domain.KlineSource
}

// BootstrapConfig tunes a Bootstrapper.
type BootstrapConfig struct {
	PathCacheFile  string
	HistoryMinutes int
	Concurrency    int
	Symbols        []string // assets to download; empty means every live asset
	FixFrequency   bool
	Level          conversion.DetailLevel
}

// Bootstrapper seeds the logger's bar buffers with kline history so the
// 1m screen has a full rolling day to work with on the first cycle.
type Bootstrapper struct {
	cfg       BootstrapConfig
	ex        BootstrapExchange
	buffers   Buffers
	retryable func(error) bool
	backoff   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// BootstrapOption configures a Bootstrapper.
type BootstrapOption func(*Bootstrapper)

// WithRetryable decides which kline download errors are retried.
// The default retries rate limiting only.
func WithRetryable(fn func(error) bool) BootstrapOption {
	return func(b *Bootstrapper) { b.retryable = fn }
}

// WithBackoff sets the first retry delay; it doubles on each attempt.
func WithBackoff(d time.Duration) BootstrapOption {
	return func(b *Bootstrapper) { b.backoff = d }
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(cfg BootstrapConfig, ex BootstrapExchange, buffers Buffers, logger *slog.Logger, opts ...BootstrapOption) *Bootstrapper {
	if cfg.HistoryMinutes <= 0 {
		cfg.HistoryMinutes = DefaultHistoryMinutes
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	b := &Bootstrapper{
		cfg:       cfg,
		ex:        ex,
		buffers:   buffers,
		retryable: domain.IsRateLimited,
		backoff:   time.Second,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "bootstrap")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run builds or loads the path cache, downloads history for every asset,
// and seeds and logs the 1m and 5s buffers.
func (b *Bootstrapper) Run(ctx context.Context) error {
	pairs, err := b.ex.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: bootstrap exchange info: %w", err)
	}
	paths, err := graph.LoadOrBuild(ctx, b.cfg.PathCacheFile, graph.NewRouter(graph.New(pairs), b.logger))
	if err != nil {
		return fmt.Errorf("pipeline: bootstrap paths: %w", err)
	}

	tickers, err := b.ex.Tickers(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: bootstrap tickers: %w", err)
	}
	idx := domain.NewPairIndex(pairs)
	table, err := conversion.NewTableBuilder(conversion.NewConverter(idx), paths, b.cfg.Level).
		Build(conversion.JoinTickers(tickers, idx))
	if err != nil {
		return fmt.Errorf("pipeline: bootstrap table: %w", err)
	}

	assets := b.cfg.Symbols
	if len(assets) == 0 {
		assets = conversion.LiveAssets(table.Assets(), conversion.DefaultLiveThresholds())
	}
	b.logger.Info("downloading history",
		slog.Int("assets", len(assets)),
		slog.Int("minutes", b.cfg.HistoryMinutes),
	)

	history, err := b.download(ctx, table, assets)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("pipeline: bootstrap: %w", domain.ErrNoData)
	}

	minute := aggregate.AddRollingVolumes(aggregate.CleanBars(history), aggregate.Day)
	b.buffers.Minute.Seed(minute)
	b.buffers.Five.Seed(aggregate.Resample(minute.Tail(fiveSecondSeedBars), b.buffers.Five.Config().Interval))

	if err := b.buffers.Minute.LogNext(ctx); err != nil {
		return fmt.Errorf("pipeline: bootstrap log 1m: %w", err)
	}
	if err := b.buffers.Five.LogNext(ctx); err != nil {
		return fmt.Errorf("pipeline: bootstrap log 5s: %w", err)
	}
	b.logger.Info("bootstrap complete",
		slog.Int("symbols", len(minute.Symbols())),
		slog.Int("minute_bars", len(b.buffers.Minute.Dataset())),
		slog.Int("five_second_bars", len(b.buffers.Five.Dataset())),
	)
	return nil
}

// download fetches each asset's history through its highest-volume pair
// and converts it into USDT-valued asset bars. Assets that fail or have
// no pair are skipped.
func (b *Bootstrapper) download(ctx context.Context, table *conversion.Table, assets []string) (domain.Dataset, error) {
	var (
		mu  sync.Mutex
		out domain.Dataset
	)
	end := b.now().UTC()
	limit := b.cfg.HistoryMinutes + historyPadding

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for _, asset := range assets {
		row, ok := table.HighestVolumePair(asset)
		if !ok || row.Close <= 0 || row.USDTPrice <= 0 {
			b.logger.Warn("no priced pair for asset", slog.String("asset", asset))
			continue
		}
		g.Go(func() error {
			bars, err := b.klines(gctx, row.Symbol, limit, end)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				b.logger.Warn("history download failed",
					slog.String("asset", asset),
					slog.String("symbol", row.Symbol),
					slog.String("error", err.Error()),
				)
				return nil
			}
			series := assetBars(asset, row, bars)
			if b.cfg.FixFrequency {
				series = aggregate.FixFrequency(series)
			}
			mu.Lock()
			out = append(out, series...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: bootstrap download: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out, nil
}

func (b *Bootstrapper) klines(ctx context.Context, symbol string, limit int, end time.Time) ([]domain.Bar, error) {
	delay := b.backoff
	for attempt := 1; ; attempt++ {
		bars, err := b.ex.Klines(ctx, symbol, time.Minute, limit, end)
		if err == nil {
			return bars, nil
		}
		if attempt >= maxDownloadAttempts || !b.retryable(err) {
			return nil, err
		}
		b.logger.Debug("retrying kline download",
			slog.String("symbol", symbol),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

// assetBars relabels a pair's bars as the base asset, valuing prices and
// quote volume in USDT through the pair's current quote-to-USDT rate.
func assetBars(asset string, row domain.PairRow, bars []domain.Bar) []domain.Bar {
	rate := row.USDTPrice / row.Close
	out := make([]domain.Bar, 0, len(bars))
	for _, bar := range bars {
		bar.Symbol = asset
		bar.Open *= rate
		bar.High *= rate
		bar.Low *= rate
		bar.Close *= rate
		bar.QuoteVolume *= rate
		bar.RollingQuoteVolume *= rate
		out = append(out, bar)
	}
	return out
}
