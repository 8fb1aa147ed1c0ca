// Package pipeline holds the long-running loops behind the logger and
// bootstrap modes and the fill archiver.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/aggregate"
	"github.com/alanyoungcy/cryptobot/internal/buffer"
	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/metrics"
	"github.com/alanyoungcy/cryptobot/internal/screener"
)

// drainTimeout bounds the final cycle run after shutdown is requested.
const drainTimeout = 30 * time.Second

// PathSource resolves the path cache once it has been built.
type PathSource interface {
	Wait(ctx context.Context) (domain.PathCache, error)
}

// ScreenedPublisher broadcasts the encoded 1m screened set.
type ScreenedPublisher func(ctx context.Context, payload []byte) error

// Buffers is the chain of buffers one logger cycle feeds: raw snapshots,
// 5s bars built from them, and 1m bars built from the 5s bars.
type Buffers struct {
	Input  *buffer.CircularLogBuffer
	Five   *buffer.CircularLogBuffer
	Minute *buffer.CircularLogBuffer
}

// NewBuffers creates the default buffer chain under dir.
func NewBuffers(dir string, logger *slog.Logger, opts ...buffer.Option) (Buffers, error) {
	input, err := buffer.New(buffer.InputConfig(dir), logger, opts...)
	if err != nil {
		return Buffers{}, err
	}
	five, err := buffer.New(buffer.FiveSecondConfig(dir), logger, opts...)
	if err != nil {
		return Buffers{}, err
	}
	minute, err := buffer.New(buffer.MinuteConfig(dir), logger, opts...)
	if err != nil {
		return Buffers{}, err
	}
	return Buffers{Input: input, Five: five, Minute: minute}, nil
}

func (b Buffers) all() []*buffer.CircularLogBuffer {
	return []*buffer.CircularLogBuffer{b.Input, b.Five, b.Minute}
}

// MarketLogger turns exchange tickers into the persisted buffers and the
// screened set the trader consumes.
type MarketLogger struct {
	tickers   domain.TickerSource
	pairs     domain.PairIndex
	converter *conversion.Converter
	paths     PathSource
	level     conversion.DetailLevel
	buffers   Buffers
	prices    domain.PriceCache
	publish   ScreenedPublisher
	metrics   *metrics.Recorder
	logger    *slog.Logger

	pathsReady bool
}

// LoggerOption configures a MarketLogger.
type LoggerOption func(*MarketLogger)

// WithPriceCache stores each cycle's USDT asset prices in c.
func WithPriceCache(c domain.PriceCache) LoggerOption {
	return func(l *MarketLogger) { l.prices = c }
}

// WithScreenedPublisher hands every 1m screened set to p after it is logged.
func WithScreenedPublisher(p ScreenedPublisher) LoggerOption {
	return func(l *MarketLogger) { l.publish = p }
}

// WithLoggerMetrics records cycle timings and screened counts.
func WithLoggerMetrics(r *metrics.Recorder) LoggerOption {
	return func(l *MarketLogger) { l.metrics = r }
}

// NewMarketLogger creates a MarketLogger.
func NewMarketLogger(
	tickers domain.TickerSource,
	pairs []domain.Pair,
	paths PathSource,
	level conversion.DetailLevel,
	buffers Buffers,
	logger *slog.Logger,
	opts ...LoggerOption,
) *MarketLogger {
	idx := domain.NewPairIndex(pairs)
	l := &MarketLogger{
		tickers:   tickers,
		pairs:     idx,
		converter: conversion.NewConverter(idx),
		paths:     paths,
		level:     level,
		buffers:   buffers,
		logger:    logger.With(slog.String("component", "market_logger")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load restores every buffer from its log files.
func (l *MarketLogger) Load(ctx context.Context) {
	for _, b := range l.buffers.all() {
		b.Load(ctx)
	}
}

// Cycle runs one logger iteration. A ticker failure is not fatal: the
// buffers keep their previous datasets, live assets and screened sets and
// are logged again.
func (l *MarketLogger) Cycle(ctx context.Context) error {
	start := time.Now()
	defer func() { l.metrics.ObserveStage("logger_cycle", time.Since(start)) }()

	paths, err := l.paths.Wait(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: wait for paths: %w", err)
	}
	l.pathsReady = true

	var (
		snapshots domain.Dataset
		live      []string
	)
	tickers, err := l.tickers.Tickers(ctx)
	if err != nil {
		l.logger.Warn("tickers unavailable, keeping previous data", slog.String("error", err.Error()))
		l.metrics.RecordError("tickers")
	} else {
		snapshots, live = l.snapshot(ctx, tickers, paths)
	}

	in, five, minute := l.buffers.Input, l.buffers.Five, l.buffers.Minute
	if snapshots != nil {
		in.GetAndPutNext(snapshots)
		in.ScreenMovers(aggregate.DefaultMoverThresholds(), live)

		five.GetAndPutNext(in.Dataset())
		if _, err := five.ScreenNext(ctx, in.Screened(), in.Live(), screener.ByFrequency); err != nil {
			l.logger.Warn("5s screen failed", slog.String("error", err.Error()))
		}

		minute.GetAndPutNext(five.Dataset())
		if _, err := minute.ScreenNext(ctx, five.Screened(), nil, screener.ByFrequency); err != nil {
			l.logger.Warn("1m screen failed", slog.String("error", err.Error()))
		}
	}

	var errs []error
	for _, b := range l.buffers.all() {
		if err := b.LogNext(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if l.publish != nil && minute.Screened() != nil {
		payload, err := buffer.ScreenedToCSV(minute.Screened())
		if err == nil {
			err = l.publish(ctx, payload)
		}
		if err != nil {
			l.logger.Warn("publish screened set failed", slog.String("error", err.Error()))
		}
	}

	for _, b := range l.buffers.all() {
		l.metrics.SetScreened(b.LogName(), len(b.Screened()))
	}
	l.logger.Info("logger cycle complete",
		slog.Int("snapshots", len(snapshots)),
		slog.Int("live", len(live)),
		slog.Int("screened_5s", len(five.Screened())),
		slog.Int("screened_1m", len(minute.Screened())),
		slog.Duration("elapsed", time.Since(start)),
	)
	return errors.Join(errs...)
}

// snapshot builds the conversion table and returns one snapshot bar per
// asset along with the live-eligible assets.
func (l *MarketLogger) snapshot(ctx context.Context, tickers []domain.Ticker, paths domain.PathCache) (domain.Dataset, []string) {
	table, err := conversion.NewTableBuilder(l.converter, paths, l.level).Build(conversion.JoinTickers(tickers, l.pairs))
	if err != nil {
		l.logger.Warn("conversion table unavailable", slog.String("error", err.Error()))
		return nil, nil
	}
	if unpriced := table.Unpriced(); len(unpriced) > 0 {
		l.logger.Debug("assets without a USDT price", slog.Int("count", len(unpriced)))
	}

	assets := table.Assets()
	snapshots := make(domain.Dataset, 0, len(assets))
	prices := make(map[string]float64, len(assets))
	for _, a := range assets {
		snapshots = append(snapshots, a.Snapshot())
		if a.Close > 0 {
			prices[a.Asset] = a.Close
		}
	}

	if l.prices != nil && len(prices) > 0 {
		if err := l.prices.SetPrices(ctx, prices, time.Now().UTC()); err != nil {
			l.logger.Warn("price cache update failed", slog.String("error", err.Error()))
		}
	}
	return snapshots, conversion.LiveAssets(assets, conversion.DefaultLiveThresholds())
}

// Run calls Cycle every interval until ctx is cancelled, then runs one
// final cycle so the logs reflect the latest data before exit.
func (l *MarketLogger) Run(ctx context.Context, interval time.Duration) error {
	l.logger.Info("market logger started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := l.Cycle(ctx); err != nil && ctx.Err() == nil {
			l.logger.Error("logger cycle failed", slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return l.drain(ctx)
		case <-ticker.C:
		}
	}
}

func (l *MarketLogger) drain(ctx context.Context) error {
	if !l.pathsReady {
		l.logger.Info("market logger stopped before paths were ready")
		return nil
	}
	l.logger.Info("draining market logger")
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := l.Cycle(dctx); err != nil {
		return fmt.Errorf("pipeline: drain: %w", err)
	}
	l.logger.Info("market logger stopped")
	return nil
}
