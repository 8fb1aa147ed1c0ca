package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/buffer"
	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/graph"
	"github.com/alanyoungcy/cryptobot/internal/metrics"
)

// Notification event types.
const (
	EventTrade      = "trade"
	EventTakeProfit = "take_profit"
	EventStopLoss   = "stop_loss"
	EventError      = "error"
)

// Config tunes the engine.
type Config struct {
	SellAsset     string
	ScreenedLog   string
	Frequency     time.Duration // blacklist cooldown
	Limits        Limits
	MaxRetries    int     // insufficient-balance retries per order
	FeesThreshold float64 // USDT wallet value above which fee-optimal routes are used

	OrderBookCheck   bool
	OrderBookDepth   int
	MaxSpreadPercent float64
	MinRangePercent  float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SellAsset:        domain.USDT,
		ScreenedLog:      "crypto_output_log_1min_screened.txt",
		Frequency:        5 * time.Minute,
		Limits:           DefaultLimits(),
		MaxRetries:       8,
		FeesThreshold:    10,
		OrderBookDepth:   5000,
		MaxSpreadPercent: 0.8,
		MinRangePercent:  10000,
	}
}

// Notifier delivers trade alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sends trade and cooldown alerts through n.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithBlacklistStore persists the blacklist after every change and
// restores it at Start.
func WithBlacklistStore(s domain.BlacklistStore) Option { return func(e *Engine) { e.store = s } }

// WithFillStore records every fill.
func WithFillStore(s domain.FillStore) Option { return func(e *Engine) { e.fills = s } }

// WithMetrics records trade metrics.
func WithMetrics(m *metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator overrides client order id generation.
func WithIDGenerator(gen func() string) Option { return func(e *Engine) { e.newID = gen } }

// Engine is the trader's state machine. It holds one asset at a time and
// is driven by Step from a single loop.
type Engine struct {
	cfg       Config
	exchange  domain.Exchange
	remote    domain.RemoteSource
	paths     *graph.PathCell
	pairs     domain.PairIndex
	converter *conversion.Converter
	blacklist *Blacklist
	logger    *slog.Logger

	notifier Notifier
	store    domain.BlacklistStore
	fills    domain.FillStore
	metrics  *metrics.Recorder
	now      func() time.Time
	newID    func() string

	from string // asset currently held

	stateMu sync.RWMutex
	state   State
}

// State is a point-in-time copy of the engine for readers outside the
// trading loop.
type State struct {
	Holding   string                  `json:"holding"`
	Blacklist []domain.BlacklistEntry `json:"blacklist"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// New creates an Engine. Pair metadata and paths must cover every pair
// the exchange trades.
func New(cfg Config, ex domain.Exchange, remote domain.RemoteSource, pairs domain.PairIndex, paths *graph.PathCell, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		exchange:  ex,
		remote:    remote,
		paths:     paths,
		pairs:     pairs,
		converter: conversion.NewConverter(pairs),
		blacklist: NewBlacklist(),
		logger:    logger.With(slog.String("component", "trader")),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     newClientOrderID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Blacklist exposes the engine's cooldown state.
func (e *Engine) Blacklist() *Blacklist { return e.blacklist }

// Holding returns the asset currently held.
func (e *Engine) Holding() string { return e.from }

// Snapshot returns the state published after the last Start or Step. It
// is safe to call from any goroutine.
func (e *Engine) Snapshot() State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state
}

func (e *Engine) publishState() {
	st := State{Holding: e.from, Blacklist: e.blacklist.Entries(), UpdatedAt: e.now()}
	e.stateMu.Lock()
	e.state = st
	e.stateMu.Unlock()
}

// Start restores the blacklist and finds the asset currently held.
func (e *Engine) Start(ctx context.Context) error {
	if e.store != nil {
		entries, err := e.store.Load(ctx, e.now().Add(-e.cfg.Frequency))
		if err != nil {
			e.logger.Warn("blacklist restore failed", slog.String("error", err.Error()))
		} else {
			e.blacklist.Restore(entries)
		}
	}
	table, err := e.table(ctx)
	if err != nil {
		return fmt.Errorf("trader: start: %w", err)
	}
	w, err := e.BiggestWallet(ctx, table)
	if err != nil {
		return fmt.Errorf("trader: start: %w", err)
	}
	e.from = w.Asset
	e.publishState()
	e.logger.Info("trader started",
		slog.String("holding", w.Asset),
		slog.Float64("usdt_value", w.USDTValue),
		slog.String("priority", string(w.Priority)),
		slog.Int("blacklisted", e.blacklist.Len()),
	)
	return nil
}

// Step runs one iteration: read the screened set, choose the target asset,
// then either trade towards it or check take profit and stop loss on the
// asset held. Old blacklist entries are dropped last.
func (e *Engine) Step(ctx context.Context) error {
	started := e.now()
	defer func() { e.metrics.ObserveStage("trader_step", time.Since(started)) }()

	var table *conversion.Table
	lazyTable := func() (*conversion.Table, error) {
		if table != nil {
			return table, nil
		}
		t, err := e.table(ctx)
		if err != nil {
			return nil, err
		}
		table = t
		return table, nil
	}

	screened := e.fetchScreened(ctx)
	to, err := e.ChooseToAsset(ctx, screened, lazyTable)
	if err != nil {
		return fmt.Errorf("trader: step: %w", err)
	}

	var stepErr error
	switch {
	case e.from != to:
		t, err := lazyTable()
		if err == nil {
			_, err = e.switchTo(ctx, t, to, true)
		}
		stepErr = err
	case e.from != e.cfg.SellAsset:
		t, err := lazyTable()
		if err == nil {
			_, err = e.CheckTakeProfitAndStopLoss(ctx, t)
		}
		stepErr = err
	}

	if n := e.blacklist.RemoveOlderEntries(e.now(), e.cfg.Frequency); n > 0 {
		e.logger.Debug("blacklist entries expired", slog.Int("removed", n))
		e.persistBlacklist(ctx)
	}
	e.metrics.SetBlacklistSize(e.blacklist.Len())
	e.publishState()
	if stepErr != nil {
		return fmt.Errorf("trader: step: %w", stepErr)
	}
	return nil
}

// Run calls Step every interval until ctx is done. Step errors are logged
// and the loop continues.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := e.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Error("trader step failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			e.logger.Info("trader loop stopped", slog.String("holding", e.from))
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetchScreened reads the logger's screened set. Missing, empty or
// malformed files mean no signal and yield nil.
func (e *Engine) fetchScreened(ctx context.Context) domain.ScreenedSet {
	data, err := e.remote.Fetch(ctx, e.cfg.ScreenedLog)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			e.logger.Warn("screened fetch failed", slog.String("error", err.Error()))
			e.metrics.RecordError("remote")
		}
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	set, err := buffer.ScreenedFromCSV(data)
	if err != nil {
		e.logger.Warn("ignoring malformed screened set", slog.String("error", err.Error()))
		return nil
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// ChooseToAsset picks the asset to hold. Without a screened set it is the
// sell asset. The held asset is kept while it stays screened; otherwise
// candidates are scanned by descending last price move and the first whose
// most traded pair is buyable, and passes the order book check when
// enabled, wins. The sell asset is the fallback.
func (e *Engine) ChooseToAsset(ctx context.Context, screened domain.ScreenedSet, table func() (*conversion.Table, error)) (string, error) {
	if screened == nil {
		return e.cfg.SellAsset, nil
	}
	ranked := append(domain.ScreenedSet(nil), screened...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].LastPriceMove > ranked[j].LastPriceMove })

	if ranked.Contains(e.from) {
		return e.from, nil
	}

	t, err := table()
	if err != nil {
		return "", err
	}
	seen := make(map[string]struct{}, len(ranked))
	for _, row := range ranked {
		asset := row.Symbol
		if _, dup := seen[asset]; dup {
			continue
		}
		seen[asset] = struct{}{}

		pair, ok := t.HighestVolumePair(asset)
		if !ok {
			continue
		}
		if !e.blacklist.IsBuyable(pair.BaseAsset, e.cfg.Limits) {
			continue
		}
		if e.cfg.OrderBookCheck {
			ok, err := e.OrderBookTrigger(ctx, pair.Symbol)
			if err != nil {
				e.logger.Warn("order book check failed",
					slog.String("symbol", pair.Symbol),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !ok {
				continue
			}
		}
		return asset, nil
	}
	return e.cfg.SellAsset, nil
}

// CheckTakeProfitAndStopLoss compares the price of the held asset's
// blacklist pair with its entry price. Crossing the take profit or stop
// loss threshold increments the matching counter and sells into the sell
// asset. It reports whether a switch happened.
func (e *Engine) CheckTakeProfitAndStopLoss(ctx context.Context, table *conversion.Table) (bool, error) {
	entry, ok := e.blacklist.Get(e.from)
	if !ok || entry.Close == 0 {
		return false, nil
	}
	row, ok := table.Row(entry.Symbol)
	if !ok {
		return false, nil
	}
	price := priceOf(e.from, row)
	gain := (price - entry.Close) / entry.Close * 100

	reason := domain.ReasonNone
	limits := e.cfg.Limits
	if limits.TakeProfit.Enabled && gain >= limits.TakeProfit.Percent {
		reason = domain.ReasonTakeProfit
	}
	if limits.StopLoss.Enabled && gain <= -limits.StopLoss.Percent {
		reason = domain.ReasonStopLoss
	}
	if reason == domain.ReasonNone {
		return false, nil
	}

	e.blacklist.Add(entry.Symbol, e.from, price, reason, e.now())
	e.persistBlacklist(ctx)
	e.logger.Info("exit triggered",
		slog.String("reason", string(reason)),
		slog.String("asset", e.from),
		slog.Float64("gain_percent", gain),
	)
	e.notify(ctx, string(reason), fmt.Sprintf("%s %s", reason, e.from),
		fmt.Sprintf("%s moved %.2f%% since entry at %g", entry.Symbol, gain, entry.Close))

	if _, err := e.switchTo(ctx, table, e.cfg.SellAsset, false); err != nil {
		return true, err
	}
	return true, nil
}

// CheckProfitAndLoss records whether leaving asset now is a profitable
// exit, incrementing the profit or loss counter when that limit is
// enabled.
func (e *Engine) CheckProfitAndLoss(asset string, table *conversion.Table) {
	entry, ok := e.blacklist.Get(asset)
	if !ok {
		return
	}
	row, ok := table.Row(entry.Symbol)
	if !ok {
		return
	}
	price := priceOf(asset, row)
	gain := price > entry.Close
	limits := e.cfg.Limits
	switch {
	case gain && limits.Profit.Enabled:
		e.blacklist.Add(entry.Symbol, asset, price, domain.ReasonProfit, e.now())
	case !gain && limits.Loss.Enabled:
		e.blacklist.Add(entry.Symbol, asset, price, domain.ReasonLoss, e.now())
	}
}

// priceOf is the close of row as the price of asset in the pair's other
// asset. It is the inverse of the close when asset is the quote.
func priceOf(asset string, row domain.PairRow) float64 {
	if row.QuoteAsset == asset && row.Close != 0 {
		return 1 / row.Close
	}
	return row.Close
}

// entryPrice is the price of the asset a fill bought, in the asset it
// paid with.
func entryPrice(fill *domain.Fill) float64 {
	if fill.Side == domain.OrderSideSell && fill.Price != 0 {
		return 1 / fill.Price
	}
	return fill.Price
}

// switchTo trades the biggest wallet into to and records the outcome.
// judge applies CheckProfitAndLoss to the asset being left; exits already
// counted as take profit or stop loss pass false.
func (e *Engine) switchTo(ctx context.Context, table *conversion.Table, to string, judge bool) (*domain.Fill, error) {
	wallet, err := e.BiggestWallet(ctx, table)
	if err != nil {
		return nil, err
	}
	if wallet.Asset == to {
		e.from = to
		return nil, nil
	}

	fill, err := e.Trade(ctx, wallet, to, table)
	if err != nil {
		e.metrics.RecordTrade("failed")
		e.notify(ctx, EventError, "trade failed", fmt.Sprintf("%s to %s: %v", wallet.Asset, to, err))
		return nil, err
	}
	e.metrics.RecordTrade("filled")

	left := wallet.Asset
	if judge {
		e.CheckProfitAndLoss(left, table)
	}
	if to != e.cfg.SellAsset {
		e.blacklist.Enter(fill.Symbol, to, entryPrice(fill), e.now())
	}
	e.persistBlacklist(ctx)
	e.from = to

	e.logger.Info("trade complete",
		slog.String("from", left),
		slog.String("to", to),
		slog.String("symbol", fill.Symbol),
		slog.Float64("price", fill.Price),
	)
	e.notify(ctx, EventTrade, fmt.Sprintf("%s to %s", left, to),
		fmt.Sprintf("%s %s at %g for %g", fill.Side, fill.Symbol, fill.Price, fill.CummulativeQuoteQuantity))
	return fill, nil
}

func (e *Engine) table(ctx context.Context) (*conversion.Table, error) {
	paths, err := e.paths.Wait(ctx)
	if err != nil {
		return nil, err
	}
	tickers, err := e.exchange.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching tickers: %w", err)
	}
	builder := conversion.NewTableBuilder(e.converter, paths, conversion.DetailFull)
	return builder.Build(conversion.JoinTickers(tickers, e.pairs))
}

func (e *Engine) persistBlacklist(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, e.blacklist.Entries()); err != nil {
		e.logger.Warn("blacklist save failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
