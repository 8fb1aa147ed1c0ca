package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptobot/internal/buffer"
	"github.com/alanyoungcy/cryptobot/internal/config"
	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/feed"
	"github.com/alanyoungcy/cryptobot/internal/graph"
	"github.com/alanyoungcy/cryptobot/internal/pipeline"
	"github.com/alanyoungcy/cryptobot/internal/platform/binance"
	"github.com/alanyoungcy/cryptobot/internal/remote"
	"github.com/alanyoungcy/cryptobot/internal/server"
	"github.com/alanyoungcy/cryptobot/internal/server/handler"
	"github.com/alanyoungcy/cryptobot/internal/trader"
)

// traderLockKey guards against two traders driving the same account.
const traderLockKey = "trader"

// LoggerMode builds the path cache in the background and runs the market
// logger until the context is cancelled, then drains one last cycle.
func (a *App) LoggerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting logger mode")

	pairs, err := deps.Exchange.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("app: exchange info: %w", err)
	}
	level, err := conversion.ParseDetailLevel(a.cfg.Logger.DetailLevel)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	var bufOpts []buffer.Option
	if a.cfg.Logger.Mirror && deps.Mirror != nil {
		bufOpts = append(bufOpts, buffer.WithMirror(deps.Mirror))
	}
	buffers, err := pipeline.NewBuffers(a.cfg.Logger.DataDir, a.logger, bufOpts...)
	if err != nil {
		return fmt.Errorf("app: buffers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	cell := a.buildPaths(gctx, g, pairs)

	var tickers domain.TickerSource = deps.Exchange
	if a.cfg.Exchange.TickerSource == "stream" {
		stream := feed.NewTickerFeed(a.cfg.Exchange.StreamURL, 3*a.cfg.Logger.Interval.Duration, a.logger)
		g.Go(func() error {
			defer stream.Close()
			err := stream.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ticker feed: %w", err)
		})
		tickers = stream
	}

	opts := []pipeline.LoggerOption{pipeline.WithLoggerMetrics(deps.Metrics)}
	if a.cfg.Logger.CachePrices && deps.PriceCache != nil {
		opts = append(opts, pipeline.WithPriceCache(deps.PriceCache))
	}
	if a.cfg.Logger.Publish && deps.SignalBus != nil {
		bus := deps.SignalBus
		opts = append(opts, pipeline.WithScreenedPublisher(func(ctx context.Context, payload []byte) error {
			return feed.Publish(ctx, bus, payload)
		}))
	}
	ml := pipeline.NewMarketLogger(tickers, pairs, cell, level, buffers, a.logger, opts...)
	ml.Load(ctx)

	g.Go(func() error {
		return ml.Run(gctx, a.cfg.Logger.Interval.Duration)
	})

	a.startHTTPServer(gctx, g, deps, nil)

	return g.Wait()
}

// TraderMode holds the single-trader lock, starts the trade engine on the
// configured screened-log source and serves its status.
func (a *App) TraderMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trader mode")

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, traderLockKey, a.cfg.Trader.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: trader lock: %w", err)
		}
		defer unlock()
	}

	pairs, err := deps.Exchange.ExchangeInfo(ctx)
	if err != nil {
		return fmt.Errorf("app: exchange info: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	src, closeSrc, err := a.remoteSource(gctx, g, deps)
	if err != nil {
		return err
	}
	defer closeSrc()
	cell := a.buildPaths(gctx, g, pairs)

	opts := []trader.Option{
		trader.WithNotifier(deps.Notifier),
		trader.WithMetrics(deps.Metrics),
	}
	if deps.BlacklistStore != nil {
		opts = append(opts, trader.WithBlacklistStore(deps.BlacklistStore))
	}
	if deps.FillStore != nil {
		opts = append(opts, trader.WithFillStore(deps.FillStore))
	}
	engine := trader.New(traderConfig(a.cfg.Trader), deps.Exchange, src, domain.NewPairIndex(pairs), cell, a.logger, opts...)

	g.Go(func() error {
		if err := engine.Start(gctx); err != nil {
			return err
		}
		err := engine.Run(gctx, a.cfg.Trader.Interval.Duration)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if deps.FillArchiver != nil && a.cfg.Trader.ArchiveAfter.Duration > 0 {
		archiver := pipeline.NewArchiver(deps.FillArchiver, deps.FillStore, a.cfg.Trader.ArchiveAfter.Duration, a.logger)
		g.Go(func() error {
			err := archiver.RunCron(gctx, a.cfg.Trader.ArchiveCron)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	a.startHTTPServer(gctx, g, deps, engine)

	return g.Wait()
}

// BootstrapMode downloads kline history and seeds the logger's buffers.
func (a *App) BootstrapMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting bootstrap mode")

	level, err := conversion.ParseDetailLevel(a.cfg.Logger.DetailLevel)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	var bufOpts []buffer.Option
	if a.cfg.Logger.Mirror && deps.Mirror != nil {
		bufOpts = append(bufOpts, buffer.WithMirror(deps.Mirror))
	}
	buffers, err := pipeline.NewBuffers(a.cfg.Logger.DataDir, a.logger, bufOpts...)
	if err != nil {
		return fmt.Errorf("app: buffers: %w", err)
	}

	b := pipeline.NewBootstrapper(pipeline.BootstrapConfig{
		PathCacheFile:  a.cfg.Paths.CacheFile,
		HistoryMinutes: a.cfg.Bootstrap.HistoryMinutes,
		Concurrency:    a.cfg.Bootstrap.Concurrency,
		Symbols:        a.cfg.Bootstrap.Symbols,
		FixFrequency:   a.cfg.Logger.FixFrequency,
		Level:          level,
	}, deps.Exchange, buffers, a.logger, pipeline.WithRetryable(binance.IsRetryable))
	return b.Run(ctx)
}

// buildPaths loads or builds the path cache on g and returns the cell it
// is published through. A failed build fails the group.
func (a *App) buildPaths(ctx context.Context, g *errgroup.Group, pairs []domain.Pair) *graph.PathCell {
	cell := graph.NewPathCell()
	g.Go(func() error {
		router := graph.NewRouter(graph.New(pairs), a.logger.With(slog.String("component", "router")))
		paths, err := graph.LoadOrBuild(ctx, a.cfg.Paths.CacheFile, router)
		cell.Set(paths, err)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("path cache: %w", err)
		}
		return nil
	})
	return cell
}

// remoteSource builds the trader's screened-log source and a function
// releasing it.
func (a *App) remoteSource(ctx context.Context, g *errgroup.Group, deps *Dependencies) (domain.RemoteSource, func(), error) {
	noop := func() {}
	switch a.cfg.Trader.Source {
	case "ssh":
		src, err := remote.NewSSHSource(remote.SSHConfig{
			Host:           a.cfg.SSH.Host,
			Port:           a.cfg.SSH.Port,
			User:           a.cfg.SSH.User,
			KeyPath:        a.cfg.SSH.KeyPath,
			Password:       a.cfg.SSH.Password,
			KnownHostsPath: a.cfg.SSH.KnownHostsPath,
			Dir:            a.cfg.SSH.Dir,
			Timeout:        a.cfg.SSH.Timeout.Duration,
		}, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("app: ssh source: %w", err)
		}
		return src, func() { _ = src.Close() }, nil
	case "s3":
		if deps.Mirror == nil {
			return nil, nil, fmt.Errorf("app: s3 source: s3 is not enabled")
		}
		return deps.Mirror, noop, nil
	case "redis":
		if deps.SignalBus == nil {
			return nil, nil, fmt.Errorf("app: redis source: redis is not enabled")
		}
		fd := feed.NewScreenedFeed(deps.SignalBus, remote.NewFileSource(a.cfg.Trader.LogDir), a.logger)
		g.Go(func() error {
			err := fd.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("screened feed: %w", err)
		})
		return fd, noop, nil
	default:
		return remote.NewFileSource(a.cfg.Trader.LogDir), noop, nil
	}
}

// startHTTPServer serves health and metrics, plus status and fills when
// a trade engine is running and prices when redis is enabled. It is a
// no-op when metrics are disabled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *trader.Engine) {
	if !a.cfg.Metrics.Enabled {
		return
	}

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode),
		Metrics: deps.Metrics.Handler(),
	}
	if engine != nil {
		handlers.Status = handler.NewStatusHandler(engine)
	}
	if deps.FillStore != nil {
		handlers.Fills = handler.NewFillsHandler(deps.FillStore, a.logger)
	}
	if deps.PriceCache != nil {
		handlers.Prices = handler.NewPricesHandler(deps.PriceCache, a.logger)
	}
	srv := server.NewServer(server.Config{
		Addr:        a.cfg.Metrics.Addr,
		CORSOrigins: a.cfg.Metrics.CORSOrigins,
		APIKey:      a.cfg.Metrics.APIKey,
		Limiter:     deps.APILimiter,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// traderConfig maps the file configuration onto the engine's.
func traderConfig(c config.TraderConfig) trader.Config {
	limit := func(l config.LimitConfig) trader.Limit {
		return trader.Limit{Enabled: l.Enabled, Percent: l.Percent, Count: l.Count}
	}
	return trader.Config{
		SellAsset:     c.SellAsset,
		ScreenedLog:   c.ScreenedLog,
		Frequency:     c.Frequency.Duration,
		MaxRetries:    c.MaxRetries,
		FeesThreshold: c.FeesThreshold,
		Limits: trader.Limits{
			TakeProfit: limit(c.TakeProfit),
			StopLoss:   limit(c.StopLoss),
			Profit:     limit(c.Profit),
			Loss:       limit(c.Loss),
		},
		OrderBookCheck:   c.OrderBookCheck,
		OrderBookDepth:   c.OrderBookDepth,
		MaxSpreadPercent: c.MaxSpreadPercent,
		MinRangePercent:  c.MinRangePercent,
	}
}
