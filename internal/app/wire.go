package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	s3blob "github.com/alanyoungcy/cryptobot/internal/blob/s3"
	"github.com/alanyoungcy/cryptobot/internal/cache/redis"
	"github.com/alanyoungcy/cryptobot/internal/config"
	"github.com/alanyoungcy/cryptobot/internal/crypto"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/metrics"
	"github.com/alanyoungcy/cryptobot/internal/notify"
	"github.com/alanyoungcy/cryptobot/internal/platform/binance"
	"github.com/alanyoungcy/cryptobot/internal/store/postgres"
)

// Dependencies bundles every adapter the modes use. Optional backends
// that are disabled in the configuration leave their fields nil.
type Dependencies struct {
	Exchange *binance.Client

	// Stores
	BlacklistStore domain.BlacklistStore
	FillStore      *postgres.FillStore

	// Caches
	PriceCache   domain.PriceCache
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus
	APILimiter   domain.RateLimiter
	venueLimiter domain.RateLimiter

	// Blob storage
	Mirror       *s3blob.Mirror
	FillArchiver *s3blob.FillArchiver

	// Notifications
	Notifier *notify.Notifier

	Metrics *metrics.Recorder
}

// needsCredentials reports whether the mode places orders or reads the
// account.
func needsCredentials(mode string) bool {
	return mode == config.ModeTrader
}

// needsPostgres returns true for modes that persist trader state.
func needsPostgres(cfg *config.Config) bool {
	return cfg.Postgres.Enabled && cfg.Mode == config.ModeTrader
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
	}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.BlacklistStore = postgres.NewBlacklistStore(pool)
		deps.FillStore = postgres.NewFillStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Exchange.WeightPerMinute > 0 {
			deps.venueLimiter = redis.NewRateLimiter(redisClient, cfg.Exchange.WeightPerMinute, time.Minute)
		}
		if cfg.Metrics.RequestsPerMinute > 0 {
			deps.APILimiter = redis.NewRateLimiter(redisClient, cfg.Metrics.RequestsPerMinute, time.Minute)
		}
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Mirror = s3blob.NewClientMirror(s3Client)
		// Archiver: only when fills are persisted.
		if deps.FillStore != nil {
			deps.FillArchiver = s3blob.NewFillArchiver(s3Client, deps.FillStore, s3Client.Prefix())
		}
	}

	// --- Exchange ---
	ex, err := newExchange(cfg, deps.venueLimiter)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchange: %w", err)
	}
	deps.Exchange = ex

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// newExchange builds the REST client. Credentials are only resolved for
// modes that need them.
func newExchange(cfg *config.Config, limiter domain.RateLimiter) (*binance.Client, error) {
	var auth *crypto.HMACAuth
	if needsCredentials(cfg.Mode) {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{
			RawSecret:           cfg.Exchange.APISecret,
			EncryptedSecretPath: cfg.Keystore.EncryptedSecretPath,
			Password:            cfg.Keystore.Password,
		})
		if err != nil {
			return nil, err
		}
		auth = &crypto.HMACAuth{Key: cfg.Exchange.APIKey, Secret: secret}
	}

	opts := []binance.Option{
		binance.WithHTTPClient(&http.Client{Timeout: cfg.Exchange.Timeout.Duration}),
		binance.WithRecvWindow(cfg.Exchange.RecvWindow.Duration),
	}
	if limiter != nil {
		opts = append(opts, binance.WithLimiter(limiter))
	}
	return binance.NewClient(cfg.Exchange.BaseURL, auth, opts...), nil
}
