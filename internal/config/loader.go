package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CRYPTOBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned
// Config has NOT been validated; the caller should invoke Config.Validate()
// after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CRYPTOBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "CRYPTOBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.StreamURL, "CRYPTOBOT_EXCHANGE_STREAM_URL")
	setStr(&cfg.Exchange.APIKey, "CRYPTOBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "CRYPTOBOT_EXCHANGE_API_SECRET")
	setDuration(&cfg.Exchange.RecvWindow, "CRYPTOBOT_EXCHANGE_RECV_WINDOW")
	setStr(&cfg.Exchange.TickerSource, "CRYPTOBOT_EXCHANGE_TICKER_SOURCE")
	setInt(&cfg.Exchange.WeightPerMinute, "CRYPTOBOT_EXCHANGE_WEIGHT_PER_MINUTE")

	// ── Keystore ──
	setStr(&cfg.Keystore.EncryptedSecretPath, "CRYPTOBOT_KEYSTORE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Keystore.Password, "CRYPTOBOT_KEYSTORE_PASSWORD")

	// ── Logger ──
	setStr(&cfg.Logger.DataDir, "CRYPTOBOT_LOGGER_DATA_DIR")
	setDuration(&cfg.Logger.Interval, "CRYPTOBOT_LOGGER_INTERVAL")
	setStr(&cfg.Logger.DetailLevel, "CRYPTOBOT_LOGGER_DETAIL_LEVEL")
	setBool(&cfg.Logger.FixFrequency, "CRYPTOBOT_LOGGER_FIX_FREQUENCY")
	setBool(&cfg.Logger.Mirror, "CRYPTOBOT_LOGGER_MIRROR")
	setBool(&cfg.Logger.Publish, "CRYPTOBOT_LOGGER_PUBLISH")
	setBool(&cfg.Logger.CachePrices, "CRYPTOBOT_LOGGER_CACHE_PRICES")

	// ── Trader ──
	setStr(&cfg.Trader.SellAsset, "CRYPTOBOT_TRADER_SELL_ASSET")
	setStr(&cfg.Trader.ScreenedLog, "CRYPTOBOT_TRADER_SCREENED_LOG")
	setDuration(&cfg.Trader.Interval, "CRYPTOBOT_TRADER_INTERVAL")
	setDuration(&cfg.Trader.Frequency, "CRYPTOBOT_TRADER_FREQUENCY")
	setInt(&cfg.Trader.MaxRetries, "CRYPTOBOT_TRADER_MAX_RETRIES")
	setFloat64(&cfg.Trader.FeesThreshold, "CRYPTOBOT_TRADER_FEES_THRESHOLD")
	setStr(&cfg.Trader.Source, "CRYPTOBOT_TRADER_SOURCE")
	setStr(&cfg.Trader.LogDir, "CRYPTOBOT_TRADER_LOG_DIR")
	setFloat64(&cfg.Trader.TakeProfit.Percent, "CRYPTOBOT_TRADER_TAKE_PROFIT_PERCENT")
	setFloat64(&cfg.Trader.StopLoss.Percent, "CRYPTOBOT_TRADER_STOP_LOSS_PERCENT")
	setBool(&cfg.Trader.OrderBookCheck, "CRYPTOBOT_TRADER_ORDER_BOOK_CHECK")
	setDuration(&cfg.Trader.ArchiveAfter, "CRYPTOBOT_TRADER_ARCHIVE_AFTER")
	setStr(&cfg.Trader.ArchiveCron, "CRYPTOBOT_TRADER_ARCHIVE_CRON")

	// ── Paths ──
	setStr(&cfg.Paths.CacheFile, "CRYPTOBOT_PATHS_CACHE_FILE")

	// ── Bootstrap ──
	setInt(&cfg.Bootstrap.HistoryMinutes, "CRYPTOBOT_BOOTSTRAP_HISTORY_MINUTES")
	setInt(&cfg.Bootstrap.Concurrency, "CRYPTOBOT_BOOTSTRAP_CONCURRENCY")
	setStringSlice(&cfg.Bootstrap.Symbols, "CRYPTOBOT_BOOTSTRAP_SYMBOLS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "CRYPTOBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "CRYPTOBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CRYPTOBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CRYPTOBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CRYPTOBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CRYPTOBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CRYPTOBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "CRYPTOBOT_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "CRYPTOBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "CRYPTOBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CRYPTOBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "CRYPTOBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "CRYPTOBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "CRYPTOBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CRYPTOBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CRYPTOBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CRYPTOBOT_S3_FORCE_PATH_STYLE")

	// ── SSH ──
	setStr(&cfg.SSH.Host, "CRYPTOBOT_SSH_HOST")
	setInt(&cfg.SSH.Port, "CRYPTOBOT_SSH_PORT")
	setStr(&cfg.SSH.User, "CRYPTOBOT_SSH_USER")
	setStr(&cfg.SSH.KeyPath, "CRYPTOBOT_SSH_KEY_PATH")
	setStr(&cfg.SSH.Password, "CRYPTOBOT_SSH_PASSWORD")
	setStr(&cfg.SSH.KnownHostsPath, "CRYPTOBOT_SSH_KNOWN_HOSTS_PATH")
	setStr(&cfg.SSH.Dir, "CRYPTOBOT_SSH_DIR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "CRYPTOBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "CRYPTOBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CRYPTOBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CRYPTOBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CRYPTOBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CRYPTOBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CRYPTOBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CRYPTOBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CRYPTOBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CRYPTOBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CRYPTOBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CRYPTOBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CRYPTOBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CRYPTOBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CRYPTOBOT_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "CRYPTOBOT_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "CRYPTOBOT_METRICS_ADDR")
	setStr(&cfg.Metrics.APIKey, "CRYPTOBOT_METRICS_API_KEY")
	setStringSlice(&cfg.Metrics.CORSOrigins, "CRYPTOBOT_METRICS_CORS_ORIGINS")
	setInt(&cfg.Metrics.RequestsPerMinute, "CRYPTOBOT_METRICS_REQUESTS_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "CRYPTOBOT_MODE")
	setStr(&cfg.LogLevel, "CRYPTOBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
