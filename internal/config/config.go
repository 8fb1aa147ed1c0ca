// Package config defines the top-level configuration for cryptobot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Operating modes.
const (
	ModeLogger    = "logger"
	ModeTrader    = "trader"
	ModeBootstrap = "bootstrap"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by CRYPTOBOT_* environment variables.
type Config struct {
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Keystore  KeystoreConfig  `toml:"keystore"`
	Logger    LoggerConfig    `toml:"logger"`
	Trader    TraderConfig    `toml:"trader"`
	Paths     PathsConfig     `toml:"paths"`
	Bootstrap BootstrapConfig `toml:"bootstrap"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	SSH       SSHConfig       `toml:"ssh"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Notify    NotifyConfig    `toml:"notify"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// ExchangeConfig holds the Binance endpoints and API credentials.
type ExchangeConfig struct {
	BaseURL    string   `toml:"base_url"`
	StreamURL  string   `toml:"stream_url"`
	APIKey     string   `toml:"api_key"`
	APISecret  string   `toml:"api_secret"`
	RecvWindow duration `toml:"recv_window"`
	Timeout    duration `toml:"timeout"`
	// TickerSource is "rest" (poll /ticker/24hr) or "stream" (websocket).
	TickerSource string `toml:"ticker_source"`
	// WeightPerMinute is the shared request weight budget; 0 disables
	// limiting. Enforced through redis when enabled.
	WeightPerMinute int `toml:"weight_per_minute"`
}

// KeystoreConfig points at an API secret encrypted with the keystore
// subcommand. It is used when exchange.api_secret is empty.
type KeystoreConfig struct {
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	Password            string `toml:"password"`
}

// LoggerConfig drives the market logger loop.
type LoggerConfig struct {
	DataDir      string   `toml:"data_dir"`
	Interval     duration `toml:"interval"`
	DetailLevel  string   `toml:"detail_level"`
	FixFrequency bool     `toml:"fix_frequency"`
	// Mirror uploads every log to S3 and restores missing logs from it.
	Mirror bool `toml:"mirror"`
	// Publish sends each 1m screened set over the redis signal bus.
	Publish bool `toml:"publish"`
	// CachePrices writes the latest USDT price per asset to redis.
	CachePrices bool `toml:"cache_prices"`
}

// TraderConfig drives the trading loop.
type TraderConfig struct {
	SellAsset     string   `toml:"sell_asset"`
	ScreenedLog   string   `toml:"screened_log"`
	Interval      duration `toml:"interval"`
	Frequency     duration `toml:"frequency"`
	MaxRetries    int      `toml:"max_retries"`
	FeesThreshold float64  `toml:"fees_threshold"`
	// Source is where the screened log is read from: file, ssh, s3 or redis.
	Source string `toml:"source"`
	// LogDir is the logger's data directory when Source is "file".
	LogDir string `toml:"log_dir"`

	TakeProfit LimitConfig `toml:"take_profit"`
	StopLoss   LimitConfig `toml:"stop_loss"`
	Profit     LimitConfig `toml:"profit"`
	Loss       LimitConfig `toml:"loss"`

	OrderBookCheck   bool    `toml:"order_book_check"`
	OrderBookDepth   int     `toml:"order_book_depth"`
	MaxSpreadPercent float64 `toml:"max_spread_percent"`
	MinRangePercent  float64 `toml:"min_range_percent"`

	// LockTTL bounds the single-instance lock held in redis.
	LockTTL duration `toml:"lock_ttl"`
	// ArchiveAfter moves fills older than this to S3; 0 disables.
	ArchiveAfter duration `toml:"archive_after"`
	ArchiveCron  string   `toml:"archive_cron"`
}

// LimitConfig is one cooldown rule.
type LimitConfig struct {
	Enabled bool    `toml:"enabled"`
	Percent float64 `toml:"percent"`
	Count   int     `toml:"count"`
}

// PathsConfig locates the persisted path cache.
type PathsConfig struct {
	CacheFile string `toml:"cache_file"`
}

// BootstrapConfig sizes the history downloaded before the first logger run.
type BootstrapConfig struct {
	HistoryMinutes int      `toml:"history_minutes"`
	Concurrency    int      `toml:"concurrency"`
	Symbols        []string `toml:"symbols"` // empty means every live pair
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SSHConfig locates the logger host for trader.source = "ssh".
type SSHConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	User           string   `toml:"user"`
	KeyPath        string   `toml:"key_path"`
	Password       string   `toml:"password"`
	KnownHostsPath string   `toml:"known_hosts_path"`
	Dir            string   `toml:"dir"`
	Timeout        duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig holds the ops HTTP server parameters.
type MetricsConfig struct {
	Enabled           bool     `toml:"enabled"`
	Addr              string   `toml:"addr"`
	APIKey            string   `toml:"api_key"`
	CORSOrigins       []string `toml:"cors_origins"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Mode:     ModeLogger,
		LogLevel: "info",
		Exchange: ExchangeConfig{
			BaseURL:         "https://api.binance.com",
			StreamURL:       "wss://stream.binance.com:9443/ws/!ticker@arr",
			RecvWindow:      duration{5 * time.Second},
			Timeout:         duration{10 * time.Second},
			TickerSource:    "rest",
			WeightPerMinute: 1200,
		},
		Logger: LoggerConfig{
			DataDir:     "data",
			Interval:    duration{5 * time.Second},
			DetailLevel: "extra_minimal",
		},
		Trader: TraderConfig{
			SellAsset:        "USDT",
			ScreenedLog:      "crypto_output_log_1min_screened.txt",
			Interval:         duration{time.Second},
			Frequency:        duration{5 * time.Minute},
			MaxRetries:       8,
			FeesThreshold:    10,
			Source:           "file",
			LogDir:           "data",
			TakeProfit:       LimitConfig{Enabled: true, Percent: 10, Count: 1},
			StopLoss:         LimitConfig{Enabled: true, Percent: 1, Count: 1},
			Profit:           LimitConfig{Enabled: false, Count: 20},
			Loss:             LimitConfig{Enabled: true, Percent: 0, Count: 1},
			OrderBookDepth:   5000,
			MaxSpreadPercent: 0.8,
			MinRangePercent:  10000,
			LockTTL:          duration{30 * time.Second},
			ArchiveAfter:     duration{30 * 24 * time.Hour},
			ArchiveCron:      "0 3 * * *",
		},
		Paths: PathsConfig{
			CacheFile: "data/paths.json",
		},
		Bootstrap: BootstrapConfig{
			HistoryMinutes: 2880,
			Concurrency:    4,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "cryptobot",
			PriceTTL:   duration{time.Minute},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "cryptobot-data",
			Prefix:         "cryptobot",
			ForcePathStyle: true,
		},
		SSH: SSHConfig{
			Port:    22,
			Timeout: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "cryptobot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Notify: NotifyConfig{
			Events: []string{"trade", "take_profit", "stop_loss", "error"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9100",
		},
	}
}

var validModes = map[string]bool{
	ModeLogger:    true,
	ModeTrader:    true,
	ModeBootstrap: true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDetailLevels = map[string]bool{
	"full":          true,
	"minimal":       true,
	"extra_minimal": true,
}

var validSources = map[string]bool{
	"file":  true,
	"ssh":   true,
	"s3":    true,
	"redis": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: logger, trader, bootstrap)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	switch c.Exchange.TickerSource {
	case "rest":
	case "stream":
		if c.Exchange.StreamURL == "" {
			errs = append(errs, "exchange: stream_url is required when ticker_source is stream")
		}
	default:
		errs = append(errs, fmt.Sprintf("exchange: unknown ticker_source %q (valid: rest, stream)", c.Exchange.TickerSource))
	}
	if c.Exchange.WeightPerMinute < 0 {
		errs = append(errs, "exchange: weight_per_minute must be >= 0")
	}
	if mode == ModeTrader {
		if c.Exchange.APIKey == "" {
			errs = append(errs, "exchange: api_key is required for mode trader")
		}
		if c.Exchange.APISecret == "" && c.Keystore.EncryptedSecretPath == "" {
			errs = append(errs, "exchange: either api_secret or keystore.encrypted_secret_path must be set for mode trader")
		}
		if c.Keystore.EncryptedSecretPath != "" && c.Keystore.Password == "" {
			errs = append(errs, "keystore: password is required when encrypted_secret_path is set")
		}
	}

	// Logger
	if c.Logger.DataDir == "" {
		errs = append(errs, "logger: data_dir must not be empty")
	}
	if c.Logger.Interval.Duration <= 0 {
		errs = append(errs, "logger: interval must be > 0")
	}
	if !validDetailLevels[c.Logger.DetailLevel] {
		errs = append(errs, fmt.Sprintf("logger: unknown detail_level %q (valid: full, minimal, extra_minimal)", c.Logger.DetailLevel))
	}
	if c.Logger.Mirror && !c.S3.Enabled {
		errs = append(errs, "logger: mirror requires s3.enabled")
	}
	if (c.Logger.Publish || c.Logger.CachePrices) && !c.Redis.Enabled {
		errs = append(errs, "logger: publish and cache_prices require redis.enabled")
	}

	// Trader
	if c.Trader.SellAsset == "" {
		errs = append(errs, "trader: sell_asset must not be empty")
	}
	if c.Trader.ScreenedLog == "" {
		errs = append(errs, "trader: screened_log must not be empty")
	}
	if c.Trader.Interval.Duration <= 0 {
		errs = append(errs, "trader: interval must be > 0")
	}
	if c.Trader.Frequency.Duration <= 0 {
		errs = append(errs, "trader: frequency must be > 0")
	}
	if c.Trader.MaxRetries < 0 {
		errs = append(errs, "trader: max_retries must be >= 0")
	}
	for name, l := range map[string]LimitConfig{
		"take_profit": c.Trader.TakeProfit,
		"stop_loss":   c.Trader.StopLoss,
		"profit":      c.Trader.Profit,
		"loss":        c.Trader.Loss,
	} {
		if l.Enabled && l.Count < 1 {
			errs = append(errs, fmt.Sprintf("trader: %s.count must be >= 1 when enabled", name))
		}
		if l.Percent < 0 {
			errs = append(errs, fmt.Sprintf("trader: %s.percent must be >= 0", name))
		}
	}
	if !validSources[c.Trader.Source] {
		errs = append(errs, fmt.Sprintf("trader: unknown source %q (valid: file, ssh, s3, redis)", c.Trader.Source))
	}
	if mode == ModeTrader {
		switch c.Trader.Source {
		case "ssh":
			if c.SSH.Host == "" || c.SSH.User == "" {
				errs = append(errs, "ssh: host and user are required when trader.source is ssh")
			}
			if c.SSH.KeyPath == "" && c.SSH.Password == "" {
				errs = append(errs, "ssh: key_path or password is required when trader.source is ssh")
			}
		case "s3":
			if !c.S3.Enabled {
				errs = append(errs, "trader: source s3 requires s3.enabled")
			}
		case "redis":
			if !c.Redis.Enabled {
				errs = append(errs, "trader: source redis requires redis.enabled")
			}
		}
	}
	if c.Trader.OrderBookCheck && c.Trader.OrderBookDepth <= 0 {
		errs = append(errs, "trader: order_book_depth must be > 0 when order_book_check is set")
	}

	// Paths
	if c.Paths.CacheFile == "" {
		errs = append(errs, "paths: cache_file must not be empty")
	}

	// Bootstrap
	if mode == ModeBootstrap {
		if c.Bootstrap.HistoryMinutes < 1 {
			errs = append(errs, "bootstrap: history_minutes must be >= 1")
		}
		if c.Bootstrap.Concurrency < 1 {
			errs = append(errs, "bootstrap: concurrency must be >= 1")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
