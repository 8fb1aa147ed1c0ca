// Package redis implements the shared cache, lock, rate limit and signal bus
// used between the logger and trader, on go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	KeyPrefix  string // namespaces every key and channel, e.g. "cryptobot"
}

// namespace prefixes keys so several bots can share one server.
type namespace string

func (n namespace) key(parts ...string) string {
	k := strings.Join(parts, ":")
	if n == "" {
		return k
	}
	return string(n) + ":" + k
}

// Client is a connected go-redis client plus its key namespace.
type Client struct {
	rdb *redis.Client
	ns  namespace
}

// New connects and pings the server.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, ns: namespace(strings.TrimSuffix(cfg.KeyPrefix, ":"))}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
