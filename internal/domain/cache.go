package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest USDT price per asset.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	SetPrices(ctx context.Context, prices map[string]float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
	GetPrices(ctx context.Context, assets []string) (map[string]float64, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter meters weighted requests against a shared budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string, weight int) (bool, error)
	Wait(ctx context.Context, key string, weight int) error
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamLatest(ctx context.Context, stream string) (*StreamMessage, error)
}
