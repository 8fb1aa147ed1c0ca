package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// ScreenedChannel is the signal bus channel the logger publishes each
// screened set to, as CSV. ScreenedStream keeps the same payloads durably.
const (
	ScreenedChannel = "screened"
	ScreenedStream  = "screened_history"
)

// ScreenedFeed subscribes to the screened channel and serves the latest
// payload as a domain.RemoteSource. Before the first message it falls back
// to the wrapped source, if any.
type ScreenedFeed struct {
	bus      domain.SignalBus
	fallback domain.RemoteSource
	logger   *slog.Logger

	mu     sync.RWMutex
	latest []byte
}

// NewScreenedFeed creates a ScreenedFeed. fallback may be nil.
func NewScreenedFeed(bus domain.SignalBus, fallback domain.RemoteSource, logger *slog.Logger) *ScreenedFeed {
	return &ScreenedFeed{
		bus:      bus,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "screened_feed")),
	}
}

// Run seeds the latest set from the durable stream, then subscribes and
// stores every payload until ctx is cancelled.
func (f *ScreenedFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, ScreenedChannel)
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", ScreenedChannel, err)
	}
	if msg, err := f.bus.StreamLatest(ctx, ScreenedStream); err == nil {
		f.store(msg.Payload)
	} else if !errors.Is(err, domain.ErrNotFound) {
		f.logger.Warn("screened history unavailable", slog.String("error", err.Error()))
	}
	f.logger.Info("screened feed started")
	defer f.logger.Info("screened feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			f.store(data)
			f.logger.Debug("screened set received", slog.Int("payload_len", len(data)))
		}
	}
}

func (f *ScreenedFeed) store(data []byte) {
	f.mu.Lock()
	f.latest = data
	f.mu.Unlock()
}

// Publish sends a screened set to subscribers and appends it to the
// durable stream.
func Publish(ctx context.Context, bus domain.SignalBus, payload []byte) error {
	if err := bus.Publish(ctx, ScreenedChannel, payload); err != nil {
		return err
	}
	return bus.StreamAppend(ctx, ScreenedStream, payload)
}

// Fetch returns the latest published set. The name is only used by the
// fallback source.
func (f *ScreenedFeed) Fetch(ctx context.Context, name string) ([]byte, error) {
	f.mu.RLock()
	latest := f.latest
	f.mu.RUnlock()

	if latest != nil {
		return latest, nil
	}
	if f.fallback != nil {
		return f.fallback.Fetch(ctx, name)
	}
	return nil, fmt.Errorf("feed: no screened set yet: %w", domain.ErrNotFound)
}
