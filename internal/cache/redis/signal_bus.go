package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// streamMaxLen caps streams via XADD MAXLEN ~. At one screened set per
// minute this keeps about a week.
const streamMaxLen int64 = 10000

// SignalBus carries screened sets from the logger to traders: pub/sub for
// live delivery and a capped stream so a starting trader can catch up.
// Channel and stream names are namespaced by the client's key prefix.
type SignalBus struct {
	rdb *redis.Client
	ns  namespace
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb, ns: c.ns}
}

// Publish sends payload to subscribers of channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, sb.ns.key(channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers channel's payloads until ctx is cancelled, then
// closes the returned channel. Slow readers apply back-pressure.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	pubsub := sb.rdb.Subscribe(ctx, sb.ns.key(channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend adds payload to stream, trimming old entries.
func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.ns.key(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamLatest returns the newest entry of a stream, or domain.ErrNotFound
// when the stream is empty or missing.
func (sb *SignalBus) StreamLatest(ctx context.Context, stream string) (*domain.StreamMessage, error) {
	msgs, err := sb.rdb.XRevRangeN(ctx, sb.ns.key(stream), "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: stream latest %s: %w", stream, err)
	}
	for _, msg := range msgs {
		if m, ok := toStreamMessage(msg); ok {
			return &m, nil
		}
	}
	return nil, fmt.Errorf("redis: stream latest %s: %w", stream, domain.ErrNotFound)
}

func toStreamMessage(msg redis.XMessage) (domain.StreamMessage, bool) {
	switch v := msg.Values["payload"].(type) {
	case string:
		return domain.StreamMessage{ID: msg.ID, Payload: []byte(v)}, true
	case []byte:
		return domain.StreamMessage{ID: msg.ID, Payload: v}, true
	default:
		return domain.StreamMessage{}, false
	}
}

var _ domain.SignalBus = (*SignalBus)(nil)
