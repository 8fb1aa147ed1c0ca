package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTickerFeedMergesBatches(t *testing.T) {
	f := NewTickerFeed("", 0, discardLogger())

	_, err := f.Tickers(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoData)

	f.Apply([]domain.Ticker{
		{Symbol: "ETHUSDT", Close: 3500, Date: t0},
		{Symbol: "BTCUSDT", Close: 50000, Date: t0},
	})
	f.Apply([]domain.Ticker{
		{Symbol: "BTCUSDT", Close: 50100, Date: t0.Add(time.Second)},
		{Symbol: "ETHUSDT", Close: 3400, Date: t0.Add(-time.Second)},
	})

	tickers, err := f.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 2)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, 50100.0, tickers[0].Close)
	assert.Equal(t, 3500.0, tickers[1].Close)
}

func TestTickerFeedStale(t *testing.T) {
	f := NewTickerFeed("", time.Minute, discardLogger())
	f.Apply([]domain.Ticker{{Symbol: "BTCUSDT", Date: t0}})
	_, err := f.Tickers(context.Background())
	require.NoError(t, err)

	f.updated = time.Now().Add(-2 * time.Minute)
	_, err = f.Tickers(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestTickerFeedRunStopsOnClose(t *testing.T) {
	f := NewTickerFeed("ws://127.0.0.1:1/unreachable", 0, discardLogger())
	f.Close()
	assert.NoError(t, f.Run(context.Background()))
}

type fakeBus struct {
	ch     chan []byte
	stream [][]byte
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.ch <- payload
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return b.ch, nil }

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.stream = append(b.stream, payload)
	return nil
}

func (b *fakeBus) StreamLatest(context.Context, string) (*domain.StreamMessage, error) {
	if len(b.stream) == 0 {
		return nil, domain.ErrNotFound
	}
	return &domain.StreamMessage{ID: "1-0", Payload: b.stream[len(b.stream)-1]}, nil
}

type staticSource struct{ data []byte }

func (s staticSource) Fetch(context.Context, string) ([]byte, error) { return s.data, nil }

func TestScreenedFeedServesLatest(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte)}
	f := NewScreenedFeed(bus, staticSource{data: []byte("from-file")}, discardLogger())

	data, err := f.Fetch(context.Background(), "screened.txt")
	require.NoError(t, err)
	assert.Equal(t, "from-file", string(data))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.NoError(t, bus.Publish(ctx, ScreenedChannel, []byte("first")))
	require.NoError(t, bus.Publish(ctx, ScreenedChannel, []byte("second")))
	// the unbuffered channel guarantees "first" was stored; "second" may
	// still be in flight
	assert.Eventually(t, func() bool {
		data, _ := f.Fetch(context.Background(), "")
		return string(data) == "second"
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestScreenedFeedSeedsFromStream(t *testing.T) {
	bus := &fakeBus{ch: make(chan []byte, 1)}
	// Publish fills the channel and the stream; drain the channel so the
	// feed only sees the stream copy.
	require.NoError(t, Publish(context.Background(), bus, []byte("stored")))
	<-bus.ch

	f := NewScreenedFeed(bus, nil, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.Run(ctx)

	assert.Eventually(t, func() bool {
		data, err := f.Fetch(context.Background(), "")
		return err == nil && string(data) == "stored"
	}, time.Second, time.Millisecond)
}

func TestScreenedFeedWithoutFallback(t *testing.T) {
	f := NewScreenedFeed(&fakeBus{ch: make(chan []byte)}, nil, discardLogger())
	_, err := f.Fetch(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
