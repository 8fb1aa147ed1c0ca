package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
	"github.com/alanyoungcy/cryptobot/internal/graph"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPairs() []domain.Pair {
	return []domain.Pair{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", TickSize: 0.01, StepSize: 0.00001},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", TickSize: 0.00001, StepSize: 0.0001},
	}
}

func testPaths() domain.PathCache {
	paths := domain.PathCache{}
	paths.Store(domain.PriorityAccuracy, "BTC", "USDT", []domain.Hop{{Base: "BTC", Quote: "USDT"}})
	paths.Store(domain.PriorityAccuracy, "ETH", "USDT", []domain.Hop{{Base: "ETH", Quote: "BTC"}, {Base: "BTC", Quote: "USDT"}})
	return paths
}

// testTickers returns one ticker round; seq advances the trade counts so
// consecutive rounds are distinct snapshots.
func testTickers(at time.Time, seq int64) []domain.Ticker {
	return []domain.Ticker{
		{
			Symbol: "BTCUSDT", Open: 40000, High: 51000, Low: 39000, Close: 50000,
			BidPrice: 49990, AskPrice: 50010, BidVolume: 2, AskVolume: 3,
			RollingBaseVolume: 100, RollingQuoteVolume: 5e6, Count: 10 + seq, PriceChangePercent: 25, Date: at,
		},
		{
			Symbol: "ETHBTC", Open: 0.07, High: 0.08, Low: 0.06, Close: 0.07,
			BidPrice: 0.0699, AskPrice: 0.0701, BidVolume: 10, AskVolume: 10,
			RollingBaseVolume: 1000, RollingQuoteVolume: 70, Count: 20 + seq, Date: at.Add(time.Second),
		},
	}
}

type fakeTickers struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTickers) Tickers(context.Context) ([]domain.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return testTickers(t0.Add(time.Duration(f.calls)*5*time.Second), int64(f.calls)), nil
}

func (f *fakeTickers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePrices struct {
	domain.PriceCache
	prices map[string]float64
}

func (f *fakePrices) SetPrices(_ context.Context, prices map[string]float64, _ time.Time) error {
	f.prices = prices
	return nil
}

func newLogger(t *testing.T, src domain.TickerSource, opts ...LoggerOption) (*MarketLogger, Buffers, string) {
	t.Helper()
	dir := t.TempDir()
	buffers, err := NewBuffers(dir, testLogger())
	require.NoError(t, err)
	l := NewMarketLogger(src, testPairs(), graph.ReadyPathCell(testPaths()), conversion.DetailExtraMinimal, buffers, testLogger(), opts...)
	return l, buffers, dir
}

func TestCycleFillsBuffersAndLogs(t *testing.T) {
	prices := &fakePrices{}
	var published [][]byte
	l, buffers, dir := newLogger(t, &fakeTickers{},
		WithPriceCache(prices),
		WithScreenedPublisher(func(_ context.Context, payload []byte) error {
			published = append(published, payload)
			return nil
		}),
	)

	// The first round only fills the oldest 5s bucket, which bar buffers
	// drop as partial.
	require.NoError(t, l.Cycle(context.Background()))
	assert.Empty(t, buffers.Five.Dataset())
	require.NoError(t, l.Cycle(context.Background()))

	assert.ElementsMatch(t, []string{"BTC", "ETH"}, buffers.Input.Dataset().Symbols())
	assert.NotEmpty(t, buffers.Five.Dataset())
	assert.NotEmpty(t, buffers.Minute.Dataset())
	assert.InDelta(t, 50000, prices.prices["BTC"], 1e-6)
	assert.InDelta(t, 3500, prices.prices["ETH"], 1e-6)

	for _, name := range []string{"crypto_input_log_5s.txt", "crypto_output_log_5s.txt", "crypto_output_log_1min.txt"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	assert.Len(t, published, 1)
}

func TestCycleKeepsDataWhenTickersFail(t *testing.T) {
	src := &fakeTickers{}
	l, buffers, _ := newLogger(t, src)
	require.NoError(t, l.Cycle(context.Background()))
	require.NoError(t, l.Cycle(context.Background()))
	before := buffers.Input.Dataset()
	live := buffers.Input.Live()
	screened := buffers.Five.Screened()
	minute := buffers.Minute.Dataset()
	require.NotNil(t, live)

	src.err = domain.NewExchangeError(domain.KindRateLimited, -1003, 429, "slow down")
	require.NoError(t, l.Cycle(context.Background()))
	assert.Equal(t, before, buffers.Input.Dataset())
	assert.Equal(t, live, buffers.Input.Live())
	assert.Equal(t, screened, buffers.Five.Screened())
	assert.Equal(t, minute, buffers.Minute.Dataset())
}

type pendingPaths struct{}

func (pendingPaths) Wait(ctx context.Context) (domain.PathCache, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCycleWaitsForPaths(t *testing.T) {
	buffers, err := NewBuffers(t.TempDir(), testLogger())
	require.NoError(t, err)
	l := NewMarketLogger(&fakeTickers{}, testPairs(), pendingPaths{}, conversion.DetailExtraMinimal, buffers, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = l.Cycle(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunDrainsOnCancel(t *testing.T) {
	src := &fakeTickers{}
	l, _, _ := newLogger(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return src.count() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 2, src.count())
}

func TestRunStopsCleanlyBeforePathsReady(t *testing.T) {
	src := &fakeTickers{}
	buffers, err := NewBuffers(t.TempDir(), testLogger())
	require.NoError(t, err)
	l := NewMarketLogger(src, testPairs(), pendingPaths{}, conversion.DetailExtraMinimal, buffers, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, time.Hour) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Zero(t, src.count())
}

func TestLoadRestoresLoggedBuffers(t *testing.T) {
	l, _, dir := newLogger(t, &fakeTickers{})
	require.NoError(t, l.Cycle(context.Background()))

	restored, err := NewBuffers(dir, testLogger())
	require.NoError(t, err)
	l2 := NewMarketLogger(&fakeTickers{}, testPairs(), graph.ReadyPathCell(testPaths()), conversion.DetailExtraMinimal, restored, testLogger())
	l2.Load(context.Background())
	assert.ElementsMatch(t, []string{"BTC", "ETH"}, restored.Input.Dataset().Symbols())
}

type fakeBootstrapExchange struct {
	mu          sync.Mutex
	klineCalls  map[string]int
	rateLimited bool
}

func (f *fakeBootstrapExchange) ExchangeInfo(context.Context) ([]domain.Pair, error) {
	return testPairs(), nil
}

func (f *fakeBootstrapExchange) Tickers(context.Context) ([]domain.Ticker, error) {
	return testTickers(t0, 0), nil
}

func (f *fakeBootstrapExchange) Klines(_ context.Context, symbol string, interval time.Duration, limit int, end time.Time) ([]domain.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.klineCalls == nil {
		f.klineCalls = make(map[string]int)
	}
	f.klineCalls[symbol]++
	if f.rateLimited && f.klineCalls[symbol] == 1 {
		return nil, domain.NewExchangeError(domain.KindRateLimited, -1003, 429, "slow down")
	}
	bars := make([]domain.Bar, 0, 30)
	for i := range 30 {
		bars = append(bars, domain.Bar{
			Symbol: symbol, Time: t0.Add(time.Duration(i) * interval),
			Open: 0.07, High: 0.07, Low: 0.07, Close: 0.07,
			BaseVolume: 1, QuoteVolume: 0.07,
		})
	}
	return bars, nil
}

func TestBootstrapSeedsBuffers(t *testing.T) {
	dir := t.TempDir()
	buffers, err := NewBuffers(dir, testLogger())
	require.NoError(t, err)
	ex := &fakeBootstrapExchange{rateLimited: true}

	b := NewBootstrapper(BootstrapConfig{
		PathCacheFile: filepath.Join(dir, "paths.json"),
		Symbols:       []string{"ETH", "DOGE"},
		Level:         conversion.DetailExtraMinimal,
	}, ex, buffers, testLogger(), WithBackoff(time.Millisecond))
	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, 2, ex.klineCalls["ETHBTC"])
	minute := buffers.Minute.Dataset()
	require.Len(t, minute, 30)
	for _, bar := range minute {
		assert.Equal(t, "ETH", bar.Symbol)
		assert.InDelta(t, 3500, bar.Close, 1e-6)
	}
	assert.InDelta(t, 30, minute[len(minute)-1].RollingBaseVolume, 1e-9)
	assert.NotEmpty(t, buffers.Five.Dataset())

	_, err = os.Stat(filepath.Join(dir, "paths.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "crypto_output_log_1min.txt"))
	assert.NoError(t, err)
}

func TestBootstrapWithoutHistoryFails(t *testing.T) {
	dir := t.TempDir()
	buffers, err := NewBuffers(dir, testLogger())
	require.NoError(t, err)

	b := NewBootstrapper(BootstrapConfig{
		PathCacheFile: filepath.Join(dir, "paths.json"),
		Symbols:       []string{"DOGE"},
	}, &fakeBootstrapExchange{}, buffers, testLogger())
	err = b.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestAssetBarsUseQuoteRate(t *testing.T) {
	row := domain.PairRow{Ticker: domain.Ticker{Symbol: "ETHBTC", Close: 0.07}, USDTPrice: 3500}
	out := assetBars("ETH", row, []domain.Bar{{Symbol: "ETHBTC", Close: 0.07, BaseVolume: 2, QuoteVolume: 0.14}})
	require.Len(t, out, 1)
	assert.Equal(t, "ETH", out[0].Symbol)
	assert.InDelta(t, 3500, out[0].Close, 1e-9)
	assert.InDelta(t, 2, out[0].BaseVolume, 1e-12)
	assert.InDelta(t, 7000, out[0].QuoteVolume, 1e-9)
}

type fakeArchive struct {
	archived int64
	err      error
	cutoff   time.Time
}

func (f *fakeArchive) ArchiveFills(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.archived, f.err
}

type fakePruner struct{ calls int }

func (f *fakePruner) DeleteBefore(context.Context, time.Time) (int64, error) {
	f.calls++
	return 3, nil
}

func TestArchiverRun(t *testing.T) {
	arch := &fakeArchive{archived: 3}
	pruner := &fakePruner{}
	a := NewArchiver(arch, pruner, 30*24*time.Hour, testLogger())
	a.now = func() time.Time { return t0 }

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, t0.Add(-30*24*time.Hour), arch.cutoff)
	assert.Equal(t, 1, pruner.calls)

	arch.archived = 0
	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, 1, pruner.calls)

	arch.err = errors.New("s3 down")
	assert.Error(t, a.Run(context.Background()))
}

func TestNextCronTime(t *testing.T) {
	tests := []struct {
		expr  string
		after time.Time
		want  time.Time
	}{
		{"0 3 * * *", t0, time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)},
		{"30 12 * * *", t0, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", t0, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"0,15 * * * *", t0.Add(time.Minute), time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := nextCronTime(tc.expr, tc.after)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}

	_, err := nextCronTime("* * *", t0)
	assert.Error(t, err)
	_, err = nextCronTime("x * * * *", t0)
	assert.Error(t, err)
}
