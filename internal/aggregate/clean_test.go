package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

func TestCleanBarsFillsMissingRows(t *testing.T) {
	bars := domain.Dataset{
		{Symbol: "BTC", Time: t0, Open: 99, High: 101, Low: 98, Close: 100, BaseVolume: 3, RollingBaseVolume: 30},
		{Symbol: "ETH", Time: t0, Open: 10, High: 11, Low: 9, Close: 10, BaseVolume: 1, RollingBaseVolume: 10},
		{Symbol: "ETH", Time: t0.Add(time.Minute), Open: 10, High: math.NaN(), Low: 9, Close: math.NaN(), BaseVolume: math.NaN(), RollingBaseVolume: math.NaN()},
		{Symbol: "BTC", Time: t0.Add(2 * time.Minute), Open: 102, High: 103, Low: 101, Close: 102, BaseVolume: 2, RollingBaseVolume: 32},
		{Symbol: "ETH", Time: t0.Add(2 * time.Minute), Open: 11, High: 12, Low: 10, Close: 12, BaseVolume: 2, RollingBaseVolume: 12},
	}
	out := CleanBars(bars)
	require.Len(t, out, 6)

	series := out.BySymbol()
	gap := series["BTC"][1]
	assert.Equal(t, t0.Add(time.Minute), gap.Time)
	assert.Equal(t, 100.0, gap.Open)
	assert.Equal(t, 100.0, gap.Close)
	assert.Equal(t, 100.0, gap.High)
	assert.Equal(t, 100.0, gap.Low)
	assert.Zero(t, gap.BaseVolume)
	assert.Equal(t, 30.0, gap.RollingBaseVolume)

	eth := series["ETH"][1]
	assert.Equal(t, 10.0, eth.Close)
	assert.Equal(t, 10.0, eth.High)
	assert.Zero(t, eth.BaseVolume)
	assert.Equal(t, 10.0, eth.RollingBaseVolume)

	for _, b := range out {
		assert.False(t, math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close), b.Symbol)
		assert.GreaterOrEqual(t, b.High, math.Max(b.Open, b.Close))
		assert.LessOrEqual(t, b.Low, math.Min(b.Open, b.Close))
	}
}

func TestCleanBarsBackfillsLeadingGap(t *testing.T) {
	bars := domain.Dataset{
		{Symbol: "BTC", Time: t0, Open: 1, High: 1, Low: 1, Close: 1},
		{Symbol: "ETH", Time: t0.Add(time.Minute), Open: 7, High: 8, Low: 6, Close: 8, RollingBaseVolume: 4},
		{Symbol: "BTC", Time: t0.Add(time.Minute), Open: 1, High: 1, Low: 1, Close: 1},
	}
	out := CleanBars(bars)
	lead := out.BySymbol()["ETH"][0]
	assert.Equal(t, t0, lead.Time)
	assert.Equal(t, 7.0, lead.Open)
	assert.Equal(t, 7.0, lead.Close)
	assert.Equal(t, 4.0, lead.RollingBaseVolume)

	assert.Nil(t, CleanBars(nil))
}

func seriesAt(offsets ...time.Duration) []domain.Bar {
	out := make([]domain.Bar, len(offsets))
	for i, off := range offsets {
		out[i] = domain.Bar{Symbol: "BTC", Time: t0.Add(off), Close: float64(i)}
	}
	return out
}

func TestFixFrequencyRespacesChangedStep(t *testing.T) {
	in := seriesAt(0, 30*time.Minute, 60*time.Minute, 120*time.Minute, 180*time.Minute, 240*time.Minute)
	out := FixFrequency(in)
	require.Len(t, out, len(in))
	for i, b := range out {
		assert.Equal(t, t0.Add(time.Duration(i-1)*time.Hour), b.Time, "bar %d", i)
		assert.Equal(t, float64(i), b.Close)
	}
	assert.Equal(t, t0, in[0].Time)
}

func TestFixFrequencyLeavesRegularSeries(t *testing.T) {
	regular := seriesAt(0, time.Hour, 2*time.Hour, 3*time.Hour, 4*time.Hour, 5*time.Hour)
	assert.Equal(t, regular, FixFrequency(regular))

	short := seriesAt(0, time.Minute, 3*time.Minute, 10*time.Minute)
	assert.Equal(t, short, FixFrequency(short))
}

func TestFilterMovers(t *testing.T) {
	bar := func(sym string, at time.Duration, pct, rolling float64) domain.Bar {
		return domain.Bar{Symbol: sym, Time: t0.Add(at), Close: 1, PriceChangePercent: pct, RollingBaseVolume: rolling, Count: 5000}
	}
	snaps := domain.Dataset{
		bar("BTC", 0, 1, 100), bar("BTC", 5*time.Second, 8, 110),
		bar("ETH", 0, 2, 100), bar("ETH", 5*time.Second, 3, 200),
		bar("XRP", 0, 0, 100), bar("XRP", 5*time.Second, -6, 150),
		bar("DOGE", 0, 5, 100), bar("DOGE", 5*time.Second, 5, 300),
		bar("ADA", 0, 1, 0), bar("ADA", 5*time.Second, 9, 100),
		bar("SOL", 5*time.Second, 20, 100),
	}

	got := FilterMovers(snaps, DefaultMoverThresholds())
	require.Equal(t, []string{"XRP", "BTC"}, got.Symbols())
	assert.InDelta(t, 50.0, got[0].LastVolumeMove, 1e-9)
	assert.InDelta(t, 6.0, got[0].LastPriceMove, 1e-9)
	assert.Equal(t, t0.Add(5*time.Second), got[0].Time)

	th := DefaultMoverThresholds()
	th.Count = 1
	assert.Equal(t, []string{"BTC"}, FilterMovers(snaps, th).Symbols())

	th = DefaultMoverThresholds()
	th.VolumePercent = 20
	assert.Equal(t, []string{"XRP"}, FilterMovers(snaps, th).Symbols())
}
