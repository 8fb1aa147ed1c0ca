package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func snap(sym string, at time.Duration, close, rolling float64, count int64) domain.Bar {
	return domain.Bar{
		Symbol: sym, Time: t0.Add(at),
		Open: close, High: close, Low: close, Close: close,
		BaseVolume: 1, QuoteVolume: close,
		RollingBaseVolume: rolling, RollingQuoteVolume: rolling * close,
		Count: count,
	}
}

func TestResampleAggregatesBuckets(t *testing.T) {
	bars := domain.Dataset{
		snap("BTC", 0, 100, 10, 1),
		snap("BTC", 20*time.Second, 105, 11, 2),
		snap("BTC", 25*time.Second, 95, 12, 3),
		snap("BTC", 29*time.Second, 101, 13, 4),
	}
	out := Resample(bars, time.Minute)
	require.Len(t, out, 1)

	b := out[0]
	assert.Equal(t, t0, b.Time)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 105.0, b.High)
	assert.Equal(t, 95.0, b.Low)
	assert.Equal(t, 101.0, b.Close)
	assert.Equal(t, 4.0, b.BaseVolume)
	assert.Equal(t, 13.0, b.RollingBaseVolume)
	assert.Equal(t, int64(4), b.Count)
}

func TestResampleLaterRowsWinInsideBucket(t *testing.T) {
	prev := snap("BTC", time.Minute, 101, 11, 2)
	prev.High = 101
	bars := domain.Dataset{
		prev,
		snap("BTC", 45*time.Second, 110, 12, 3),
		snap("BTC", 50*time.Second, 120, 13, 4),
	}
	out := Resample(bars, time.Minute)
	require.Len(t, out, 1)

	b := out[0]
	assert.Equal(t, t0.Add(time.Minute), b.Time)
	assert.Equal(t, 101.0, b.Open)
	assert.Equal(t, 120.0, b.High)
	assert.Equal(t, 120.0, b.Close)
	assert.Equal(t, 13.0, b.RollingBaseVolume)
	assert.Equal(t, int64(4), b.Count)
}

func TestRoundTimeTiesToEven(t *testing.T) {
	// t0 is an even number of minutes since the epoch.
	assert.Equal(t, t0, RoundTime(t0.Add(30*time.Second), time.Minute))
	assert.Equal(t, t0.Add(2*time.Minute), RoundTime(t0.Add(90*time.Second), time.Minute))
	assert.Equal(t, t0.Add(time.Minute), RoundTime(t0.Add(31*time.Second), time.Minute))
	assert.Equal(t, t0, RoundTime(t0.Add(29*time.Second), time.Minute))
	assert.Equal(t, t0.Add(10*time.Second), RoundTime(t0.Add(12500*time.Millisecond), 5*time.Second))

	before := time.Unix(-90, 0).UTC()
	assert.Equal(t, time.Unix(-120, 0).UTC(), RoundTime(before, time.Minute))
}

func TestResampleSubMinuteKeepsLastVolume(t *testing.T) {
	bars := domain.Dataset{
		snap("BTC", 0, 100, 10, 1),
		snap("BTC", 1*time.Second, 101, 11, 2),
	}
	bars[1].BaseVolume = 7
	out := Resample(bars, 5*time.Second)
	require.Len(t, out, 1)
	assert.Equal(t, 7.0, out[0].BaseVolume)
}

func TestResampleDailySumsRolling(t *testing.T) {
	bars := domain.Dataset{
		snap("BTC", 0, 100, 10, 1),
		snap("BTC", time.Hour, 101, 11, 2),
	}
	out := Resample(bars, Day)
	require.Len(t, out, 1)
	assert.Equal(t, 21.0, out[0].RollingBaseVolume)
}

func TestResampleFillsGaps(t *testing.T) {
	bars := domain.Dataset{
		snap("BTC", 0, 100, 10, 1),
		snap("ETH", 0, 10, 5, 1),
		snap("ETH", time.Minute, 11, 6, 2),
		snap("BTC", 2*time.Minute, 102, 12, 3),
		snap("ETH", 2*time.Minute, 12, 7, 3),
		snap("XRP", 2*time.Minute, 1, 1, 1),
	}
	out := Resample(bars, time.Minute)
	require.Len(t, out, 9)

	series := out.BySymbol()
	btcGap := series["BTC"][1]
	assert.Equal(t, t0.Add(time.Minute), btcGap.Time)
	assert.Equal(t, 100.0, btcGap.Close)
	assert.Equal(t, 10.0, btcGap.RollingBaseVolume)
	assert.Zero(t, btcGap.BaseVolume)

	xrpLead := series["XRP"][0]
	assert.Equal(t, t0, xrpLead.Time)
	assert.Equal(t, 1.0, xrpLead.Close)
	assert.Zero(t, xrpLead.QuoteVolume)
}

func TestResampleIdempotentOnAlignedData(t *testing.T) {
	var bars domain.Dataset
	for i := 0; i < 30; i++ {
		at := time.Duration(i) * 10 * time.Second
		bars = append(bars, snap("BTC", at, 100+float64(i%7), 10+float64(i), int64(i)))
		if i%3 != 0 {
			bars = append(bars, snap("ETH", at, 10+float64(i%5), 5+float64(i), int64(i)))
		}
	}
	once := Resample(bars, time.Minute)
	twice := Resample(once, time.Minute)
	assert.Equal(t, once, twice)
}

func TestFromSnapshotsDropsOldestBucket(t *testing.T) {
	snaps := domain.Dataset{
		snap("BTC", 0, 100, 10, 1),
		snap("BTC", 5*time.Second, 101, 11, 2),
		snap("BTC", 5*time.Second, 99, 12, 3),
		snap("BTC", 10*time.Second, 103, 11, 4),
	}
	out := FromSnapshots(snaps, 5*time.Second)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, t0.Add(5*time.Second), first.Time)
	assert.Equal(t, 101.0, first.Open)
	assert.Equal(t, 101.0, first.High)
	assert.Equal(t, 99.0, first.Low)
	assert.Equal(t, 99.0, first.Close)
	assert.Equal(t, 12.0, first.RollingBaseVolume)
	assert.Equal(t, 12.0, first.BaseVolume)

	assert.Equal(t, 103.0, out[1].Close)
	assert.Nil(t, FromSnapshots(domain.Dataset{snap("BTC", 0, 1, 1, 1)}, 5*time.Second))
}

func TestParseAndFormatInterval(t *testing.T) {
	cases := map[string]time.Duration{
		"5s":    5 * time.Second,
		"1min":  time.Minute,
		"30min": 30 * time.Minute,
		"1h":    time.Hour,
		"1d":    Day,
	}
	for s, want := range cases {
		got, err := ParseInterval(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
		assert.Equal(t, s, FormatInterval(got))
	}
	_, err := ParseInterval("0min")
	assert.Error(t, err)
	_, err = ParseInterval("soon")
	assert.Error(t, err)
}
