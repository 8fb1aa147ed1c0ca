package screener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// series builds n bars spaced by step with distinct closes and rolling
// volume growing by growth per bar.
func series(sym string, n int, step time.Duration, rolling, growth float64) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		out[i] = domain.Bar{
			Symbol:            sym,
			Time:              t0.Add(time.Duration(i) * step),
			Close:             100 + float64(i),
			RollingBaseVolume: rolling + growth*float64(i),
		}
	}
	return out
}

func TestFilterKeepsAppearanceOrder(t *testing.T) {
	var ds domain.Dataset
	for _, sym := range []string{"ETH", "BTC", "XRP", "ADA"} {
		ds = append(ds, series(sym, 3, time.Minute, 1, 1)...)
	}
	pred := func(symbol string, bars []domain.Bar) bool {
		return symbol != "XRP" && len(bars) == 3
	}
	got, err := Filter(context.Background(), pred, ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "BTC", "ADA"}, got)
}

func TestFilterSortsSeries(t *testing.T) {
	bars := series("BTC", 3, time.Minute, 1, 1)
	ds := domain.Dataset{bars[2], bars[0], bars[1]}
	var seen []domain.Bar
	_, err := Filter(context.Background(), func(_ string, b []domain.Bar) bool {
		seen = b
		return true
	}, ds)
	require.NoError(t, err)
	assert.Equal(t, bars, seen)
}

func TestFilterErrors(t *testing.T) {
	_, err := Filter(context.Background(), nil, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Filter(ctx, Always, domain.Dataset(series("BTC", 2, time.Minute, 1, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIntersect(t *testing.T) {
	down := []string{"BTC", "ETH", "XRP", "BTC"}
	assert.Equal(t, []string{"BTC", "XRP"}, Intersect(down, []string{"XRP", "BTC"}, nil))
	assert.Equal(t, []string{"XRP"}, Intersect(down, []string{"XRP", "BTC"}, []string{"XRP"}))
	assert.Empty(t, Intersect(down, []string{"BTC"}, []string{}))
}

func TestRisingVolume(t *testing.T) {
	assert.True(t, RisingVolume("", series("BTC", 2, time.Minute, 10, 1)))
	assert.False(t, RisingVolume("", series("BTC", 2, time.Minute, 10, 0)))
	assert.False(t, RisingVolume("", series("BTC", 1, time.Minute, 10, 1)))

	// per-bar volume is ignored at every interval
	hourly := series("BTC", 2, time.Hour, 10, 1)
	hourly[0].BaseVolume, hourly[1].BaseVolume = 5, 1
	assert.True(t, RisingVolume("", hourly))
}

func TestMinuteMomentum(t *testing.T) {
	assert.True(t, MinuteMomentum("", series("BTC", dailyLag+1, time.Minute, 2e6, 1)))
	assert.False(t, MinuteMomentum("", series("BTC", dailyLag, time.Minute, 2e6, 1)), "needs a full day")
	assert.False(t, MinuteMomentum("", series("BTC", dailyLag+1, time.Minute, 1e3, 1)), "below volume floor")
	assert.False(t, MinuteMomentum("", series("BTC", dailyLag+1, time.Minute, 3e6, -1)), "volume fell")
}

func TestNotSquareWave(t *testing.T) {
	assert.True(t, NotSquareWave("", series("BTC", 60, time.Minute, 1, 1)))

	flat := series("BTC", 10, time.Minute, 1, 1)
	for i := range flat {
		flat[i].Close = float64(100 + i%2)
	}
	assert.False(t, NotSquareWave("", flat))
	assert.True(t, NotSquareWave("", flat[:4]), "too short to judge")
}

func TestByFrequency(t *testing.T) {
	fast := series("BTC", 20, 5*time.Second, 10, 0)
	assert.True(t, ByFrequency("BTC", fast))

	hourly := series("BTC", 20, time.Hour, 10, 1)
	assert.True(t, ByFrequency("BTC", hourly))
	assert.False(t, ByFrequency("BTC", series("BTC", 20, time.Hour, 10, -0.1)))

	minute := series("BTC", dailyLag+1, time.Minute, 2e6, 1)
	assert.True(t, ByFrequency("BTC", minute))
	assert.False(t, ByFrequency("BTC", minute[:100]))

	daily := series("BTC", 20, 24*time.Hour, 10, -1)
	assert.True(t, ByFrequency("BTC", daily))
}

func TestAll(t *testing.T) {
	never := func(string, []domain.Bar) bool { return false }
	assert.True(t, All(Always, Always)("", nil))
	assert.False(t, All(Always, never)("", nil))
	assert.Equal(t, time.Duration(0), Step(nil))
}
