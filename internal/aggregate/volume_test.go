package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

func minuteSeries(sym string, rolling, incremental []float64) domain.Dataset {
	out := make(domain.Dataset, len(rolling))
	for i := range rolling {
		out[i] = domain.Bar{
			Symbol:             sym,
			Time:               t0.Add(time.Duration(i) * time.Minute),
			Close:              1,
			BaseVolume:         incremental[i],
			QuoteVolume:        2 * incremental[i],
			RollingBaseVolume:  rolling[i],
			RollingQuoteVolume: 2 * rolling[i],
		}
	}
	return out
}

func TestReconcileVolumesScenario(t *testing.T) {
	rolling := []float64{100, 100, 102, 105, 107, 110}
	incremental := []float64{1, 3, 0, 0, -1, -1}
	const window = 4

	out := ReconcileVolumes(minuteSeries("BTC", rolling, incremental), window, 2)
	require.Len(t, out, 6)

	// Untouched outside the tail.
	assert.Equal(t, 0.0, out[3].BaseVolume)
	// 107 - 105 + incremental[0]
	assert.Equal(t, 3.0, out[4].BaseVolume)
	// 110 - 107 + incremental[1]
	assert.Equal(t, 6.0, out[5].BaseVolume)
	assert.Equal(t, 12.0, out[5].QuoteVolume)
}

func TestReconcileVolumesMatchesRollingWindow(t *testing.T) {
	const n = RollingWindow + 60
	incremental := make([]float64, n)
	rolling := make([]float64, n)
	for i := range incremental {
		incremental[i] = float64((i*7)%13) + 0.5
	}
	for i := range rolling {
		for k := i - RollingWindow + 1; k <= i; k++ {
			if k >= 0 {
				rolling[i] += incremental[k]
			}
		}
	}

	stale := append([]float64(nil), incremental...)
	stale[n-1], stale[n-2] = 999, -999
	bars := minuteSeries("ETH", rolling, stale)

	out := ReconcileVolumes(bars, RollingWindow, 2)
	assert.InDelta(t, incremental[n-1], out[n-1].BaseVolume, 1e-6)
	assert.InDelta(t, incremental[n-2], out[n-2].BaseVolume, 1e-6)
	assert.Equal(t, 999.0, bars[n-1].BaseVolume, "input must not be modified")

	var sum float64
	for _, b := range out[n-RollingWindow:] {
		sum += b.BaseVolume
	}
	assert.InEpsilon(t, rolling[n-1], sum, 1e-6)
}

func TestReconcileVolumesPerSymbol(t *testing.T) {
	a := minuteSeries("BTC", []float64{10, 12, 15}, []float64{0, 0, 0})
	b := minuteSeries("ETH", []float64{5, 5, 9}, []float64{0, 0, 0})
	var mixed domain.Dataset
	for i := range a {
		mixed = append(mixed, a[i], b[i])
	}
	out := ReconcileVolumes(mixed, RollingWindow, 2)

	series := out.BySymbol()
	assert.Equal(t, 2.0, series["BTC"][1].BaseVolume)
	assert.Equal(t, 3.0, series["BTC"][2].BaseVolume)
	assert.Equal(t, 0.0, series["ETH"][1].BaseVolume)
	assert.Equal(t, 4.0, series["ETH"][2].BaseVolume)
}

func TestAddRollingVolumes(t *testing.T) {
	bars := minuteSeries("BTC", make([]float64, 4), []float64{1, 2, 3, 4})
	out := AddRollingVolumes(bars, 2*time.Minute)

	want := []float64{1, 3, 5, 7}
	for i, b := range out {
		assert.Equal(t, want[i], b.RollingBaseVolume, "bar %d", i)
		assert.Equal(t, 2*want[i], b.RollingQuoteVolume, "bar %d", i)
	}
	assert.Zero(t, bars[3].RollingBaseVolume)

	same := AddRollingVolumes(bars, 0)
	assert.Equal(t, bars, same)
}
