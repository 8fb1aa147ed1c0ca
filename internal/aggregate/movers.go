package aggregate

import (
	"math"
	"sort"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// MoverThresholds select symbols whose latest snapshot moved enough.
type MoverThresholds struct {
	PricePercent  float64
	VolumePercent float64
	Count         int
}

// DefaultMoverThresholds returns the thresholds the logger runs with.
func DefaultMoverThresholds() MoverThresholds {
	return MoverThresholds{PricePercent: 5.0, VolumePercent: 0.0, Count: 1000}
}

type mover struct {
	symbol     string
	priceMove  float64
	volumeMove float64
	latest     domain.Bar
}

// FilterMovers scores each symbol by its last step: the absolute change of
// its 24h price change percent, and the percent change of its rolling base
// volume. Symbols above both thresholds are returned ranked by volume move
// then price move, strongest first. When more than th.Count qualify, only
// the last th.Count of that ranking are kept.
func FilterMovers(snapshots domain.Dataset, th MoverThresholds) domain.ScreenedSet {
	var movers []mover
	for sym, series := range snapshots.BySymbol() {
		if len(series) < 2 {
			continue
		}
		sort.SliceStable(series, func(i, j int) bool { return series[i].Time.Before(series[j].Time) })
		last, prev := series[len(series)-1], series[len(series)-2]

		priceMove := math.Abs(last.PriceChangePercent - prev.PriceChangePercent)
		if !(priceMove > 0) {
			continue
		}
		if prev.RollingBaseVolume == 0 {
			continue
		}
		volumeMove := 100 * (last.RollingBaseVolume - prev.RollingBaseVolume) / prev.RollingBaseVolume
		if priceMove > th.PricePercent && volumeMove > th.VolumePercent {
			movers = append(movers, mover{symbol: sym, priceMove: priceMove, volumeMove: volumeMove, latest: last})
		}
	}

	sort.Slice(movers, func(i, j int) bool {
		if movers[i].volumeMove != movers[j].volumeMove {
			return movers[i].volumeMove > movers[j].volumeMove
		}
		if movers[i].priceMove != movers[j].priceMove {
			return movers[i].priceMove > movers[j].priceMove
		}
		return movers[i].symbol < movers[j].symbol
	})
	if th.Count > 0 && len(movers) > th.Count {
		movers = movers[len(movers)-th.Count:]
	}

	out := make(domain.ScreenedSet, 0, len(movers))
	for _, m := range movers {
		out = append(out, domain.ScreenedRow{
			Symbol:             m.symbol,
			Time:               m.latest.Time,
			Close:              m.latest.Close,
			PriceChangePercent: m.latest.PriceChangePercent,
			RollingBaseVolume:  m.latest.RollingBaseVolume,
			RollingQuoteVolume: m.latest.RollingQuoteVolume,
			Count:              m.latest.Count,
			LastPriceMove:      m.priceMove,
			LastVolumeMove:     m.volumeMove,
		})
	}
	return out
}
