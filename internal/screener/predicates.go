package screener

import (
	"math"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// MinuteVolumeFloor is the rolling base volume a symbol needs on the
// one-minute buffer.
const MinuteVolumeFloor = 1e6

// dailyLag is the number of one-minute bars in a day.
const dailyLag = 1440

// Always accepts every symbol.
func Always(string, []domain.Bar) bool { return true }

// RisingVolume accepts a symbol whose rolling base volume grew on its
// last bar.
func RisingVolume(_ string, bars []domain.Bar) bool {
	n := len(bars)
	if n < 2 {
		return false
	}
	return bars[n-1].RollingBaseVolume-bars[n-2].RollingBaseVolume > 0
}

// MinuteMomentum accepts a symbol trading above MinuteVolumeFloor whose
// rolling base volume is higher than a day ago.
func MinuteMomentum(_ string, bars []domain.Bar) bool {
	n := len(bars)
	if n <= dailyLag {
		return false
	}
	last, dayAgo := bars[n-1].RollingBaseVolume, bars[n-1-dailyLag].RollingBaseVolume
	if last <= MinuteVolumeFloor || dayAgo == 0 {
		return false
	}
	return 100*(last-dayAgo)/dayAgo > 0
}

// NotSquareWave rejects series whose close keeps flipping between a few
// values, the signature of an illiquid book. Windows of 5, 10, ... 50 bars
// must each hold at least 2, 4, ... 20 distinct closes.
func NotSquareWave(_ string, bars []domain.Bar) bool {
	steps := len(bars) / 5
	if steps > 10 {
		steps = 10
	}
	for k := 1; k <= steps; k++ {
		window := bars[len(bars)-5*k:]
		distinct := make(map[float64]struct{}, len(window))
		for _, b := range window {
			distinct[b.Close] = struct{}{}
		}
		if len(distinct) < 2*k {
			return false
		}
	}
	return true
}

// All accepts a symbol only when every predicate does.
func All(preds ...Predicate) Predicate {
	return func(symbol string, bars []domain.Bar) bool {
		for _, p := range preds {
			if !p(symbol, bars) {
				return false
			}
		}
		return true
	}
}

// ByFrequency is the default screen. The bar step is inferred from the
// series itself: sub-minute series always pass; intraday series need
// rising volume, and one-minute series additionally MinuteMomentum;
// daily and slower series pass. Every series must first pass
// NotSquareWave.
func ByFrequency(symbol string, bars []domain.Bar) bool {
	if !NotSquareWave(symbol, bars) {
		return false
	}
	step := Step(bars)
	switch {
	case step < time.Minute:
		return true
	case step < 24*time.Hour:
		if !RisingVolume(symbol, bars) {
			return false
		}
		if step == time.Minute {
			return MinuteMomentum(symbol, bars)
		}
		return true
	default:
		return true
	}
}

// Step returns the smallest gap between consecutive bars, or zero when
// there are fewer than two.
func Step(bars []domain.Bar) time.Duration {
	best := time.Duration(math.MaxInt64)
	for i := 1; i < len(bars); i++ {
		if d := bars[i].Time.Sub(bars[i-1].Time); d < best {
			best = d
		}
	}
	if best == time.Duration(math.MaxInt64) {
		return 0
	}
	return best
}
