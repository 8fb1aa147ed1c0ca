package aggregate

import (
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// FixFrequency repairs one symbol's series whose sampling step changed
// halfway through, as happens when a daylight saving shift leaks into
// exchange timestamps. The smallest step in the older half is compared
// with the smallest step in the newer half; when they differ and both are
// under a day, the series is re-spaced at the larger step so that it ends
// at its original last timestamp. Series of four bars or fewer are left
// alone. The heuristic can misfire on irregular data, so callers opt in.
func FixFrequency(series []domain.Bar) []domain.Bar {
	n := len(series)
	out := append([]domain.Bar(nil), series...)
	if n <= 4 {
		return out
	}
	mid := n / 2

	older := minStep(out[:mid])
	newer := minStep(out[n-mid:])
	if older == newer || older >= Day || newer >= Day {
		return out
	}
	step := older
	if newer > step {
		step = newer
	}
	end := out[n-1].Time
	for i := range out {
		out[i].Time = end.Add(-time.Duration(n-1-i) * step)
	}
	return out
}

func minStep(bars []domain.Bar) time.Duration {
	var best time.Duration
	for i := 1; i < len(bars); i++ {
		d := bars[i].Time.Sub(bars[i-1].Time)
		if i == 1 || d < best {
			best = d
		}
	}
	return best
}
