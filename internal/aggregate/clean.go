package aggregate

import (
	"math"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// CleanBars aligns every symbol onto the dataset's shared timestamps and
// repairs missing values: per-bar volumes become zero, rolling volumes
// carry over from the neighbouring bar, and a missing open or close is
// taken from the nearest known price in open, close order. A missing high
// or low is derived from the bar's other prices.
func CleanBars(bars domain.Dataset) domain.Dataset {
	if len(bars) == 0 {
		return nil
	}
	buckets := make(map[bucketKey]*domain.Bar, len(bars))
	for _, b := range bars {
		nb := b
		nb.Time = b.Time.UTC()
		buckets[bucketKey{symbol: b.Symbol, ts: nb.Time.UnixNano()}] = &nb
	}
	out := fillGrid(buckets, fillFromPrice)

	bySymbol := make(map[string][]int)
	for i, b := range out {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], i)
	}
	for _, idx := range bySymbol {
		repairSeries(out, idx)
	}
	return out
}

// fillFromPrice builds a gap bar flat at the nearest known price: the
// previous close going forward, the next open going backward.
func fillFromPrice(near domain.Bar, ts time.Time, backward bool) domain.Bar {
	price := near.Close
	if backward {
		price = near.Open
	}
	return domain.Bar{
		Symbol:             near.Symbol,
		Time:               ts,
		Open:               price,
		High:               math.NaN(),
		Low:                math.NaN(),
		Close:              price,
		RollingBaseVolume:  near.RollingBaseVolume,
		RollingQuoteVolume: near.RollingQuoteVolume,
		PriceChangePercent: near.PriceChangePercent,
		Count:              near.Count,
	}
}

// repairSeries fixes NaN fields inside one symbol's bars, given as
// indexes into out in time order.
func repairSeries(out domain.Dataset, idx []int) {
	// Interleave open and close so a missing price takes the closest
	// known one before it, or after it at the start of the series.
	prices := make([]float64, 0, 2*len(idx))
	for _, i := range idx {
		prices = append(prices, out[i].Open, out[i].Close)
	}
	fillForwardBackward(prices)

	rollBase := make([]float64, len(idx))
	rollQuote := make([]float64, len(idx))
	for k, i := range idx {
		rollBase[k] = out[i].RollingBaseVolume
		rollQuote[k] = out[i].RollingQuoteVolume
	}
	fillForwardBackward(rollBase)
	fillForwardBackward(rollQuote)

	for k, i := range idx {
		b := &out[i]
		b.Open, b.Close = prices[2*k], prices[2*k+1]
		b.RollingBaseVolume, b.RollingQuoteVolume = rollBase[k], rollQuote[k]
		if math.IsNaN(b.BaseVolume) {
			b.BaseVolume = 0
		}
		if math.IsNaN(b.QuoteVolume) {
			b.QuoteVolume = 0
		}
		if math.IsNaN(b.High) {
			b.High = maxKnown(b.Open, b.Low, b.Close)
		}
		if math.IsNaN(b.Low) {
			b.Low = minKnown(b.Open, b.High, b.Close)
		}
	}
}

func fillForwardBackward(v []float64) {
	last := math.NaN()
	for i := range v {
		if math.IsNaN(v[i]) {
			v[i] = last
		} else {
			last = v[i]
		}
	}
	next := math.NaN()
	for i := len(v) - 1; i >= 0; i-- {
		if math.IsNaN(v[i]) {
			v[i] = next
		} else {
			next = v[i]
		}
	}
}

func maxKnown(vs ...float64) float64 {
	out := math.NaN()
	for _, v := range vs {
		if !math.IsNaN(v) && (math.IsNaN(out) || v > out) {
			out = v
		}
	}
	return out
}

func minKnown(vs ...float64) float64 {
	out := math.NaN()
	for _, v := range vs {
		if !math.IsNaN(v) && (math.IsNaN(out) || v < out) {
			out = v
		}
	}
	return out
}
