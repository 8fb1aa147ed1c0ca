package aggregate

import (
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

type bucketKey struct {
	symbol string
	ts     int64
}

// Resample buckets bars to interval boundaries. Bars are taken in the
// order given, so a bucket's open is the first value seen, its close the
// last, high the max and low the min. Base and quote
// volume are summed from one minute up and take the last value below
// that; rolling volumes are summed only from one day up. Every symbol ends
// up with a bar at every bucket time present in the output: gaps get zero
// volume and carry the previous bar forward, or the next one backward
// when nothing precedes them.
func Resample(bars domain.Dataset, interval time.Duration) domain.Dataset {
	if len(bars) == 0 || interval <= 0 {
		return append(domain.Dataset(nil), bars...)
	}
	volumeSum := interval >= time.Minute
	rollingSum := interval >= Day

	buckets := make(map[bucketKey]*domain.Bar)
	for _, b := range bars {
		ts := RoundTime(b.Time, interval)
		k := bucketKey{symbol: b.Symbol, ts: ts.UnixNano()}
		agg, ok := buckets[k]
		if !ok {
			nb := b
			nb.Time = ts
			buckets[k] = &nb
			continue
		}
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Count = b.Count
		agg.PriceChangePercent = b.PriceChangePercent
		if volumeSum {
			agg.BaseVolume += b.BaseVolume
			agg.QuoteVolume += b.QuoteVolume
		} else {
			agg.BaseVolume = b.BaseVolume
			agg.QuoteVolume = b.QuoteVolume
		}
		if rollingSum {
			agg.RollingBaseVolume += b.RollingBaseVolume
			agg.RollingQuoteVolume += b.RollingQuoteVolume
		} else {
			agg.RollingBaseVolume = b.RollingBaseVolume
			agg.RollingQuoteVolume = b.RollingQuoteVolume
		}
	}

	return fillGrid(buckets, fillCarry)
}

// RoundTime rounds t to the nearest multiple of d since the Unix epoch.
// Ties go to the even multiple.
func RoundTime(t time.Time, d time.Duration) time.Time {
	n, step := t.UnixNano(), int64(d)
	q, r := n/step, n%step
	if r < 0 {
		q--
		r += step
	}
	switch {
	case r > step-r:
		q++
	case r == step-r && q%2 != 0:
		q++
	}
	return time.Unix(0, q*step).UTC()
}

// fillFunc builds a bar for a gap at ts from the nearest known bar.
type fillFunc func(near domain.Bar, ts time.Time, backward bool) domain.Bar

// fillCarry copies every field of the nearest bar and zeroes the
// per-bar volumes.
func fillCarry(near domain.Bar, ts time.Time, _ bool) domain.Bar {
	near.Time = ts
	near.BaseVolume = 0
	near.QuoteVolume = 0
	return near
}

// fillGrid lays the buckets onto the union of their timestamps, filling
// gaps with fill, and returns the result ordered by time then symbol.
func fillGrid(buckets map[bucketKey]*domain.Bar, fill fillFunc) domain.Dataset {
	tsSet := make(map[int64]struct{})
	symSet := make(map[string]struct{})
	for k := range buckets {
		tsSet[k.ts] = struct{}{}
		symSet[k.symbol] = struct{}{}
	}
	stamps := make([]int64, 0, len(tsSet))
	for ts := range tsSet {
		stamps = append(stamps, ts)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	symbols := make([]string, 0, len(symSet))
	for s := range symSet {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make(domain.Dataset, 0, len(stamps)*len(symbols))
	series := make(map[string][]domain.Bar, len(symbols))
	for _, sym := range symbols {
		row := make([]domain.Bar, len(stamps))
		have := make([]bool, len(stamps))
		first := -1
		for i, ts := range stamps {
			if b, ok := buckets[bucketKey{symbol: sym, ts: ts}]; ok {
				row[i], have[i] = *b, true
				if first < 0 {
					first = i
				}
			}
		}
		for i := range stamps {
			if have[i] {
				continue
			}
			t := time.Unix(0, stamps[i]).UTC()
			if i > first {
				row[i] = fill(row[i-1], t, false)
			} else {
				row[i] = fill(row[first], t, true)
			}
		}
		series[sym] = row
	}
	for i := range stamps {
		for _, sym := range symbols {
			out = append(out, series[sym][i])
		}
	}
	return out
}
