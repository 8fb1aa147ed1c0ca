package aggregate

import (
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// RollingWindow is the number of one-minute samples in the exchange's
// rolling 24h volume.
const RollingWindow = 1440

// ReconcileVolumes rewrites the base and quote volume of each symbol's
// newest tail bars from the rolling volumes:
//
//	incremental[t] = rolling[t] - rolling[t-1] + incremental[t-window]
//
// A sample older than the series start counts as zero. The dataset must
// hold one bar per symbol per timestamp, as Resample produces. The input is
// not modified.
func ReconcileVolumes(bars domain.Dataset, window, tail int) domain.Dataset {
	out := append(domain.Dataset(nil), bars...)
	index := make(map[string][]int)
	for i, b := range out {
		index[b.Symbol] = append(index[b.Symbol], i)
	}

	for _, idx := range index {
		sort.SliceStable(idx, func(a, b int) bool { return out[idx[a]].Time.Before(out[idx[b]].Time) })
		n := len(idx)
		start := n - tail
		if start < 1 {
			start = 1
		}
		for k := start; k < n; k++ {
			cur, prev := &out[idx[k]], out[idx[k-1]]
			var expiredBase, expiredQuote float64
			if k-window >= 0 {
				old := out[idx[k-window]]
				expiredBase, expiredQuote = old.BaseVolume, old.QuoteVolume
			}
			cur.BaseVolume = cur.RollingBaseVolume - prev.RollingBaseVolume + expiredBase
			cur.QuoteVolume = cur.RollingQuoteVolume - prev.RollingQuoteVolume + expiredQuote
		}
	}
	return out
}

// AddRollingVolumes sets each bar's rolling volumes to the sum of its
// symbol's base and quote volume over the trailing window, the bar itself
// included and bars exactly window old excluded.
func AddRollingVolumes(bars domain.Dataset, window time.Duration) domain.Dataset {
	out := append(domain.Dataset(nil), bars...)
	if window <= 0 {
		return out
	}
	index := make(map[string][]int)
	for i, b := range out {
		index[b.Symbol] = append(index[b.Symbol], i)
	}

	for _, idx := range index {
		sort.SliceStable(idx, func(a, b int) bool { return out[idx[a]].Time.Before(out[idx[b]].Time) })
		var base, quote float64
		lo := 0
		for hi := range idx {
			cur := &out[idx[hi]]
			base += cur.BaseVolume
			quote += cur.QuoteVolume
			for !out[idx[lo]].Time.After(cur.Time.Add(-window)) {
				base -= out[idx[lo]].BaseVolume
				quote -= out[idx[lo]].QuoteVolume
				lo++
			}
			cur.RollingBaseVolume = base
			cur.RollingQuoteVolume = quote
		}
	}
	return out
}
