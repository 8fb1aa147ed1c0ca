package aggregate

import (
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// FromSnapshots converts raw ticker snapshots into bars. Only the close
// price of a snapshot is trusted: it yields the bucket's open, high, low
// and close. Every volume field takes the bucket's largest rolling volume.
// The oldest bucket is dropped since it is usually partial.
func FromSnapshots(snapshots domain.Dataset, interval time.Duration) domain.Dataset {
	if len(snapshots) == 0 || interval <= 0 {
		return nil
	}
	ordered := append(domain.Dataset(nil), snapshots...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	oldest := RoundTime(ordered[0].Time, interval).UnixNano()
	buckets := make(map[bucketKey]*domain.Bar)
	for _, s := range ordered {
		ts := RoundTime(s.Time, interval)
		if ts.UnixNano() == oldest {
			continue
		}
		k := bucketKey{symbol: s.Symbol, ts: ts.UnixNano()}
		agg, ok := buckets[k]
		if !ok {
			buckets[k] = &domain.Bar{
				Symbol:             s.Symbol,
				Time:               ts,
				Open:               s.Close,
				High:               s.Close,
				Low:                s.Close,
				Close:              s.Close,
				BaseVolume:         s.RollingBaseVolume,
				QuoteVolume:        s.RollingQuoteVolume,
				RollingBaseVolume:  s.RollingBaseVolume,
				RollingQuoteVolume: s.RollingQuoteVolume,
				PriceChangePercent: s.PriceChangePercent,
				Count:              s.Count,
			}
			continue
		}
		if s.Close > agg.High {
			agg.High = s.Close
		}
		if s.Close < agg.Low {
			agg.Low = s.Close
		}
		agg.Close = s.Close
		agg.PriceChangePercent = s.PriceChangePercent
		if s.Count > agg.Count {
			agg.Count = s.Count
		}
		if s.RollingBaseVolume > agg.RollingBaseVolume {
			agg.RollingBaseVolume = s.RollingBaseVolume
			agg.BaseVolume = s.RollingBaseVolume
		}
		if s.RollingQuoteVolume > agg.RollingQuoteVolume {
			agg.RollingQuoteVolume = s.RollingQuoteVolume
			agg.QuoteVolume = s.RollingQuoteVolume
		}
	}
	if len(buckets) == 0 {
		return nil
	}
	return fillGrid(buckets, fillCarry)
}
