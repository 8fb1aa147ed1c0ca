package domain

import (
	"sort"
	"time"
)

// Bar is one OHLCV sample for a symbol at a given bucket start.
type Bar struct {
	Symbol             string
	Time               time.Time
	Open               float64
	High               float64
	Low                float64
	Close              float64
	BaseVolume         float64
	QuoteVolume        float64
	RollingBaseVolume  float64
	RollingQuoteVolume float64
	PriceChangePercent float64
	Count              int64
}

// Dataset is a time-ordered collection of bars across many symbols.
type Dataset []Bar

// Sort orders the dataset by time, then symbol. The sort is stable so bars
// sharing a key keep their arrival order.
func (d Dataset) Sort() {
	sort.SliceStable(d, func(i, j int) bool {
		if !d[i].Time.Equal(d[j].Time) {
			return d[i].Time.Before(d[j].Time)
		}
		return d[i].Symbol < d[j].Symbol
	})
}

// Symbols returns the distinct symbols in order of first appearance.
func (d Dataset) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range d {
		if _, ok := seen[b.Symbol]; ok {
			continue
		}
		seen[b.Symbol] = struct{}{}
		out = append(out, b.Symbol)
	}
	return out
}

// BySymbol splits the dataset into per-symbol series, each in dataset order.
func (d Dataset) BySymbol() map[string][]Bar {
	out := make(map[string][]Bar)
	for _, b := range d {
		out[b.Symbol] = append(out[b.Symbol], b)
	}
	return out
}

// Timestamps returns the distinct bar times in ascending order.
func (d Dataset) Timestamps() []time.Time {
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, b := range d {
		k := b.Time.UnixNano()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b.Time)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Tail keeps the bars belonging to the last n distinct timestamps.
func (d Dataset) Tail(n int) Dataset {
	ts := d.Timestamps()
	if n <= 0 {
		return Dataset{}
	}
	if len(ts) <= n {
		return d
	}
	cutoff := ts[len(ts)-n]
	out := make(Dataset, 0, len(d))
	for _, b := range d {
		if !b.Time.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out
}

// Filter keeps the bars whose symbol is in symbols.
func (d Dataset) Filter(symbols []string) Dataset {
	keep := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		keep[s] = struct{}{}
	}
	out := make(Dataset, 0, len(d))
	for _, b := range d {
		if _, ok := keep[b.Symbol]; ok {
			out = append(out, b)
		}
	}
	return out
}

// ScreenedRow is one symbol that passed screening, with the fields the
// trader ranks candidates by.
type ScreenedRow struct {
	Symbol             string
	Time               time.Time
	Close              float64
	PriceChangePercent float64
	RollingBaseVolume  float64
	RollingQuoteVolume float64
	Count              int64
	LastPriceMove      float64
	LastVolumeMove     float64
}

// ScreenedSet is the persisted result of one screening pass.
type ScreenedSet []ScreenedRow

// Symbols returns the symbols in the set.
func (s ScreenedSet) Symbols() []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, r.Symbol)
	}
	return out
}

// Contains reports whether symbol is in the set.
func (s ScreenedSet) Contains(symbol string) bool {
	for _, r := range s {
		if r.Symbol == symbol {
			return true
		}
	}
	return false
}
