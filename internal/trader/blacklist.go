// Package trader holds the trading decision loop: it picks the asset to
// hold from the logger's screened output, routes multi-hop market orders to
// reach it and keeps a per-asset cooldown blacklist.
package trader

import (
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// Limit is one of the four cooldown rules. Percent is the price move that
// triggers the event and Count the number of events after which the asset
// stops being buyable. A disabled limit never triggers and never blocks.
type Limit struct {
	Enabled bool
	Percent float64
	Count   int
}

// Limits groups the cooldown rules.
type Limits struct {
	TakeProfit Limit
	StopLoss   Limit
	Profit     Limit
	Loss       Limit
}

// DefaultLimits takes profit at +10%, stops losses at -1%, and blocks an
// asset after one take profit, one stop loss or one losing exit. Profitable
// exits are not limited.
func DefaultLimits() Limits {
	return Limits{
		TakeProfit: Limit{Enabled: true, Percent: 10, Count: 1},
		StopLoss:   Limit{Enabled: true, Percent: 1, Count: 1},
		Profit:     Limit{Enabled: false, Count: 20},
		Loss:       Limit{Enabled: true, Percent: 0, Count: 1},
	}
}

// Blacklist is the cooldown state keyed by base asset. It is owned by a
// single engine loop and is not safe for concurrent use.
type Blacklist struct {
	entries map[string]*domain.BlacklistEntry
}

// NewBlacklist returns an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]*domain.BlacklistEntry)}
}

// Enter records a position taken in base through symbol at price. An
// existing entry is repointed at symbol and price, keeps its counters and
// restarts its cooldown.
func (b *Blacklist) Enter(symbol, base string, price float64, now time.Time) domain.BlacklistEntry {
	e, ok := b.entries[base]
	if !ok {
		e = &domain.BlacklistEntry{BaseAsset: base}
		b.entries[base] = e
	}
	e.Symbol = symbol
	e.Close = price
	e.EnteredAt = now
	return *e
}

// Add records an event for base. A new entry is created for symbol; an
// existing one keeps its symbol. Either way the close price is refreshed,
// the cooldown restarts and the counter for reason is incremented.
// ReasonNone only records the entry.
func (b *Blacklist) Add(symbol, base string, price float64, reason domain.BlacklistReason, now time.Time) domain.BlacklistEntry {
	e, ok := b.entries[base]
	if !ok {
		e = &domain.BlacklistEntry{Symbol: symbol, BaseAsset: base}
		b.entries[base] = e
	}
	e.Close = price
	e.EnteredAt = now
	switch reason {
	case domain.ReasonTakeProfit:
		e.TakeProfitCount++
	case domain.ReasonStopLoss:
		e.StopLossCount++
	case domain.ReasonProfit:
		e.ProfitCount++
	case domain.ReasonLoss:
		e.LossCount++
	}
	return *e
}

// Get returns the entry for base.
func (b *Blacklist) Get(base string) (domain.BlacklistEntry, bool) {
	e, ok := b.entries[base]
	if !ok {
		return domain.BlacklistEntry{}, false
	}
	return *e, true
}

// IsBuyable reports whether an asset may be bought. It is false only when
// base is blacklisted and an enabled limit's counter has reached its count.
func (b *Blacklist) IsBuyable(base string, limits Limits) bool {
	e, ok := b.entries[base]
	if !ok {
		return true
	}
	checks := []struct {
		limit Limit
		count int
	}{
		{limits.TakeProfit, e.TakeProfitCount},
		{limits.StopLoss, e.StopLossCount},
		{limits.Profit, e.ProfitCount},
		{limits.Loss, e.LossCount},
	}
	for _, c := range checks {
		if c.limit.Enabled && c.count >= c.limit.Count {
			return false
		}
	}
	return true
}

// RemoveOlderEntries drops entries whose age is frequency or more and
// returns how many were dropped.
func (b *Blacklist) RemoveOlderEntries(now time.Time, frequency time.Duration) int {
	removed := 0
	for base, e := range b.entries {
		if now.Sub(e.EnteredAt) >= frequency {
			delete(b.entries, base)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries.
func (b *Blacklist) Len() int { return len(b.entries) }

// Entries returns a copy of all entries, oldest first.
func (b *Blacklist) Entries() []domain.BlacklistEntry {
	out := make([]domain.BlacklistEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnteredAt.Equal(out[j].EnteredAt) {
			return out[i].EnteredAt.Before(out[j].EnteredAt)
		}
		return out[i].BaseAsset < out[j].BaseAsset
	})
	return out
}

// Restore replaces the state with entries, the latest entry per base
// asset winning.
func (b *Blacklist) Restore(entries []domain.BlacklistEntry) {
	b.entries = make(map[string]*domain.BlacklistEntry, len(entries))
	for _, e := range entries {
		if cur, ok := b.entries[e.BaseAsset]; ok && cur.EnteredAt.After(e.EnteredAt) {
			continue
		}
		b.entries[e.BaseAsset] = &e
	}
}
