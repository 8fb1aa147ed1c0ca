package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBlacklistCountersOnlyGrow(t *testing.T) {
	b := NewBlacklist()
	b.Enter("SOLUSDT", "SOL", 100, t0)
	b.Add("SOLUSDT", "SOL", 110, domain.ReasonTakeProfit, t0.Add(time.Minute))
	b.Enter("SOLBTC", "SOL", 0.002, t0.Add(2*time.Minute))
	b.Add("SOLBTC", "SOL", 0.001, domain.ReasonStopLoss, t0.Add(3*time.Minute))
	b.Add("SOLBTC", "SOL", 0.001, domain.ReasonNone, t0.Add(4*time.Minute))

	e, ok := b.Get("SOL")
	require.True(t, ok)
	assert.Equal(t, "SOLBTC", e.Symbol)
	assert.Equal(t, 1, e.TakeProfitCount)
	assert.Equal(t, 1, e.StopLossCount)
	assert.Zero(t, e.ProfitCount)
	assert.Zero(t, e.LossCount)
	assert.InDelta(t, 0.001, e.Close, 1e-12)
	assert.Equal(t, t0.Add(4*time.Minute), e.EnteredAt)
}

func TestBlacklistAddKeepsSymbolOfExistingEntry(t *testing.T) {
	b := NewBlacklist()
	b.Enter("ETHBTC", "ETH", 0.07, t0)
	b.Add("ETHUSDT", "ETH", 3500, domain.ReasonLoss, t0)

	e, _ := b.Get("ETH")
	assert.Equal(t, "ETHBTC", e.Symbol)
	assert.Equal(t, 1, e.LossCount)
}

func TestIsBuyableThreshold(t *testing.T) {
	limits := DefaultLimits()
	limits.StopLoss.Count = 2

	b := NewBlacklist()
	assert.True(t, b.IsBuyable("SOL", limits))

	b.Add("SOLUSDT", "SOL", 99, domain.ReasonStopLoss, t0)
	assert.True(t, b.IsBuyable("SOL", limits))

	b.Add("SOLUSDT", "SOL", 98, domain.ReasonStopLoss, t0)
	assert.False(t, b.IsBuyable("SOL", limits))

	limits.StopLoss.Enabled = false
	assert.True(t, b.IsBuyable("SOL", limits))
}

func TestIsBuyableIgnoresDisabledProfitLimit(t *testing.T) {
	b := NewBlacklist()
	for i := 0; i < 30; i++ {
		b.Add("BTCUSDT", "BTC", 50000, domain.ReasonProfit, t0)
	}
	assert.True(t, b.IsBuyable("BTC", DefaultLimits()))

	b.Add("BTCUSDT", "BTC", 49000, domain.ReasonLoss, t0)
	assert.False(t, b.IsBuyable("BTC", DefaultLimits()))
}

func TestRemoveOlderEntries(t *testing.T) {
	b := NewBlacklist()
	b.Enter("BTCUSDT", "BTC", 1, t0)
	b.Enter("ETHUSDT", "ETH", 1, t0.Add(time.Minute))
	b.Enter("SOLUSDT", "SOL", 1, t0.Add(3*time.Minute))

	removed := b.RemoveOlderEntries(t0.Add(5*time.Minute), 4*time.Minute)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, b.Len())
	_, ok := b.Get("SOL")
	assert.True(t, ok)

	assert.Zero(t, b.RemoveOlderEntries(t0.Add(5*time.Minute), 4*time.Minute))
}

func TestEntriesAndRestore(t *testing.T) {
	b := NewBlacklist()
	b.Enter("SOLUSDT", "SOL", 1, t0.Add(time.Minute))
	b.Enter("BTCUSDT", "BTC", 1, t0)
	b.Enter("ETHUSDT", "ETH", 1, t0)

	entries := b.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, []string{entries[0].BaseAsset, entries[1].BaseAsset, entries[2].BaseAsset})

	restored := NewBlacklist()
	restored.Restore(append(entries, domain.BlacklistEntry{Symbol: "BTCUSDT", BaseAsset: "BTC", LossCount: 3, EnteredAt: t0.Add(-time.Hour)}))
	assert.Equal(t, 3, restored.Len())
	btc, _ := restored.Get("BTC")
	assert.Zero(t, btc.LossCount)
}
