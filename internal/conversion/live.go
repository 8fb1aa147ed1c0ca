package conversion

import "github.com/alanyoungcy/cryptobot/internal/domain"

// LiveThresholds decide which markets are liquid enough to trade live.
type LiveThresholds struct {
	MaxSpreadPercent float64
	MinQuoteVolume   float64
	MinCount         int64
}

// DefaultLiveThresholds returns the thresholds the logger runs with.
func DefaultLiveThresholds() LiveThresholds {
	return LiveThresholds{MaxSpreadPercent: 0.3, MinQuoteVolume: 1e7, MinCount: 1000}
}

func (th LiveThresholds) pass(spread, quoteVolume float64, count int64) bool {
	return spread < th.MaxSpreadPercent && quoteVolume > th.MinQuoteVolume && count > th.MinCount
}

// LivePairs returns the symbols of pair rows passing th, deduplicated.
func LivePairs(rows []domain.PairRow, th LiveThresholds) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, r := range rows {
		if !th.pass(r.BidAskPercentChange, r.RollingQuoteVolume, r.Count) {
			continue
		}
		if _, ok := seen[r.Symbol]; ok {
			continue
		}
		seen[r.Symbol] = struct{}{}
		out = append(out, r.Symbol)
	}
	return out
}

// LiveAssets returns the assets of asset rows passing th. The result is
// never nil, so an empty slice still restricts screening to no assets.
func LiveAssets(rows []domain.AssetRow, th LiveThresholds) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if th.pass(r.BidAskPercentChange, r.RollingQuoteVolume, r.Count) {
			out = append(out, r.Asset)
		}
	}
	return out
}
