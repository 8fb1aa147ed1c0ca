package domain

import "time"

// Ticker is one pair's trailing 24h statistics from the exchange ticker
// endpoint, joined with its base and quote assets.
type Ticker struct {
	Symbol             string
	BaseAsset          string
	QuoteAsset         string
	Open               float64
	High               float64
	Low                float64
	Close              float64
	PrevClose          float64
	LastVolume         float64
	BidPrice           float64
	BidVolume          float64
	AskPrice           float64
	AskVolume          float64
	RollingBaseVolume  float64
	RollingQuoteVolume float64
	WeightedAvgPrice   float64
	PriceChange        float64
	PriceChangePercent float64
	FirstID            int64
	LastID             int64
	Count              int64
	OpenTime           time.Time
	Date               time.Time
}

// PairRow is a ticker augmented with USDT-normalized and volume-weighted
// fields. Rows with IsShorted set are synthetic inversions of a real pair.
type PairRow struct {
	Ticker

	RollingBaseQuoteVolume float64

	USDTOpen               float64
	USDTHigh               float64
	USDTLow                float64
	USDTPrice              float64
	USDTBidPrice           float64
	USDTAskPrice           float64
	USDTBidVolume          float64
	USDTAskVolume          float64
	USDTPriceChange        float64
	USDTPriceChangePercent float64
	RollingUSDTBaseVolume  float64
	RollingUSDTQuoteVolume float64

	Importance          float64
	RollingTradedVolume float64
	TradedBidVolume     float64
	TradedAskVolume     float64
	TradedPrice         float64
	TradedBidPrice      float64
	TradedAskPrice      float64

	BidAskPercentChange             float64
	BidAskVolumePercentChange       float64
	TradedBidAskPercentChange       float64
	TradedBidAskVolumePercentChange float64

	IsShorted bool
}

// AssetRow is the per-asset projection of the conversion table: one row per
// base asset, priced at its volume-weighted USDT price.
type AssetRow struct {
	Asset                     string
	Date                      time.Time
	LastID                    int64
	Count                     int64
	PriceChangePercent        float64
	Close                     float64
	BidPrice                  float64
	AskPrice                  float64
	BidVolume                 float64
	AskVolume                 float64
	RollingBaseVolume         float64
	RollingQuoteVolume        float64
	BidAskPercentChange       float64
	BidAskVolumePercentChange float64
}

// Snapshot turns the row into a single-sample bar keyed by the asset.
func (r AssetRow) Snapshot() Bar {
	return Bar{
		Symbol:             r.Asset,
		Time:               r.Date,
		Open:               r.Close,
		High:               r.Close,
		Low:                r.Close,
		Close:              r.Close,
		RollingBaseVolume:  r.RollingBaseVolume,
		RollingQuoteVolume: r.RollingQuoteVolume,
		PriceChangePercent: r.PriceChangePercent,
		Count:              r.Count,
	}
}

// Snapshot turns the pair row into a single-sample bar keyed by the symbol.
func (r PairRow) Snapshot() Bar {
	return Bar{
		Symbol:             r.Symbol,
		Time:               r.Date,
		Open:               r.Close,
		High:               r.Close,
		Low:                r.Close,
		Close:              r.Close,
		RollingBaseVolume:  r.RollingBaseVolume,
		RollingQuoteVolume: r.RollingQuoteVolume,
		PriceChangePercent: r.PriceChangePercent,
		Count:              r.Count,
	}
}
