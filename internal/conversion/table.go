package conversion

import (
	"sort"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// PathLookup resolves cached hop paths. domain.PathCache implements it.
type PathLookup interface {
	Lookup(scheme domain.PriorityScheme, from, to string) ([]domain.Hop, bool)
}

// TableBuilder turns raw tickers into a USDT-normalized conversion table.
type TableBuilder struct {
	converter *Converter
	paths     PathLookup
	level     DetailLevel
}

// NewTableBuilder creates a builder. USDT valuations route through paths
// under the accuracy scheme.
func NewTableBuilder(converter *Converter, paths PathLookup, level DetailLevel) *TableBuilder {
	return &TableBuilder{converter: converter, paths: paths, level: level}
}

// Table is one cycle's conversion table. It is never mutated after Build.
type Table struct {
	level    DetailLevel
	rows     []domain.PairRow
	prices   PriceTable
	unpriced []string
}

type usdtQuote struct {
	price float64
	open  float64
	ok    bool
}

// JoinTickers attaches base and quote assets to tickers and drops symbols
// that are not in the tradable pair index.
func JoinTickers(tickers []domain.Ticker, pairs domain.PairIndex) []domain.Ticker {
	out := make([]domain.Ticker, 0, len(tickers))
	for _, t := range tickers {
		base, quote, ok := pairs.Assets(t.Symbol)
		if !ok {
			continue
		}
		t.BaseAsset, t.QuoteAsset = base, quote
		out = append(out, t)
	}
	return out
}

// Build computes the table from joined tickers. Assets that cannot be
// valued in USDT keep zero USDT fields and are reported by Unpriced.
func (b *TableBuilder) Build(tickers []domain.Ticker) (*Table, error) {
	if len(tickers) == 0 {
		return nil, domain.ErrNoData
	}

	sorted := append([]domain.Ticker(nil), tickers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	prices := PriceTableFromTickers(sorted)

	quotes := make(map[string]usdtQuote)
	var unpriced []string
	rows := make([]domain.PairRow, 0, 2*len(sorted))
	for _, tk := range sorted {
		q, seen := quotes[tk.BaseAsset]
		if !seen {
			q = b.quote(tk.BaseAsset, prices)
			quotes[tk.BaseAsset] = q
			if !q.ok {
				unpriced = append(unpriced, tk.BaseAsset)
			}
		}
		row := domain.PairRow{Ticker: b.trim(tk)}
		b.normalize(&row, q.price, q.open)
		rows = append(rows, row)
	}

	n := len(rows)
	for i := 0; i < n; i++ {
		rows = append(rows, b.mirror(rows[i]))
	}
	b.aggregate(rows)

	booked := rows[:n:n]
	for i := range booked {
		r := &booked[i]
		r.BidAskPercentChange = ratio(r.AskPrice-r.BidPrice, r.AskPrice) * 100
		r.BidAskVolumePercentChange = ratio(r.BidVolume, r.BidVolume+r.AskVolume) * 100
	}

	sort.Strings(unpriced)
	return &Table{level: b.level, rows: booked, prices: prices, unpriced: unpriced}, nil
}

// quote values one unit of asset in USDT at close and at open.
func (b *TableBuilder) quote(asset string, prices PriceTable) usdtQuote {
	if asset == domain.USDT {
		return usdtQuote{price: 1, open: 1, ok: true}
	}
	hops, ok := b.paths.Lookup(domain.PriorityAccuracy, asset, domain.USDT)
	if !ok || len(hops) == 0 {
		return usdtQuote{}
	}
	price, err := b.converter.ConvertFloat(1, asset, domain.USDT, hops, prices, PriceClose)
	if err != nil {
		return usdtQuote{}
	}
	open, err := b.converter.ConvertFloat(1, asset, domain.USDT, hops, prices, PriceOpen)
	if err != nil {
		return usdtQuote{}
	}
	return usdtQuote{price: price, open: open, ok: true}
}

func (b *TableBuilder) trim(t domain.Ticker) domain.Ticker {
	if b.level == DetailFull {
		return t
	}
	t.PrevClose = 0
	t.LastVolume = 0
	t.WeightedAvgPrice = 0
	t.PriceChange = 0
	t.FirstID = 0
	t.LastID = 0
	t.OpenTime = time.Time{}
	return t
}

// normalize fills the USDT columns of row from the USDT value of its base.
func (b *TableBuilder) normalize(row *domain.PairRow, usdtPrice, usdtOpen float64) {
	t := row.Ticker
	row.RollingBaseQuoteVolume = ratio(t.RollingQuoteVolume, t.Close)
	row.USDTPrice = usdtPrice
	row.USDTOpen = usdtOpen
	if b.level != DetailExtraMinimal {
		row.USDTHigh = usdtPrice * ratio(t.High, t.Close)
		row.USDTLow = usdtPrice * ratio(t.Low, t.Close)
	}
	row.USDTBidPrice = usdtPrice * ratio(t.BidPrice, t.Close)
	row.USDTAskPrice = usdtPrice * ratio(t.AskPrice, t.Close)
	row.USDTBidVolume = t.BidVolume * row.USDTBidPrice
	row.USDTAskVolume = t.AskVolume * row.USDTAskPrice
	row.RollingUSDTBaseVolume = t.RollingBaseVolume * usdtPrice
	row.RollingUSDTQuoteVolume = row.RollingBaseQuoteVolume * usdtPrice
	row.USDTPriceChange = usdtPrice - usdtOpen
	row.USDTPriceChangePercent = ratio(row.USDTPriceChange, usdtOpen) * 100
}

// mirror returns the synthetic inverse of a real row: the same market seen
// from the quote side. Its USDT columns value the quote asset through the
// pair's own price.
func (b *TableBuilder) mirror(r domain.PairRow) domain.PairRow {
	t := r.Ticker
	m := domain.Ticker{
		Symbol:             t.QuoteAsset + t.BaseAsset,
		BaseAsset:          t.QuoteAsset,
		QuoteAsset:         t.BaseAsset,
		Open:               inv(t.Open),
		High:               inv(t.Low),
		Low:                inv(t.High),
		Close:              inv(t.Close),
		PrevClose:          inv(t.PrevClose),
		LastVolume:         t.LastVolume * t.Close,
		BidPrice:           inv(t.AskPrice),
		BidVolume:          t.AskVolume * t.AskPrice,
		AskPrice:           inv(t.BidPrice),
		AskVolume:          t.BidVolume * t.BidPrice,
		RollingBaseVolume:  t.RollingQuoteVolume,
		RollingQuoteVolume: t.RollingBaseVolume,
		WeightedAvgPrice:   inv(t.WeightedAvgPrice),
		FirstID:            t.FirstID,
		LastID:             t.LastID,
		Count:              t.Count,
		OpenTime:           t.OpenTime,
		Date:               t.Date,
	}
	m.PriceChange = m.Close - m.Open
	m.PriceChangePercent = ratio(m.PriceChange, m.Open) * 100

	row := domain.PairRow{Ticker: b.trim(m), IsShorted: true}
	b.normalize(&row, ratio(r.USDTPrice, t.Close), ratio(r.USDTOpen, t.Open))
	return row
}

type assetTotals struct {
	volume    float64
	bidVolume float64
	askVolume float64
	price     float64
	bid       float64
	ask       float64
}

// aggregate fills the importance-weighted traded columns of every row from
// all rows sharing its base asset, mirrors included.
func (b *TableBuilder) aggregate(rows []domain.PairRow) {
	totals := make(map[string]*assetTotals)
	for i := range rows {
		r := &rows[i]
		g, ok := totals[r.BaseAsset]
		if !ok {
			g = &assetTotals{}
			totals[r.BaseAsset] = g
		}
		g.volume += r.RollingUSDTBaseVolume
		g.bidVolume += r.USDTBidVolume
		g.askVolume += r.USDTAskVolume
	}

	for i := range rows {
		r := &rows[i]
		g := totals[r.BaseAsset]
		r.Importance = ratio(r.RollingUSDTBaseVolume, g.volume)
		g.price += r.USDTPrice * r.Importance
		g.bid += r.USDTBidPrice * r.Importance
		g.ask += r.USDTAskPrice * r.Importance
	}

	for i := range rows {
		r := &rows[i]
		g := totals[r.BaseAsset]
		r.RollingTradedVolume = g.volume
		r.TradedPrice = g.price
		if b.level == DetailExtraMinimal {
			continue
		}
		r.TradedBidVolume = g.bidVolume
		r.TradedAskVolume = g.askVolume
		r.TradedBidPrice = g.bid
		r.TradedAskPrice = g.ask
		r.TradedBidAskPercentChange = ratio(g.ask-g.bid, g.ask) * 100
		r.TradedBidAskVolumePercentChange = ratio(g.bidVolume, g.bidVolume+g.askVolume) * 100
	}
}

// Level reports the detail level the table was built at.
func (t *Table) Level() DetailLevel { return t.level }

// Unpriced lists base assets with no USDT valuation this cycle.
func (t *Table) Unpriced() []string { return t.unpriced }

// Prices returns the raw pair prices the table was built from.
func (t *Table) Prices() PriceTable { return t.prices }

// Pairs returns the per-pair projection, ordered by ticker time.
func (t *Table) Pairs() []domain.PairRow {
	return append([]domain.PairRow(nil), t.rows...)
}

// Row returns the pair row for symbol.
func (t *Table) Row(symbol string) (domain.PairRow, bool) {
	for _, r := range t.rows {
		if r.Symbol == symbol {
			return r, true
		}
	}
	return domain.PairRow{}, false
}

// HighestVolumePair returns the pair based on asset with the largest
// rolling quote volume.
func (t *Table) HighestVolumePair(asset string) (domain.PairRow, bool) {
	var best domain.PairRow
	found := false
	for _, r := range t.rows {
		if r.BaseAsset != asset {
			continue
		}
		if !found || r.RollingQuoteVolume > best.RollingQuoteVolume {
			best, found = r, true
		}
	}
	return best, found
}

// Assets returns the per-asset projection: one row per base asset, taken
// from its first pair row, ordered by time.
func (t *Table) Assets() []domain.AssetRow {
	byAsset := make(map[string]*domain.AssetRow)
	var order []string
	for _, r := range t.rows {
		a, ok := byAsset[r.BaseAsset]
		if !ok {
			row := t.assetRow(r)
			byAsset[r.BaseAsset] = &row
			order = append(order, r.BaseAsset)
			continue
		}
		if r.Date.After(a.Date) {
			a.Date = r.Date
		}
		if t.level == DetailFull {
			a.Count += r.Count
			a.LastID += r.LastID
		} else if r.Count > a.Count {
			a.Count = r.Count
		}
	}

	out := make([]domain.AssetRow, 0, len(order))
	for _, asset := range order {
		out = append(out, *byAsset[asset])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (t *Table) assetRow(r domain.PairRow) domain.AssetRow {
	a := domain.AssetRow{
		Asset:              r.BaseAsset,
		Date:               r.Date,
		Count:              r.Count,
		Close:              r.TradedPrice,
		RollingBaseVolume:  r.RollingTradedVolume,
		RollingQuoteVolume: r.RollingTradedVolume,
	}
	if t.level == DetailFull {
		a.LastID = r.LastID
	}
	if t.level == DetailExtraMinimal {
		a.PriceChangePercent = r.PriceChangePercent
		a.BidPrice, a.AskPrice = r.BidPrice, r.AskPrice
		a.BidVolume, a.AskVolume = r.BidVolume, r.AskVolume
		a.BidAskPercentChange = r.BidAskPercentChange
		a.BidAskVolumePercentChange = r.BidAskVolumePercentChange
		return a
	}
	a.PriceChangePercent = r.USDTPriceChangePercent
	a.BidPrice, a.AskPrice = r.TradedBidPrice, r.TradedAskPrice
	a.BidVolume, a.AskVolume = r.TradedBidVolume, r.TradedAskVolume
	a.BidAskPercentChange = r.TradedBidAskPercentChange
	a.BidAskVolumePercentChange = r.TradedBidAskVolumePercentChange
	return a
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func inv(x float64) float64 {
	if x == 0 {
		return 0
	}
	return 1 / x
}
