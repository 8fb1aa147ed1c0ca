package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// --------------------------------------------------------------------------
// REST payloads
// --------------------------------------------------------------------------

// APIError is the error body returned alongside non-2xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// APIFilter is one entry of a symbol's filters list. Only the fields the
// client reads are mapped.
type APIFilter struct {
	FilterType string `json:"filterType"`
	MinPrice   string `json:"minPrice"`
	MaxPrice   string `json:"maxPrice"`
	TickSize   string `json:"tickSize"`
	StepSize   string `json:"stepSize"`
}

// APISymbol is one symbol from /api/v3/exchangeInfo.
type APISymbol struct {
	Symbol                     string      `json:"symbol"`
	Status                     string      `json:"status"`
	BaseAsset                  string      `json:"baseAsset"`
	QuoteAsset                 string      `json:"quoteAsset"`
	QuotePrecision             int         `json:"quotePrecision"`
	QuoteAssetPrecision        int         `json:"quoteAssetPrecision"`
	IsSpotTradingAllowed       bool        `json:"isSpotTradingAllowed"`
	QuoteOrderQtyMarketAllowed bool        `json:"quoteOrderQtyMarketAllowed"`
	Filters                    []APIFilter `json:"filters"`
}

// APIExchangeInfo is the /api/v3/exchangeInfo response.
type APIExchangeInfo struct {
	ServerTime int64       `json:"serverTime"`
	Symbols    []APISymbol `json:"symbols"`
}

// ToDomainPair converts an exchange info symbol. The tick size comes from
// PRICE_FILTER and the step size from LOT_SIZE.
func (s *APISymbol) ToDomainPair() domain.Pair {
	p := domain.Pair{
		Symbol:         s.Symbol,
		BaseAsset:      s.BaseAsset,
		QuoteAsset:     s.QuoteAsset,
		QuotePrecision: s.QuoteAssetPrecision,
	}
	if p.QuotePrecision == 0 {
		p.QuotePrecision = s.QuotePrecision
	}
	for _, f := range s.Filters {
		switch f.FilterType {
		case "PRICE_FILTER":
			p.TickSize = parseFloat(f.TickSize)
			p.MinPrice = parseFloat(f.MinPrice)
			p.MaxPrice = parseFloat(f.MaxPrice)
		case "LOT_SIZE":
			p.StepSize = parseFloat(f.StepSize)
		}
	}
	return p
}

// APITicker is one row of /api/v3/ticker/24hr. Prices and volumes arrive as
// decimal strings.
type APITicker struct {
	Symbol             string `json:"symbol"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	WeightedAvgPrice   string `json:"weightedAvgPrice"`
	PrevClosePrice     string `json:"prevClosePrice"`
	LastPrice          string `json:"lastPrice"`
	LastQty            string `json:"lastQty"`
	BidPrice           string `json:"bidPrice"`
	BidQty             string `json:"bidQty"`
	AskPrice           string `json:"askPrice"`
	AskQty             string `json:"askQty"`
	OpenPrice          string `json:"openPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	OpenTime           int64  `json:"openTime"`
	CloseTime          int64  `json:"closeTime"`
	FirstID            int64  `json:"firstId"`
	LastID             int64  `json:"lastId"`
	Count              int64  `json:"count"`
}

// ToDomainTicker converts a 24h ticker row. Base and quote assets are left
// for the caller to join from exchange metadata.
func (t *APITicker) ToDomainTicker() domain.Ticker {
	return domain.Ticker{
		Symbol:             t.Symbol,
		Open:               parseFloat(t.OpenPrice),
		High:               parseFloat(t.HighPrice),
		Low:                parseFloat(t.LowPrice),
		Close:              parseFloat(t.LastPrice),
		PrevClose:          parseFloat(t.PrevClosePrice),
		LastVolume:         parseFloat(t.LastQty),
		BidPrice:           parseFloat(t.BidPrice),
		BidVolume:          parseFloat(t.BidQty),
		AskPrice:           parseFloat(t.AskPrice),
		AskVolume:          parseFloat(t.AskQty),
		RollingBaseVolume:  parseFloat(t.Volume),
		RollingQuoteVolume: parseFloat(t.QuoteVolume),
		WeightedAvgPrice:   parseFloat(t.WeightedAvgPrice),
		PriceChange:        parseFloat(t.PriceChange),
		PriceChangePercent: parseFloat(t.PriceChangePercent),
		FirstID:            t.FirstID,
		LastID:             t.LastID,
		Count:              t.Count,
		OpenTime:           time.UnixMilli(t.OpenTime).UTC(),
		Date:               time.UnixMilli(t.CloseTime).UTC(),
	}
}

// APIKline is one /api/v3/klines row, a heterogeneous JSON array:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// trades, takerBuyBase, takerBuyQuote, ignore].
type APIKline struct {
	OpenTime    int64
	Open        string
	High        string
	Low         string
	Close       string
	Volume      string
	CloseTime   int64
	QuoteVolume string
	Trades      int64
}

// UnmarshalJSON decodes the positional kline array.
func (k *APIKline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 9 {
		return fmt.Errorf("kline has %d fields, want at least 9", len(raw))
	}
	fields := []any{&k.OpenTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.CloseTime, &k.QuoteVolume, &k.Trades}
	for i, dst := range fields {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("kline field %d: %w", i, err)
		}
	}
	return nil
}

// ToDomainBar converts a kline to a bar for symbol.
func (k *APIKline) ToDomainBar(symbol string) domain.Bar {
	return domain.Bar{
		Symbol:      symbol,
		Time:        time.UnixMilli(k.OpenTime).UTC(),
		Open:        parseFloat(k.Open),
		High:        parseFloat(k.High),
		Low:         parseFloat(k.Low),
		Close:       parseFloat(k.Close),
		BaseVolume:  parseFloat(k.Volume),
		QuoteVolume: parseFloat(k.QuoteVolume),
		Count:       k.Trades,
	}
}

// APIBalance is one balance of /api/v3/account.
type APIBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// APIAccount is the /api/v3/account response.
type APIAccount struct {
	CanTrade bool         `json:"canTrade"`
	Balances []APIBalance `json:"balances"`
}

// APIOrderFill is one partial fill of a FULL order response.
type APIOrderFill struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// APIOrder is the FULL response of POST /api/v3/order.
type APIOrder struct {
	Symbol              string         `json:"symbol"`
	OrderID             int64          `json:"orderId"`
	ClientOrderID       string         `json:"clientOrderId"`
	TransactTime        int64          `json:"transactTime"`
	Price               string         `json:"price"`
	OrigQty             string         `json:"origQty"`
	ExecutedQty         string         `json:"executedQty"`
	CummulativeQuoteQty string         `json:"cummulativeQuoteQty"`
	Status              string         `json:"status"`
	Side                string         `json:"side"`
	Fills               []APIOrderFill `json:"fills"`
}

// ToDomainFill converts an order acknowledgement. Market orders report a
// zero limit price, so the fill price is the volume-weighted average of the
// partial fills, falling back to quote over base executed.
func (o *APIOrder) ToDomainFill() domain.Fill {
	executed := parseFloat(o.ExecutedQty)
	quote := parseFloat(o.CummulativeQuoteQty)

	var price float64
	var qty, notional float64
	for _, f := range o.Fills {
		p, q := parseFloat(f.Price), parseFloat(f.Qty)
		qty += q
		notional += p * q
	}
	switch {
	case qty > 0:
		price = notional / qty
	case executed > 0:
		price = quote / executed
	default:
		price = parseFloat(o.Price)
	}

	return domain.Fill{
		OrderID:                  strconv.FormatInt(o.OrderID, 10),
		ClientOrderID:            o.ClientOrderID,
		Symbol:                   o.Symbol,
		Side:                     domain.OrderSide(o.Side),
		Price:                    price,
		ExecutedQuantity:         executed,
		CummulativeQuoteQuantity: quote,
		TransactTime:             time.UnixMilli(o.TransactTime).UTC(),
	}
}

// APIDepth is the /api/v3/depth response. Levels are [price, qty] pairs.
type APIDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// ToDomainOrderBook converts a depth snapshot for symbol.
func (d *APIDepth) ToDomainOrderBook(symbol string) domain.OrderBook {
	return domain.OrderBook{
		Symbol: symbol,
		Bids:   levels(d.Bids),
		Asks:   levels(d.Asks),
	}
}

func levels(raw [][2]string) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(raw))
	for _, l := range raw {
		out = append(out, domain.BookLevel{Price: parseFloat(l[0]), Volume: parseFloat(l[1])})
	}
	return out
}

// --------------------------------------------------------------------------
// WebSocket payloads
// --------------------------------------------------------------------------

// WSTicker is one element of the !ticker@arr all-market stream.
type WSTicker struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	PriceChange        string `json:"p"`
	PriceChangePercent string `json:"P"`
	WeightedAvgPrice   string `json:"w"`
	PrevClosePrice     string `json:"x"`
	LastPrice          string `json:"c"`
	LastQty            string `json:"Q"`
	BidPrice           string `json:"b"`
	BidQty             string `json:"B"`
	AskPrice           string `json:"a"`
	AskQty             string `json:"A"`
	OpenPrice          string `json:"o"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
	Volume             string `json:"v"`
	QuoteVolume        string `json:"q"`
	OpenTime           int64  `json:"O"`
	CloseTime          int64  `json:"C"`
	FirstID            int64  `json:"F"`
	LastID             int64  `json:"L"`
	Count              int64  `json:"n"`
}

// ToDomainTicker converts a stream ticker to the REST ticker shape.
func (t *WSTicker) ToDomainTicker() domain.Ticker {
	rest := APITicker{
		Symbol:             t.Symbol,
		PriceChange:        t.PriceChange,
		PriceChangePercent: t.PriceChangePercent,
		WeightedAvgPrice:   t.WeightedAvgPrice,
		PrevClosePrice:     t.PrevClosePrice,
		LastPrice:          t.LastPrice,
		LastQty:            t.LastQty,
		BidPrice:           t.BidPrice,
		BidQty:             t.BidQty,
		AskPrice:           t.AskPrice,
		AskQty:             t.AskQty,
		OpenPrice:          t.OpenPrice,
		HighPrice:          t.HighPrice,
		LowPrice:           t.LowPrice,
		Volume:             t.Volume,
		QuoteVolume:        t.QuoteVolume,
		OpenTime:           t.OpenTime,
		CloseTime:          t.CloseTime,
		FirstID:            t.FirstID,
		LastID:             t.LastID,
		Count:              t.Count,
	}
	return rest.ToDomainTicker()
}

// parseFloat parses a decimal string, returning 0 for empty or malformed
// input.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
