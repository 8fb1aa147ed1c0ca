package domain

import (
	"context"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderRequest is a market order sized by quote notional.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	QuoteQuantity string
}

// Fill is the venue's acknowledgement of an executed market order.
type Fill struct {
	OrderID                  string    `json:"order_id"`
	ClientOrderID            string    `json:"client_order_id"`
	Symbol                   string    `json:"symbol"`
	Side                     OrderSide `json:"side"`
	Price                    float64   `json:"price"`
	ExecutedQuantity         float64   `json:"executed_qty"`
	CummulativeQuoteQuantity float64   `json:"cumulative_quote_qty"`
	TransactTime             time.Time `json:"transact_time"`
}

// Balance is one asset's account balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price  float64
	Volume float64
}

// OrderBook is a depth snapshot for a symbol.
type OrderBook struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// MetadataSource loads the tradable pair universe.
type MetadataSource interface {
	ExchangeInfo(ctx context.Context) ([]Pair, error)
}

// TickerSource returns rolling 24h statistics for every pair.
type TickerSource interface {
	Tickers(ctx context.Context) ([]Ticker, error)
}

// KlineSource returns historical bars.
type KlineSource interface {
	Klines(ctx context.Context, symbol string, interval time.Duration, limit int, end time.Time) ([]Bar, error)
}

// AccountSource returns account balances.
type AccountSource interface {
	Balances(ctx context.Context) ([]Balance, error)
}

// OrderPlacer submits market orders.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*Fill, error)
}

// OrderBookSource returns order book depth.
type OrderBookSource interface {
	OrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)
}

// Exchange is everything the trader needs from a venue.
type Exchange interface {
	MetadataSource
	TickerSource
	AccountSource
	OrderPlacer
	OrderBookSource
}

// RemoteSource fetches the current contents of a named remote file. An
// empty result means no data yet.
type RemoteSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}
