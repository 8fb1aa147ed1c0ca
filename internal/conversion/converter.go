// Package conversion converts amounts between assets along routed pair
// paths and builds the USDT-normalized conversion table.
package conversion

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// PriceKey selects which ticker price a conversion walks with.
type PriceKey int

const (
	PriceClose PriceKey = iota
	PriceOpen
)

// PricePoint holds the prices of one pair.
type PricePoint struct {
	Open  float64
	Close float64
}

// PriceTable maps a pair symbol to its prices.
type PriceTable map[string]PricePoint

// PriceTableFromTickers indexes ticker prices by symbol.
func PriceTableFromTickers(tickers []domain.Ticker) PriceTable {
	t := make(PriceTable, len(tickers))
	for _, tk := range tickers {
		if _, ok := t[tk.Symbol]; ok {
			continue
		}
		t[tk.Symbol] = PricePoint{Open: tk.Open, Close: tk.Close}
	}
	return t
}

func (t PriceTable) price(symbol string, key PriceKey) (float64, bool) {
	p, ok := t[symbol]
	if !ok {
		return 0, false
	}
	v := p.Close
	if key == PriceOpen {
		v = p.Open
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// Converter walks hop lists against a price table and floors the result to
// the precision of the last pair walked.
type Converter struct {
	pairs domain.PairIndex
}

// NewConverter creates a Converter over exchange metadata.
func NewConverter(pairs domain.PairIndex) *Converter {
	return &Converter{pairs: pairs}
}

// Convert converts amount of from into to along hops. When from equals to
// the amount is returned untouched.
func (c *Converter) Convert(amount decimal.Decimal, from, to string, hops []domain.Hop, prices PriceTable, key PriceKey) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	if len(hops) == 0 {
		return decimal.Zero, fmt.Errorf("conversion: %s to %s: %w", from, to, domain.ErrNoRoute)
	}

	size := amount
	current := from
	var last string
	for _, h := range hops {
		last = h.Symbol()
		p, ok := prices.price(last, key)
		if !ok {
			return decimal.Zero, fmt.Errorf("conversion: %s: %w", last, domain.ErrMissingPrice)
		}
		price := decimal.NewFromFloat(p)
		switch current {
		case h.Base:
			size = size.Mul(price)
		case h.Quote:
			size = size.Div(price)
		default:
			return decimal.Zero, fmt.Errorf("conversion: hop %s does not touch %s: %w", last, current, domain.ErrNoRoute)
		}
		current = h.Other(current)
	}
	if current != to {
		return decimal.Zero, fmt.Errorf("conversion: path ends at %s, want %s: %w", current, to, domain.ErrNoRoute)
	}

	q, err := c.Tradable(last, size, 0)
	if err != nil {
		return decimal.Zero, err
	}
	return q, nil
}

// ConvertFloat is Convert for float inputs and outputs.
func (c *Converter) ConvertFloat(amount float64, from, to string, hops []domain.Hop, prices PriceTable, key PriceKey) (float64, error) {
	d, err := c.Convert(decimal.NewFromFloat(amount), from, to, hops, prices, key)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// Tradable subtracts ticks tick sizes from quantity and truncates the
// result down to a multiple of the pair's tick size, then to its quote
// precision.
func (c *Converter) Tradable(symbol string, quantity decimal.Decimal, ticks int) (decimal.Decimal, error) {
	p, ok := c.pairs[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("conversion: %s: %w", symbol, domain.ErrUnknownPair)
	}
	tick := decimal.NewFromFloat(p.TickSize)
	q := quantity
	if ticks != 0 {
		q = q.Sub(tick.Mul(decimal.NewFromInt(int64(ticks))))
	}
	if tick.IsPositive() {
		q = q.Sub(q.Mod(tick))
	}
	if p.QuotePrecision > 0 {
		q = q.Truncate(int32(p.QuotePrecision))
	}
	return q, nil
}

// FormatQuantity renders a quantity the way the venue expects it: fixed to
// the pair's quote precision with trailing zeros removed.
func (c *Converter) FormatQuantity(symbol string, quantity decimal.Decimal) string {
	prec := int32(8)
	if p, ok := c.pairs[symbol]; ok && p.QuotePrecision > 0 {
		prec = int32(p.QuotePrecision)
	}
	s := quantity.StringFixed(prec)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
