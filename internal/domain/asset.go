package domain

import "strings"

// USDT is the asset every price in the conversion table is normalized to.
const USDT = "USDT"

// Pair is a tradable market between a base and a quote asset, as published
// by the exchange metadata endpoint.
type Pair struct {
	Symbol         string  `json:"symbol"`
	BaseAsset      string  `json:"base_asset"`
	QuoteAsset     string  `json:"quote_asset"`
	TickSize       float64 `json:"tick_size"`
	StepSize       float64 `json:"step_size"`
	MinPrice       float64 `json:"min_price"`
	MaxPrice       float64 `json:"max_price"`
	QuotePrecision int     `json:"quote_precision"`
}

// Hop is one pair traversed while converting between two assets. Base and
// Quote keep the pair's own orientation regardless of travel direction.
type Hop struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Symbol returns the exchange symbol of the hop's pair.
func (h Hop) Symbol() string { return h.Base + h.Quote }

// Other returns the asset on the far side of the hop from asset.
func (h Hop) Other(asset string) string {
	if asset == h.Base {
		return h.Quote
	}
	return h.Base
}

// PriorityScheme names an ordered preference list of intermediate assets.
type PriorityScheme string

const (
	PriorityAccuracy PriorityScheme = "accuracy"
	PriorityFees     PriorityScheme = "fees"
	PriorityWallet   PriorityScheme = "wallet"
)

// PrioritySchemes lists every scheme in a stable order.
var PrioritySchemes = []PriorityScheme{PriorityAccuracy, PriorityFees, PriorityWallet}

// PathCache maps scheme -> from -> to -> hops.
type PathCache map[PriorityScheme]map[string]map[string][]Hop

// Lookup returns the cached hops for (from, to) under scheme.
func (c PathCache) Lookup(scheme PriorityScheme, from, to string) ([]Hop, bool) {
	froms, ok := c[scheme]
	if !ok {
		return nil, false
	}
	tos, ok := froms[from]
	if !ok {
		return nil, false
	}
	hops, ok := tos[to]
	return hops, ok
}

// Store records hops for (from, to) under scheme.
func (c PathCache) Store(scheme PriorityScheme, from, to string, hops []Hop) {
	froms, ok := c[scheme]
	if !ok {
		froms = make(map[string]map[string][]Hop)
		c[scheme] = froms
	}
	tos, ok := froms[from]
	if !ok {
		tos = make(map[string][]Hop)
		froms[from] = tos
	}
	tos[to] = hops
}

// PairIndex is exchange metadata keyed by symbol.
type PairIndex map[string]Pair

// NewPairIndex indexes pairs by symbol.
func NewPairIndex(pairs []Pair) PairIndex {
	idx := make(PairIndex, len(pairs))
	for _, p := range pairs {
		idx[p.Symbol] = p
	}
	return idx
}

// Assets returns the base and quote assets of symbol.
func (idx PairIndex) Assets(symbol string) (base, quote string, ok bool) {
	p, ok := idx[strings.ToUpper(symbol)]
	if !ok {
		return "", "", false
	}
	return p.BaseAsset, p.QuoteAsset, true
}
