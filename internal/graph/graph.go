// Package graph models the exchange as an undirected graph of assets joined
// by tradable pairs and answers shortest-path routing queries over it.
package graph

import (
	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// fallbackPriority is appended to every scheme.
var fallbackPriority = []string{"BRL", "AUD"}

var schemePriority = map[domain.PriorityScheme][]string{
	domain.PriorityAccuracy: {"USDT", "BTC", "BUSD", "ETH", "BNB"},
	domain.PriorityFees:     {"BUSD", "BTC", "BNB", "ETH", "USDT"},
	domain.PriorityWallet:   {"BTC", "ETH", "BUSD", "BNB", "USDT"},
}

// Priority returns the ordered preference list for scheme. Unknown schemes
// get only the fallback assets.
func Priority(scheme domain.PriorityScheme) []string {
	base := schemePriority[scheme]
	out := make([]string, 0, len(base)+len(fallbackPriority))
	out = append(out, base...)
	return append(out, fallbackPriority...)
}

type assetPair [2]string

// AssetGraph is built once from exchange metadata and is read-only after.
type AssetGraph struct {
	pairs     []domain.Pair
	assets    []string
	neighbors map[string][]string
	hops      map[assetPair]domain.Hop
	byBase    map[string][]domain.Pair
}

// New builds the graph. Pair order matters: when two pairs join the same
// assets, the first one listed is the one routed through.
func New(pairs []domain.Pair) *AssetGraph {
	g := &AssetGraph{
		pairs:     append([]domain.Pair(nil), pairs...),
		neighbors: make(map[string][]string),
		hops:      make(map[assetPair]domain.Hop),
		byBase:    make(map[string][]domain.Pair),
	}

	quotedBy := make(map[string][]string)
	basedOn := make(map[string][]string)
	seenAsset := make(map[string]struct{})
	addAsset := func(a string) {
		if _, ok := seenAsset[a]; ok {
			return
		}
		seenAsset[a] = struct{}{}
		g.assets = append(g.assets, a)
	}

	for _, p := range pairs {
		addAsset(p.BaseAsset)
		addAsset(p.QuoteAsset)
		quotedBy[p.QuoteAsset] = append(quotedBy[p.QuoteAsset], p.BaseAsset)
		basedOn[p.BaseAsset] = append(basedOn[p.BaseAsset], p.QuoteAsset)
		g.byBase[p.BaseAsset] = append(g.byBase[p.BaseAsset], p)

		hop := domain.Hop{Base: p.BaseAsset, Quote: p.QuoteAsset}
		for _, k := range []assetPair{{p.BaseAsset, p.QuoteAsset}, {p.QuoteAsset, p.BaseAsset}} {
			if _, ok := g.hops[k]; !ok {
				g.hops[k] = hop
			}
		}
	}

	for _, a := range g.assets {
		seen := make(map[string]struct{})
		var out []string
		for _, n := range append(append([]string(nil), quotedBy[a]...), basedOn[a]...) {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
		g.neighbors[a] = out
	}
	return g
}

// Assets returns every asset in order of first appearance.
func (g *AssetGraph) Assets() []string {
	return append([]string(nil), g.assets...)
}

// Pairs returns the pairs the graph was built from.
func (g *AssetGraph) Pairs() []domain.Pair {
	return append([]domain.Pair(nil), g.pairs...)
}

// PairsWithBase returns the pairs whose base asset is asset.
func (g *AssetGraph) PairsWithBase(asset string) []domain.Pair {
	return g.byBase[asset]
}

// HopBetween returns the pair joining a and b in either orientation.
func (g *AssetGraph) HopBetween(a, b string) (domain.Hop, bool) {
	h, ok := g.hops[assetPair{a, b}]
	return h, ok
}

// Connected returns the assets sharing a pair with asset, reordered so the
// slots holding prioritized assets are refilled in priority order while
// every other asset keeps its position.
func (g *AssetGraph) Connected(asset string, scheme domain.PriorityScheme) []string {
	return reorder(g.neighbors[asset], Priority(scheme))
}

func reorder(connected, priority []string) []string {
	present := make(map[string]struct{}, len(connected))
	for _, a := range connected {
		present[a] = struct{}{}
	}
	rank := make(map[string]struct{})
	var prioritized []string
	for _, a := range priority {
		if _, ok := present[a]; !ok {
			continue
		}
		if _, dup := rank[a]; dup {
			continue
		}
		rank[a] = struct{}{}
		prioritized = append(prioritized, a)
	}

	out := make([]string, len(connected))
	next := 0
	for i, a := range connected {
		if _, ok := rank[a]; ok {
			out[i] = prioritized[next]
			next++
			continue
		}
		out[i] = a
	}
	return out
}
