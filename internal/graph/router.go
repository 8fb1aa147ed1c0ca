package graph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// Router computes shortest pair-hop paths and memoizes them per scheme.
type Router struct {
	graph  *AssetGraph
	logger *slog.Logger

	mu    sync.Mutex
	cache domain.PathCache
}

// NewRouter creates a Router with an empty cache.
func NewRouter(g *AssetGraph, logger *slog.Logger) *Router {
	return NewRouterWithCache(g, nil, logger)
}

// NewRouterWithCache creates a Router seeded with a previously built cache.
func NewRouterWithCache(g *AssetGraph, cache domain.PathCache, logger *slog.Logger) *Router {
	if cache == nil {
		cache = make(domain.PathCache)
	}
	return &Router{
		graph:  g,
		logger: logger.With(slog.String("component", "router")),
		cache:  cache,
	}
}

// ShortestPath returns the hops from one asset to another under scheme.
// The result is empty when from == to or when to is unreachable. A path
// already cached for (to, from) is reused in reverse order.
func (r *Router) ShortestPath(from, to string, scheme domain.PriorityScheme) []domain.Hop {
	if from == to {
		return nil
	}

	r.mu.Lock()
	if hops, ok := r.cache.Lookup(scheme, from, to); ok {
		r.mu.Unlock()
		return hops
	}
	if back, ok := r.cache.Lookup(scheme, to, from); ok {
		hops := reverseHops(back)
		r.cache.Store(scheme, from, to, hops)
		r.mu.Unlock()
		return hops
	}
	r.mu.Unlock()

	hops := r.hopsFor(r.search(from, to, scheme))

	r.mu.Lock()
	r.cache.Store(scheme, from, to, hops)
	r.mu.Unlock()
	return hops
}

// search runs a breadth-first search returning the asset sequence from
// source to target, or nil when target is unreachable.
func (r *Router) search(from, to string, scheme domain.PriorityScheme) []string {
	queue := [][]string{{from}}
	visited := map[string]struct{}{from: {}}

	for len(queue) > 0 {
		path := queue[0]
		queue = queue[1:]

		next := r.graph.Connected(path[len(path)-1], scheme)
		for _, n := range next {
			if n == to {
				return appendCopy(path, to)
			}
		}
		for _, n := range next {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			queue = append(queue, appendCopy(path, n))
		}
	}
	return nil
}

func (r *Router) hopsFor(nodes []string) []domain.Hop {
	if len(nodes) < 2 {
		return nil
	}
	hops := make([]domain.Hop, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		h, ok := r.graph.HopBetween(nodes[i], nodes[i+1])
		if !ok {
			return nil
		}
		hops = append(hops, h)
	}
	return hops
}

// BuildAll fills the cache for every scheme and every ordered pair of
// distinct assets, then returns it. It stops early when ctx is cancelled.
func (r *Router) BuildAll(ctx context.Context, schemes ...domain.PriorityScheme) (domain.PathCache, error) {
	if len(schemes) == 0 {
		schemes = domain.PrioritySchemes
	}
	assets := r.graph.Assets()

	var unreachable int
	for _, scheme := range schemes {
		for _, from := range assets {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			for _, to := range assets {
				if from == to {
					continue
				}
				if len(r.ShortestPath(from, to, scheme)) == 0 {
					unreachable++
				}
			}
		}
		r.logger.Info("paths computed",
			slog.String("scheme", string(scheme)),
			slog.Int("assets", len(assets)),
		)
	}
	if unreachable > 0 {
		r.logger.Warn("unreachable asset pairs", slog.Int("count", unreachable))
	}
	return r.Cache(), nil
}

// Cache returns a deep copy of the memoized paths.
func (r *Router) Cache() domain.PathCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(domain.PathCache, len(r.cache))
	for scheme, froms := range r.cache {
		for from, tos := range froms {
			for to, hops := range tos {
				out.Store(scheme, from, to, append([]domain.Hop(nil), hops...))
			}
		}
	}
	return out
}

func reverseHops(hops []domain.Hop) []domain.Hop {
	out := make([]domain.Hop, len(hops))
	for i, h := range hops {
		out[len(hops)-1-i] = h
	}
	return out
}

func appendCopy(path []string, next string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, next)
}
