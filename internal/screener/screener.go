// Package screener selects the symbols worth trading from a bar dataset by
// running a boolean predicate over each symbol's bar window.
package screener

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// Predicate decides whether one symbol's bars, oldest first, qualify.
type Predicate func(symbol string, bars []domain.Bar) bool

// Filter evaluates pred for every symbol in dataset and returns the symbols
// it accepted, in order of first appearance. Evaluation runs on a bounded
// pool of goroutines; a cancelled ctx stops scheduling new symbols.
func Filter(ctx context.Context, pred Predicate, dataset domain.Dataset) ([]string, error) {
	if pred == nil {
		return nil, fmt.Errorf("screener: filter: nil predicate")
	}
	symbols := dataset.Symbols()
	series := dataset.BySymbol()
	accepted := make([]bool, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		bars := series[sym]
		sort.SliceStable(bars, func(a, b int) bool { return bars[a].Time.Before(bars[b].Time) })
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			accepted[i] = pred(sym, bars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("screener: filter: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("screener: filter: %w", err)
	}

	var out []string
	for i, ok := range accepted {
		if ok {
			out = append(out, symbols[i])
		}
	}
	return out, nil
}

// Intersect returns the symbols of downstream that are also in upstream
// and, when live is non-nil, in live. Order follows downstream.
func Intersect(downstream, upstream, live []string) []string {
	up := toSet(upstream)
	var lv map[string]struct{}
	if live != nil {
		lv = toSet(live)
	}
	var out []string
	seen := make(map[string]struct{}, len(downstream))
	for _, s := range downstream {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := up[s]; !ok {
			continue
		}
		if lv != nil {
			if _, ok := lv[s]; !ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}
