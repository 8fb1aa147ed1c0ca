package trader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cryptobot/internal/conversion"
	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// Wallet is the balance the trader moves on its next switch.
type Wallet struct {
	Asset     string
	Free      float64
	USDTValue float64
	Priority  domain.PriorityScheme
}

func newClientOrderID() string { return uuid.NewString() }

// BiggestWallet returns the free balance with the highest USDT value.
// Wallets worth more than FeesThreshold route by fees, smaller ones by
// wallet priority. Balances that cannot be valued are skipped.
func (e *Engine) BiggestWallet(ctx context.Context, table *conversion.Table) (Wallet, error) {
	balances, err := e.exchange.Balances(ctx)
	if err != nil {
		return Wallet{}, fmt.Errorf("fetching balances: %w", err)
	}
	paths, err := e.paths.Wait(ctx)
	if err != nil {
		return Wallet{}, err
	}

	var best Wallet
	found := false
	for _, b := range balances {
		if b.Free <= 0 {
			continue
		}
		value := b.Free
		if b.Asset != domain.USDT {
			hops, ok := paths.Lookup(domain.PriorityAccuracy, b.Asset, domain.USDT)
			if !ok {
				continue
			}
			v, err := e.converter.ConvertFloat(b.Free, b.Asset, domain.USDT, hops, table.Prices(), conversion.PriceClose)
			if err != nil {
				e.logger.Debug("balance not valued", slog.String("asset", b.Asset), slog.String("error", err.Error()))
				continue
			}
			value = v
		}
		if !found || value > best.USDTValue {
			best = Wallet{Asset: b.Asset, Free: b.Free, USDTValue: value}
			found = true
		}
	}
	if !found {
		return Wallet{}, fmt.Errorf("no valued balance: %w", domain.ErrNoData)
	}
	best.Priority = domain.PriorityWallet
	if best.USDTValue > e.cfg.FeesThreshold {
		best.Priority = domain.PriorityFees
	}
	return best, nil
}

// Trade converts the whole wallet into to, one market order per hop of
// the wallet's priority path. A failed hop aborts the trade and leaves
// the intermediate asset held. It returns the fill of the last hop.
func (e *Engine) Trade(ctx context.Context, wallet Wallet, to string, table *conversion.Table) (*domain.Fill, error) {
	paths, err := e.paths.Wait(ctx)
	if err != nil {
		return nil, err
	}
	hops, ok := paths.Lookup(wallet.Priority, wallet.Asset, to)
	if !ok || len(hops) == 0 {
		hops, ok = paths.Lookup(domain.PriorityAccuracy, wallet.Asset, to)
	}
	if !ok || len(hops) == 0 {
		return nil, fmt.Errorf("trade %s to %s: %w", wallet.Asset, to, domain.ErrNoRoute)
	}

	held := decimal.NewFromFloat(wallet.Free)
	current := wallet.Asset
	var last *domain.Fill
	for _, hop := range hops {
		symbol := hop.Symbol()
		var (
			side     domain.OrderSide
			notional decimal.Decimal
		)
		switch current {
		case hop.Quote:
			side, notional = domain.OrderSideBuy, held
		case hop.Base:
			side = domain.OrderSideSell
			notional, err = e.converter.Convert(held, current, hop.Quote, []domain.Hop{hop}, table.Prices(), conversion.PriceClose)
			if err != nil {
				return nil, fmt.Errorf("trade %s: %w", symbol, err)
			}
		default:
			return nil, fmt.Errorf("trade: hop %s does not touch %s: %w", symbol, current, domain.ErrNoRoute)
		}

		fill, err := e.placeWithRetry(ctx, symbol, side, notional)
		if err != nil {
			if current != wallet.Asset {
				e.from = current
			}
			return nil, fmt.Errorf("trade %s %s: %w", side, symbol, err)
		}
		e.recordFill(ctx, *fill)

		if side == domain.OrderSideBuy {
			held = decimal.NewFromFloat(fill.ExecutedQuantity)
		} else {
			held = decimal.NewFromFloat(fill.CummulativeQuoteQuantity)
		}
		current = hop.Other(current)
		last = fill
	}
	return last, nil
}

// placeWithRetry submits a market order for notional quote. When the venue
// reports an insufficient balance the quantity is reduced by 1, 2, 4 ...
// tick sizes, at most MaxRetries times.
func (e *Engine) placeWithRetry(ctx context.Context, symbol string, side domain.OrderSide, notional decimal.Decimal) (*domain.Fill, error) {
	ticks := 0
	for attempt := 0; ; attempt++ {
		qty, err := e.converter.Tradable(symbol, notional, ticks)
		if err != nil {
			return nil, err
		}
		if !qty.IsPositive() {
			return nil, fmt.Errorf("%s quantity %s: %w", symbol, qty.String(), domain.ErrInvalidOrder)
		}
		req := domain.OrderRequest{
			ClientOrderID: e.newID(),
			Symbol:        symbol,
			Side:          side,
			QuoteQuantity: e.converter.FormatQuantity(symbol, qty),
		}
		fill, err := e.exchange.PlaceMarketOrder(ctx, req)
		if err == nil {
			e.logger.Info("order filled",
				slog.String("symbol", symbol),
				slog.String("side", string(side)),
				slog.String("quote_quantity", req.QuoteQuantity),
				slog.Float64("price", fill.Price),
			)
			return fill, nil
		}
		if !domain.IsInsufficientBalance(err) || attempt >= e.cfg.MaxRetries {
			return nil, err
		}
		e.metrics.RecordRetry()
		if ticks == 0 {
			ticks = 1
		} else {
			ticks *= 2
		}
		e.logger.Debug("insufficient balance, retrying",
			slog.String("symbol", symbol),
			slog.Int("ticks", ticks),
		)
	}
}

// OrderBookTrigger reports whether symbol's book is tight at the top and
// deep in range: the best bid/ask spread is under MaxSpreadPercent and the
// full price range of the fetched depth exceeds MinRangePercent.
func (e *Engine) OrderBookTrigger(ctx context.Context, symbol string) (bool, error) {
	book, err := e.exchange.OrderBook(ctx, symbol, e.cfg.OrderBookDepth)
	if err != nil {
		return false, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return false, nil
	}
	minBid, maxBid := book.Bids[0].Price, book.Bids[0].Price
	for _, l := range book.Bids {
		minBid = min(minBid, l.Price)
		maxBid = max(maxBid, l.Price)
	}
	minAsk, maxAsk := book.Asks[0].Price, book.Asks[0].Price
	for _, l := range book.Asks {
		minAsk = min(minAsk, l.Price)
		maxAsk = max(maxAsk, l.Price)
	}
	if minAsk <= 0 || minBid <= 0 {
		return false, nil
	}
	spread := (minAsk - maxBid) / minAsk * 100
	rng := (maxAsk - minBid) / minBid * 100
	return spread < e.cfg.MaxSpreadPercent && rng > e.cfg.MinRangePercent, nil
}

func (e *Engine) recordFill(ctx context.Context, fill domain.Fill) {
	if e.fills == nil {
		return
	}
	if err := e.fills.InsertBatch(ctx, []domain.Fill{fill}); err != nil {
		e.logger.Warn("fill not recorded", slog.String("order_id", fill.OrderID), slog.String("error", err.Error()))
	}
}
