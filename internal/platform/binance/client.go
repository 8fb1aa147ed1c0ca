// Package binance is the REST and websocket adapter for the Binance spot
// API. Client implements domain.Exchange and domain.KlineSource.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/cryptobot/internal/crypto"
	"github.com/alanyoungcy/cryptobot/internal/domain"
)

// DefaultBaseURL is the spot REST API root.
const DefaultBaseURL = "https://api.binance.com"

// maxKlineLimit is the largest page /api/v3/klines returns.
const maxKlineLimit = 1000

// Venue error codes the client classifies.
const (
	codeInsufficientBalance = -2010
	codeTooManyRequests     = -1003
	codeInvalidSymbol       = -1121
)

// Client is the REST client for the spot API. Public market data needs no
// credentials; account and order endpoints require an HMACAuth.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
	recvWindow time.Duration
	limiter    domain.RateLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithRecvWindow sets the recvWindow sent with signed requests.
func WithRecvWindow(d time.Duration) Option { return func(c *Client) { c.recvWindow = d } }

// WithLimiter makes every request wait for its request weight on limiter
// before it is sent. The limiter key is the API host.
func WithLimiter(l domain.RateLimiter) Option { return func(c *Client) { c.limiter = l } }

// endpointWeight is the request weight the venue charges per path.
var endpointWeight = map[string]int{
	"/api/v3/exchangeInfo": 20,
	"/api/v3/ticker/24hr":  80,
	"/api/v3/klines":       2,
	"/api/v3/account":      20,
	"/api/v3/order":        1,
	"/api/v3/depth":        5,
}

// NewClient creates a REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com". auth may be nil
// for market-data-only use.
func NewClient(baseURL string, auth *crypto.HMACAuth, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		hmacAuth:   auth,
		recvWindow: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExchangeInfo returns every pair currently trading.
func (c *Client) ExchangeInfo(ctx context.Context) ([]domain.Pair, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v3/exchangeInfo", nil, false)
	if err != nil {
		return nil, fmt.Errorf("binance: exchange info: %w", err)
	}

	var info APIExchangeInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return nil, fmt.Errorf("binance: decode exchange info: %w", err)
	}

	pairs := make([]domain.Pair, 0, len(info.Symbols))
	for i := range info.Symbols {
		if info.Symbols[i].Status != "TRADING" {
			continue
		}
		pairs = append(pairs, info.Symbols[i].ToDomainPair())
	}
	return pairs, nil
}

// Tickers returns the 24h rolling statistics of every symbol.
func (c *Client) Tickers(ctx context.Context) ([]domain.Ticker, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v3/ticker/24hr", nil, false)
	if err != nil {
		return nil, fmt.Errorf("binance: tickers: %w", err)
	}

	var apiTickers []APITicker
	if err := json.Unmarshal(respBody, &apiTickers); err != nil {
		return nil, fmt.Errorf("binance: decode tickers: %w", err)
	}

	tickers := make([]domain.Ticker, 0, len(apiTickers))
	for i := range apiTickers {
		tickers = append(tickers, apiTickers[i].ToDomainTicker())
	}
	return tickers, nil
}

// Klines returns up to limit bars of symbol ending at end, oldest first.
// Limits above one page are fetched backwards page by page.
func (c *Client) Klines(ctx context.Context, symbol string, interval time.Duration, limit int, end time.Time) ([]domain.Bar, error) {
	iv, err := IntervalString(interval)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
	}

	var pages [][]domain.Bar
	remaining := limit
	endMs := end.UnixMilli()
	for remaining > 0 {
		page := min(remaining, maxKlineLimit)
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", iv)
		params.Set("limit", strconv.Itoa(page))
		if !end.IsZero() || len(pages) > 0 {
			params.Set("endTime", strconv.FormatInt(endMs, 10))
		}

		respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v3/klines", params, false)
		if err != nil {
			return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
		}
		var rows []APIKline
		if err := json.Unmarshal(respBody, &rows); err != nil {
			return nil, fmt.Errorf("binance: decode klines %s: %w", symbol, err)
		}
		if len(rows) == 0 {
			break
		}

		bars := make([]domain.Bar, 0, len(rows))
		for i := range rows {
			bars = append(bars, rows[i].ToDomainBar(symbol))
		}
		pages = append(pages, bars)
		remaining -= len(rows)
		endMs = rows[0].OpenTime - 1
		if len(rows) < page {
			break
		}
	}

	var out []domain.Bar
	for i := len(pages) - 1; i >= 0; i-- {
		out = append(out, pages[i]...)
	}
	return out, nil
}

// Balances returns the account's balances.
func (c *Client) Balances(ctx context.Context) ([]domain.Balance, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, true)
	if err != nil {
		return nil, fmt.Errorf("binance: account: %w", err)
	}

	var account APIAccount
	if err := json.Unmarshal(respBody, &account); err != nil {
		return nil, fmt.Errorf("binance: decode account: %w", err)
	}

	balances := make([]domain.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		balances = append(balances, domain.Balance{
			Asset:  b.Asset,
			Free:   parseFloat(b.Free),
			Locked: parseFloat(b.Locked),
		})
	}
	return balances, nil
}

// PlaceMarketOrder submits a market order sized by quote quantity and
// waits for the FULL acknowledgement.
func (c *Client) PlaceMarketOrder(ctx context.Context, req domain.OrderRequest) (*domain.Fill, error) {
	if req.Symbol == "" || req.QuoteQuantity == "" {
		return nil, fmt.Errorf("binance: place order: %w", domain.ErrInvalidOrder)
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", req.QuoteQuantity)
	params.Set("newOrderRespType", "FULL")
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/v3/order", params, true)
	if err != nil {
		return nil, fmt.Errorf("binance: place order %s %s: %w", req.Side, req.Symbol, err)
	}

	var order APIOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("binance: decode order: %w", err)
	}
	fill := order.ToDomainFill()
	if fill.Side == "" {
		fill.Side = req.Side
	}
	return &fill, nil
}

// OrderBook returns up to limit levels per side of symbol's book.
func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v3/depth", params, false)
	if err != nil {
		return nil, fmt.Errorf("binance: depth %s: %w", symbol, err)
	}

	var depth APIDepth
	if err := json.Unmarshal(respBody, &depth); err != nil {
		return nil, fmt.Errorf("binance: decode depth: %w", err)
	}
	book := depth.ToDomainOrderBook(symbol)
	return &book, nil
}

// IntervalString maps a bar interval to the API's interval code.
func IntervalString(d time.Duration) (string, error) {
	switch d {
	case time.Second:
		return "1s", nil
	case time.Minute:
		return "1m", nil
	case 3 * time.Minute:
		return "3m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case 30 * time.Minute:
		return "30m", nil
	case time.Hour:
		return "1h", nil
	case 2 * time.Hour:
		return "2h", nil
	case 4 * time.Hour:
		return "4h", nil
	case 6 * time.Hour:
		return "6h", nil
	case 8 * time.Hour:
		return "8h", nil
	case 12 * time.Hour:
		return "12h", nil
	case 24 * time.Hour:
		return "1d", nil
	case 72 * time.Hour:
		return "3d", nil
	case 7 * 24 * time.Hour:
		return "1w", nil
	}
	return "", fmt.Errorf("unsupported kline interval %s", d)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, optionally signs, sends, and reads an HTTP request. It
// returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := ""
	if signed {
		if c.hmacAuth == nil {
			return nil, fmt.Errorf("signed endpoint %s: %w", path, domain.ErrUnauthorized)
		}
		query = c.hmacAuth.Sign(params, c.recvWindow)
	} else if len(params) > 0 {
		query = params.Encode()
	}

	if c.limiter != nil {
		weight, ok := endpointWeight[path]
		if !ok {
			weight = 1
		}
		if err := c.limiter.Wait(ctx, c.baseURL, weight); err != nil {
			return nil, fmt.Errorf("rate limit %s: %w", path, err)
		}
	}

	target := c.baseURL + path
	if query != "" {
		target += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.Headers() {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx responses to *domain.ExchangeError, using
// the venue error code when the body carries one.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Msg == "" {
		apiErr = APIError{Msg: strings.TrimSpace(string(body))}
	}

	kind := domain.KindOther
	switch {
	case apiErr.Code == codeInsufficientBalance:
		kind = domain.KindInsufficientBalance
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusTeapot, apiErr.Code == codeTooManyRequests:
		kind = domain.KindRateLimited
	case statusCode == http.StatusNotFound, apiErr.Code == codeInvalidSymbol:
		kind = domain.KindNotFound
	}

	ee := domain.NewExchangeError(kind, apiErr.Code, statusCode, apiErr.Msg)
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		ee.Cause = domain.ErrUnauthorized
	}
	return ee
}

// IsRetryable reports whether err is worth retrying after a delay.
func IsRetryable(err error) bool {
	if domain.IsRateLimited(err) {
		return true
	}
	var ee *domain.ExchangeError
	return errors.As(err, &ee) && ee.StatusCode >= 500
}
