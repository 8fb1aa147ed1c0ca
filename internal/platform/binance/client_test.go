package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/crypto"
	"github.com/alanyoungcy/cryptobot/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, &crypto.HMACAuth{Key: "key", Secret: "secret"})
}

func TestExchangeInfoKeepsTradingPairs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/exchangeInfo", r.URL.Path)
		w.Write([]byte(`{"symbols":[
			{"symbol":"ETHBTC","status":"TRADING","baseAsset":"ETH","quoteAsset":"BTC","quotePrecision":8,"quoteAssetPrecision":8,
			 "filters":[{"filterType":"PRICE_FILTER","minPrice":"0.00001","maxPrice":"922327","tickSize":"0.00001"},
			            {"filterType":"LOT_SIZE","stepSize":"0.0001"}]},
			{"symbol":"OLDBTC","status":"BREAK","baseAsset":"OLD","quoteAsset":"BTC","filters":[]}
		]}`))
	})

	pairs, err := c.ExchangeInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, domain.Pair{
		Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC",
		TickSize: 0.00001, StepSize: 0.0001, MinPrice: 0.00001, MaxPrice: 922327, QuotePrecision: 8,
	}, pairs[0])
}

func TestTickers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		w.Write([]byte(`[{"symbol":"BTCUSDT","priceChange":"100","priceChangePercent":"0.2","weightedAvgPrice":"50010",
			"prevClosePrice":"49900","lastPrice":"50000","lastQty":"0.1","bidPrice":"49999","bidQty":"2","askPrice":"50001",
			"askQty":"3","openPrice":"49900","highPrice":"51000","lowPrice":"49000","volume":"100","quoteVolume":"5000000",
			"openTime":1709208000000,"closeTime":1709294400000,"firstId":1,"lastId":10,"count":10}]`))
	})

	tickers, err := c.Tickers(context.Background())
	require.NoError(t, err)
	require.Len(t, tickers, 1)
	tk := tickers[0]
	assert.Equal(t, "BTCUSDT", tk.Symbol)
	assert.Equal(t, 50000.0, tk.Close)
	assert.Equal(t, 49900.0, tk.Open)
	assert.Equal(t, 5e6, tk.RollingQuoteVolume)
	assert.Equal(t, int64(10), tk.Count)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), tk.Date)
}

func TestKlinesPagesBackwards(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		calls = append(calls, q.Get("limit")+"@"+q.Get("endTime"))
		assert.Equal(t, "1m", q.Get("interval"))
		switch q.Get("endTime") {
		case "1709294400000":
			rows := "["
			for i := 0; i < 1000; i++ {
				if i > 0 {
					rows += ","
				}
				rows += `[` + strconv.FormatInt(1709234460000+int64(i)*60000, 10) + `,"1","2","0.5","1.5","10",0,"15",3,"0","0","0"]`
			}
			w.Write([]byte(rows + "]"))
		default:
			w.Write([]byte(`[[1709234400000,"1","2","0.5","1.4","10",0,"14",2,"0","0","0"]]`))
		}
	})

	end := time.UnixMilli(1709294400000)
	bars, err := c.Klines(context.Background(), "BTCUSDT", time.Minute, 1001, end)
	require.NoError(t, err)
	require.Len(t, bars, 1001)
	assert.Equal(t, []string{"1000@1709294400000", "1@1709234459999"}, calls)
	assert.Equal(t, 1.4, bars[0].Close)
	assert.Equal(t, int64(2), bars[0].Count)
	assert.Equal(t, 15.0, bars[1].QuoteVolume)
	assert.True(t, bars[0].Time.Before(bars[1].Time))
}

func TestKlinesRejectsUnknownInterval(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Klines(context.Background(), "BTCUSDT", 7*time.Second, 10, time.Time{})
	assert.Error(t, err)
}

func TestBalancesIsSigned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get(crypto.APIKeyHeader))
		q := r.URL.Query()
		assert.NotEmpty(t, q.Get("timestamp"))
		assert.Len(t, q.Get("signature"), 64)
		w.Write([]byte(`{"canTrade":true,"balances":[{"asset":"BTC","free":"0.5","locked":"0.1"}]}`))
	})

	balances, err := c.Balances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Balance{{Asset: "BTC", Free: 0.5, Locked: 0.1}}, balances)
}

func TestSignedEndpointNeedsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Balances(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestPlaceMarketOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "ETHBTC", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "0.02", q.Get("quoteOrderQty"))
		assert.Equal(t, "cid", q.Get("newClientOrderId"))
		w.Write([]byte(`{"symbol":"ETHBTC","orderId":42,"clientOrderId":"cid","transactTime":1709294400000,
			"price":"0.00000000","executedQty":"0.2857","cummulativeQuoteQty":"0.02","status":"FILLED","side":"BUY",
			"fills":[{"price":"0.07","qty":"0.2"},{"price":"0.0701","qty":"0.0857"}]}`))
	})

	fill, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "cid", Symbol: "ETHBTC", Side: domain.OrderSideBuy, QuoteQuantity: "0.02",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", fill.OrderID)
	assert.Equal(t, domain.OrderSideBuy, fill.Side)
	assert.InDelta(t, 0.2857, fill.ExecutedQuantity, 1e-12)
	assert.InDelta(t, 0.02, fill.CummulativeQuoteQuantity, 1e-12)
	assert.InDelta(t, (0.07*0.2+0.0701*0.0857)/0.2857, fill.Price, 1e-12)
}

func TestOrderErrorsAreTyped(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   domain.ExchangeErrorKind
	}{
		{"insufficient balance", http.StatusBadRequest, `{"code":-2010,"msg":"Account has insufficient balance for requested action."}`, domain.KindInsufficientBalance},
		{"rate limited", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`, domain.KindRateLimited},
		{"banned", http.StatusTeapot, `{"code":-1003,"msg":"IP banned."}`, domain.KindRateLimited},
		{"bad symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, domain.KindNotFound},
		{"other", http.StatusBadRequest, `{"code":-1013,"msg":"Filter failure: NOTIONAL"}`, domain.KindOther},
		{"plain body", http.StatusBadGateway, `bad gateway`, domain.KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.PlaceMarketOrder(context.Background(), domain.OrderRequest{Symbol: "ETHBTC", Side: domain.OrderSideBuy, QuoteQuantity: "1"})
			require.Error(t, err)
			kind, ok := domain.ExchangeErrorKindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)

			var ee *domain.ExchangeError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.status, ee.StatusCode)
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(domain.NewExchangeError(domain.KindRateLimited, -1003, 429, "")))
	assert.True(t, IsRetryable(domain.NewExchangeError(domain.KindOther, 0, 503, "")))
	assert.False(t, IsRetryable(domain.NewExchangeError(domain.KindInsufficientBalance, -2010, 400, "")))
	assert.False(t, IsRetryable(errors.New("boom")))
}

func TestUnauthorizedWrapsSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key, IP, or permissions for action."}`))
	})
	_, err := c.Balances(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestOrderBook(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5000", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"lastUpdateId":1,"bids":[["99.0","1.5"]],"asks":[["99.5","2"],["100","3"]]}`))
	})

	book, err := c.OrderBook(context.Background(), "SOLUSDT", 5000)
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", book.Symbol)
	assert.Equal(t, []domain.BookLevel{{Price: 99, Volume: 1.5}}, book.Bids)
	assert.Len(t, book.Asks, 2)
}

func TestIntervalString(t *testing.T) {
	s, err := IntervalString(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "1m", s)
	s, err = IntervalString(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "1d", s)
	_, err = IntervalString(5 * time.Second)
	assert.Error(t, err)
}

type recordingLimiter struct {
	keys    []string
	weights []int
	err     error
}

func (l *recordingLimiter) Allow(context.Context, string, int) (bool, error) { return true, nil }

func (l *recordingLimiter) Wait(_ context.Context, key string, weight int) error {
	l.keys = append(l.keys, key)
	l.weights = append(l.weights, weight)
	return l.err
}

func TestLimiterIsChargedPerEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	lim := &recordingLimiter{}
	c := NewClient(srv.URL, nil, WithLimiter(lim))
	_, err := c.Tickers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL}, lim.keys)
	assert.Equal(t, []int{80}, lim.weights)

	lim.err = context.DeadlineExceeded
	_, err = c.Tickers(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
