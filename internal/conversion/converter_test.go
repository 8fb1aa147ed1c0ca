package conversion

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

func testPairs() domain.PairIndex {
	return domain.NewPairIndex([]domain.Pair{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", TickSize: 0.01, StepSize: 0.00001, QuotePrecision: 8},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", TickSize: 0.000001, StepSize: 0.0001, QuotePrecision: 8},
		{Symbol: "BTCBUSD", BaseAsset: "BTC", QuoteAsset: "BUSD", TickSize: 0.01, StepSize: 0.00001, QuotePrecision: 8},
	})
}

var ethToUSDT = []domain.Hop{{Base: "ETH", Quote: "BTC"}, {Base: "BTC", Quote: "USDT"}}

func TestConvertIdentity(t *testing.T) {
	c := NewConverter(testPairs())
	amount := decimal.RequireFromString("12.3456789")

	got, err := c.Convert(amount, "ETH", "ETH", nil, nil, PriceClose)
	require.NoError(t, err)
	assert.True(t, amount.Equal(got))
}

func TestConvertThroughIntermediate(t *testing.T) {
	c := NewConverter(testPairs())
	prices := PriceTable{"BTCUSDT": {Close: 50000}, "ETHBTC": {Close: 0.07}}

	got, err := c.Convert(decimal.NewFromInt(1), "ETH", "USDT", ethToUSDT, prices, PriceClose)
	require.NoError(t, err)
	assert.Equal(t, "3500", got.String())
}

func TestConvertDividesAgainstBase(t *testing.T) {
	c := NewConverter(testPairs())
	prices := PriceTable{"BTCUSDT": {Close: 50000}, "ETHBTC": {Close: 0.07}}
	back := []domain.Hop{{Base: "BTC", Quote: "USDT"}, {Base: "ETH", Quote: "BTC"}}

	got, err := c.Convert(decimal.NewFromInt(3500), "USDT", "ETH", back, prices, PriceClose)
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())
}

func TestConvertTruncatesToLastTick(t *testing.T) {
	c := NewConverter(testPairs())
	prices := PriceTable{"BTCUSDT": {Close: 50000.129, Open: 40000}}

	got, err := c.Convert(decimal.NewFromInt(1), "BTC", "USDT", []domain.Hop{{Base: "BTC", Quote: "USDT"}}, prices, PriceClose)
	require.NoError(t, err)
	assert.Equal(t, "50000.12", got.String())

	open, err := c.Convert(decimal.NewFromInt(2), "BTC", "USDT", []domain.Hop{{Base: "BTC", Quote: "USDT"}}, prices, PriceOpen)
	require.NoError(t, err)
	assert.Equal(t, "80000", open.String())
}

func TestConvertMissingPrice(t *testing.T) {
	c := NewConverter(testPairs())
	_, err := c.Convert(decimal.NewFromInt(1), "ETH", "USDT", ethToUSDT, PriceTable{"ETHBTC": {Close: 0.07}}, PriceClose)
	assert.ErrorIs(t, err, domain.ErrMissingPrice)
}

func TestConvertWithoutPath(t *testing.T) {
	c := NewConverter(testPairs())
	_, err := c.Convert(decimal.NewFromInt(1), "ETH", "USDT", nil, PriceTable{}, PriceClose)
	assert.ErrorIs(t, err, domain.ErrNoRoute)
}

func TestTradableSubtractsTicks(t *testing.T) {
	c := NewConverter(testPairs())

	got, err := c.Tradable("BTCUSDT", decimal.RequireFromString("10.005"), 2)
	require.NoError(t, err)
	assert.Equal(t, "9.98", got.String())

	_, err = c.Tradable("NOPE", decimal.NewFromInt(1), 0)
	assert.ErrorIs(t, err, domain.ErrUnknownPair)
}

func TestFormatQuantity(t *testing.T) {
	c := NewConverter(testPairs())
	assert.Equal(t, "3500", c.FormatQuantity("BTCUSDT", decimal.NewFromInt(3500)))
	assert.Equal(t, "0.0701", c.FormatQuantity("ETHBTC", decimal.RequireFromString("0.070100")))
}
