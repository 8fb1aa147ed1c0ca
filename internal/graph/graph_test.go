package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/cryptobot/internal/domain"
)

func TestReorderKeepsUnprioritizedSlots(t *testing.T) {
	got := reorder([]string{"ADA", "ETH", "XRP", "USDT", "BTC"}, Priority(domain.PriorityAccuracy))
	assert.Equal(t, []string{"ADA", "USDT", "XRP", "BTC", "ETH"}, got)
}

func TestPriorityAppendsFallback(t *testing.T) {
	assert.Equal(t, []string{"BUSD", "BTC", "BNB", "ETH", "USDT", "BRL", "AUD"}, Priority(domain.PriorityFees))
}

func TestConnectedDeduplicates(t *testing.T) {
	g := New([]domain.Pair{pair("ETH", "BTC"), pair("BTC", "ETH"), pair("BNB", "BTC")})
	assert.ElementsMatch(t, []string{"ETH", "BNB"}, g.Connected("BTC", domain.PriorityAccuracy))
}

func TestHopBetweenFirstPairWins(t *testing.T) {
	g := New([]domain.Pair{pair("ETH", "BTC"), pair("BTC", "ETH")})
	h, ok := g.HopBetween("BTC", "ETH")
	require.True(t, ok)
	assert.Equal(t, domain.Hop{Base: "ETH", Quote: "BTC"}, h)
}

func TestPathCell(t *testing.T) {
	c := NewPathCell()

	_, err := c.Get()
	assert.ErrorIs(t, err, domain.ErrPathsNotReady)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	first := domain.PathCache{}
	first.Store(domain.PriorityAccuracy, "ETH", "USDT", []domain.Hop{{Base: "ETH", Quote: "USDT"}})
	done := make(chan struct{})
	go func() {
		defer close(done)
		got, err := c.Wait(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, first, got)
	}()

	assert.True(t, c.Set(first, nil))
	assert.False(t, c.Set(domain.PathCache{}, nil))
	<-done
}
