package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"prime_pips/internal/models"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimulatedStaysInBand(t *testing.T) {
	src := NewSimulated(42)
	prev := DefaultTickers()

	for round := 0; round < 50; round++ {
		next, err := src.Next(context.Background(), prev)
		require.NoError(t, err)
		require.Len(t, next, len(prev))
		for i := range next {
			lo := prev[i].Price.Mul(dec("0.99"))
			hi := prev[i].Price.Mul(dec("1.01"))
			assert.True(t, next[i].Price.GreaterThanOrEqual(lo.Round(8).Sub(dec("0.00000001"))), "price fell more than 1 percent")
			assert.True(t, next[i].Price.LessThanOrEqual(hi.Round(8).Add(dec("0.00000001"))), "price rose more than 1 percent")
			assert.True(t, next[i].Change.Abs().LessThanOrEqual(dec("5")))
			assert.Equal(t, prev[i].Pair, next[i].Pair)
		}
		prev = next
	}
}

func TestFeedRefreshNotifiesSubscribers(t *testing.T) {
	feed := NewFeed(NewSimulated(1), time.Second, zaptest.NewLogger(t))

	var got [][]Ticker
	feed.Subscribe(func(ts []Ticker) { got = append(got, ts) })

	require.NoError(t, feed.Refresh(context.Background()))
	require.Len(t, got, 1)
	assert.Len(t, got[0], 4)
	assert.False(t, feed.UpdatedAt().IsZero())

	btc, ok := feed.Quote("btc")
	require.True(t, ok)
	assert.True(t, btc.Equal(got[0][0].Price))

	_, ok = feed.Quote("DOGE")
	assert.False(t, ok)
}

type failingSource struct{}

func (failingSource) Name() string { return "FAILING" }
func (failingSource) Next(context.Context, []Ticker) ([]Ticker, error) {
	return nil, errors.New("exchange down")
}

func TestFeedKeepsPricesOnFailure(t *testing.T) {
	feed := NewFeed(failingSource{}, time.Millisecond, zaptest.NewLogger(t))
	before := feed.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	feed.Run(ctx)

	assert.Equal(t, before, feed.Snapshot())
}

func TestBinanceSource(t *testing.T) {
	var mu sync.Mutex
	var asked []string
	src := &Binance{fetch: func(_ context.Context, symbol string) (*binance.PriceChangeStats, error) {
		mu.Lock()
		asked = append(asked, symbol)
		mu.Unlock()
		if symbol == "ADAUSDT" {
			return &binance.PriceChangeStats{Symbol: symbol, LastPrice: "0.5", PriceChangePercent: "-1.25", QuoteVolume: "bad"}, nil
		}
		return &binance.PriceChangeStats{Symbol: symbol, LastPrice: "100.5", PriceChangePercent: "3.10", QuoteVolume: "2500000"}, nil
	}}

	next, err := src.Next(context.Background(), DefaultTickers())
	require.NoError(t, err)
	assert.Len(t, asked, 4)
	assert.True(t, next[0].Price.Equal(dec("100.5")))
	assert.True(t, next[0].Volume.Equal(dec("2500000")))
	assert.True(t, next[2].Change.Equal(dec("-1.25")))
	assert.True(t, next[2].Volume.Equal(dec("150000000")), "unparseable volume keeps the old one")

	src.fetch = func(context.Context, string) (*binance.PriceChangeStats, error) {
		return nil, errors.New("418 I'm a teapot")
	}
	_, err = src.Next(context.Background(), DefaultTickers())
	assert.Error(t, err)
}

func TestPlaceOrder(t *testing.T) {
	feed := NewFeed(NewSimulated(1), time.Second, zaptest.NewLogger(t))
	user := models.User{ID: "u1"}

	o, err := feed.PlaceOrder(user, OrderInput{Pair: "btc/usdt", Side: "BUY", Amount: dec("0.1"), Price: dec("65000")})
	require.NoError(t, err)
	assert.Equal(t, "BTC/USDT", o.Pair)
	assert.Equal(t, SideBuy, o.Side)
	assert.True(t, o.Total.Equal(dec("6500")))
	assert.Equal(t, "BUY order for 0.1 BTC at $65000 (Total: $6500.00)", o.Summary)

	cases := map[string]OrderInput{
		"missing amount": {Pair: "BTC/USDT", Side: SideBuy, Price: dec("1")},
		"negative price": {Pair: "BTC/USDT", Side: SideSell, Amount: dec("1"), Price: dec("-1")},
		"unknown pair":   {Pair: "DOGE/USDT", Side: SideBuy, Amount: dec("1"), Price: dec("1")},
		"unknown side":   {Pair: "BTC/USDT", Side: "hold", Amount: dec("1"), Price: dec("1")},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := feed.PlaceOrder(user, in)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestVolumeLabel(t *testing.T) {
	board := DefaultTickers()
	assert.Equal(t, "1.2B", board[0].VolumeLabel())
	assert.Equal(t, "800M", board[1].VolumeLabel())
	assert.Equal(t, "2.5K", Ticker{Volume: dec("2500")}.VolumeLabel())
}
