package market

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Source produces the next set of tickers from the previous one.
type Source interface {
	Name() string
	Next(ctx context.Context, prev []Ticker) ([]Ticker, error)
}

// Simulated nudges each price by up to ±1% and draws a fresh 24h change in ±5%.
type Simulated struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(seed int64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed))}
}

func (s *Simulated) Name() string { return "SIMULATED" }

func (s *Simulated) Next(_ context.Context, prev []Ticker) ([]Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Ticker, len(prev))
	for i, t := range prev {
		move := (s.rng.Float64() - 0.5) * 0.02
		t.Price = t.Price.Mul(decimal.NewFromFloat(1 + move)).Round(8)
		t.Change = decimal.NewFromFloat((s.rng.Float64() - 0.5) * 10).Round(2)
		out[i] = t
	}
	return out, nil
}

// Binance reads 24h ticker stats from the public spot API. No API key is needed.
type Binance struct {
	fetch func(ctx context.Context, symbol string) (*binance.PriceChangeStats, error)
}

func NewBinance() *Binance {
	client := binance.NewClient("", "")
	return &Binance{
		fetch: func(ctx context.Context, symbol string) (*binance.PriceChangeStats, error) {
			stats, err := client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
			if err != nil {
				return nil, err
			}
			if len(stats) == 0 {
				return nil, fmt.Errorf("no ticker data for %s", symbol)
			}
			return stats[0], nil
		},
	}
}

func (b *Binance) Name() string { return "BINANCE" }

func (b *Binance) Next(ctx context.Context, prev []Ticker) ([]Ticker, error) {
	out := make([]Ticker, len(prev))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range prev {
		i, t := i, t
		g.Go(func() error {
			st, err := b.fetch(gctx, t.Symbol)
			if err != nil {
				return fmt.Errorf("%s: %w", t.Symbol, err)
			}
			if t.Price, err = decimal.NewFromString(st.LastPrice); err != nil {
				return fmt.Errorf("%s last price: %w", t.Symbol, err)
			}
			if t.Change, err = decimal.NewFromString(st.PriceChangePercent); err != nil {
				return fmt.Errorf("%s change: %w", t.Symbol, err)
			}
			if vol, err := decimal.NewFromString(st.QuoteVolume); err == nil {
				t.Volume = vol
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
