// Package market runs the trading room: a ticking price feed and simulated orders.
package market

import (
	"context"
	"strings"
	"sync"
	"time"

	"prime_pips/internal/logging"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Ticker struct {
	Pair   string          `json:"pair"`
	Symbol string          `json:"symbol"`
	Base   string          `json:"base"`
	Price  decimal.Decimal `json:"price"`
	Change decimal.Decimal `json:"change"`
	Volume decimal.Decimal `json:"volume"`
}

// VolumeLabel abbreviates the 24h volume, e.g. "1.2B".
func (t Ticker) VolumeLabel() string {
	return formatVolume(t.Volume)
}

func newTicker(base string, price, change string, volume int64) Ticker {
	return Ticker{
		Pair:   base + "/USDT",
		Symbol: base + "USDT",
		Base:   base,
		Price:  decimal.RequireFromString(price),
		Change: decimal.RequireFromString(change),
		Volume: decimal.NewFromInt(volume),
	}
}

// DefaultTickers is the opening board.
func DefaultTickers() []Ticker {
	return []Ticker{
		newTicker("BTC", "65000", "2.5", 1_200_000_000),
		newTicker("ETH", "3200", "1.8", 800_000_000),
		newTicker("ADA", "0.45", "-0.8", 150_000_000),
		newTicker("SOL", "98.50", "4.2", 200_000_000),
	}
}

type Feed struct {
	source   Source
	interval time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	tickers []Ticker
	updated time.Time
	subs    []func([]Ticker)
}

func NewFeed(source Source, interval time.Duration, log *zap.Logger) *Feed {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Feed{
		source:   source,
		interval: interval,
		log:      logging.OrNop(log),
		tickers:  DefaultTickers(),
	}
}

// Subscribe registers fn to receive every new snapshot.
func (f *Feed) Subscribe(fn func([]Ticker)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

func (f *Feed) Snapshot() []Ticker {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Ticker, len(f.tickers))
	copy(out, f.tickers)
	return out
}

func (f *Feed) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updated
}

// Quote returns the USDT price of an asset such as "BTC".
func (f *Feed) Quote(symbol string) (decimal.Decimal, bool) {
	symbol = strings.ToUpper(symbol)
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.tickers {
		if t.Base == symbol {
			return t.Price, true
		}
	}
	return decimal.Zero, false
}

func (f *Feed) ticker(pair string) (Ticker, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, t := range f.tickers {
		if strings.EqualFold(t.Pair, pair) {
			return t, true
		}
	}
	return Ticker{}, false
}

// Refresh pulls one update from the source and fans it out.
func (f *Feed) Refresh(ctx context.Context) error {
	next, err := f.source.Next(ctx, f.Snapshot())
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.tickers = next
	f.updated = time.Now()
	subs := make([]func([]Ticker), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, fn := range subs {
		snap := make([]Ticker, len(next))
		copy(snap, next)
		fn(snap)
	}
	return nil
}

// Run ticks until ctx is cancelled. A failed tick keeps the previous prices.
func (f *Feed) Run(ctx context.Context) {
	f.log.Info("📈 Market feed started", zap.String("source", f.source.Name()), zap.Duration("interval", f.interval))
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.log.Info("⏸️ Market feed stopped")
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
				f.log.Warn("⚠️ Market update failed", zap.Error(err))
			}
		}
	}
}

var (
	billion  = decimal.NewFromInt(1_000_000_000)
	million  = decimal.NewFromInt(1_000_000)
	thousand = decimal.NewFromInt(1_000)
)

func formatVolume(v decimal.Decimal) string {
	switch {
	case v.GreaterThanOrEqual(billion):
		return v.Div(billion).Round(1).String() + "B"
	case v.GreaterThanOrEqual(million):
		return v.Div(million).Round(1).String() + "M"
	case v.GreaterThanOrEqual(thousand):
		return v.Div(thousand).Round(1).String() + "K"
	default:
		return v.Round(0).String()
	}
}
