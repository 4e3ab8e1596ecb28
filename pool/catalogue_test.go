package pool

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gridpilot/market"
)

// fakeProvider serves canned data or fails everything
type fakeProvider struct {
	tickers []market.TickerStats
	klines  map[string][]market.Kline
	fail    bool
}

func (f *fakeProvider) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Kline, error) {
	if f.fail {
		return nil, errors.New("venue down")
	}
	return f.klines[symbol], nil
}

func (f *fakeProvider) Price(ctx context.Context, symbol string) (float64, error) {
	if f.fail {
		return 0, errors.New("venue down")
	}
	return 100, nil
}

func (f *fakeProvider) Ticker24h(ctx context.Context, symbol string) (*market.TickerStats, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) AllTickers24h(ctx context.Context) ([]market.TickerStats, error) {
	if f.fail {
		return nil, errors.New("venue down")
	}
	return f.tickers, nil
}

func wavyKlines(n int, base float64) []market.Kline {
	klines := make([]market.Kline, n)
	for i := range klines {
		c := base * (1 + 0.02*float64(i%5))
		klines[i] = market.Kline{Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 100}
	}
	return klines
}

func TestCandidatesFromLiveFetch(t *testing.T) {
	fp := &fakeProvider{
		tickers: []market.TickerStats{
			{Symbol: "BTCUSDT", LastPrice: 50000, QuoteVolume: 90_000_000},
			{Symbol: "ETHUSDT", LastPrice: 3000, QuoteVolume: 60_000_000},
			{Symbol: "BTCBUSD", LastPrice: 50000, QuoteVolume: 80_000_000}, // wrong quote
			{Symbol: "LOWUSDT", LastPrice: 0, QuoteVolume: 10},             // bad price
		},
		klines: map[string][]market.Kline{
			"BTCUSDT": wavyKlines(30, 50000),
			"ETHUSDT": wavyKlines(30, 3000),
		},
	}

	c := New(fp, "")
	got := c.Candidates(context.Background())
	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(got))
	}
	for _, m := range got {
		if m.VolatilityPct <= 0 {
			t.Errorf("%s: expected positive volatility, got %.4f", m.Symbol, m.VolatilityPct)
		}
		if m.ProfitPotential <= 0 {
			t.Errorf("%s: expected scored profit potential", m.Symbol)
		}
	}
}

func TestCandidatesFallsBackToDefaults(t *testing.T) {
	c := New(&fakeProvider{fail: true}, "")
	got := c.Candidates(context.Background())
	if len(got) == 0 {
		t.Fatal("Expected default candidates when fetch fails")
	}
	if got[0].Symbol != "BTCUSDT" {
		t.Errorf("Expected BTCUSDT first in defaults, got %s", got[0].Symbol)
	}
}

func TestCandidatesUsesCache(t *testing.T) {
	dir := t.TempDir()
	fp := &fakeProvider{
		tickers: []market.TickerStats{
			{Symbol: "BTCUSDT", LastPrice: 50000, QuoteVolume: 90_000_000},
		},
		klines: map[string][]market.Kline{"BTCUSDT": wavyKlines(30, 50000)},
	}

	c := New(fp, dir)
	first := c.Candidates(context.Background())
	if len(first) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(first))
	}

	// Second catalogue over the same dir reads the cache even though the
	// venue is now down
	c2 := New(&fakeProvider{fail: true}, dir)
	second := c2.Candidates(context.Background())
	if len(second) != 1 || second[0].Symbol != "BTCUSDT" {
		t.Fatalf("Expected cached BTCUSDT candidate, got %+v", second)
	}

	if _, err := filepath.Glob(filepath.Join(dir, "*.json")); err != nil {
		t.Fatalf("cache glob: %v", err)
	}
}
