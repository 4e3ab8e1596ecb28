package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"

	"gridpilot/logger"
)

// Provider supplies candles and prices for analysis
type Provider interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	Price(ctx context.Context, symbol string) (float64, error)
	Ticker24h(ctx context.Context, symbol string) (*TickerStats, error)
	AllTickers24h(ctx context.Context) ([]TickerStats, error)
}

// BinanceProvider fetches USDT-M futures market data with retry on
// transient errors
type BinanceProvider struct {
	client *futures.Client
	tries  int

	mu     sync.Mutex
	stream *PriceStream
}

// NewBinanceProvider creates a provider. Credentials may be empty since
// all endpoints used here are public.
func NewBinanceProvider(apiKey, secretKey string, testnet bool) *BinanceProvider {
	if testnet {
		futures.UseTestnet = true
	}
	return &BinanceProvider{
		client: futures.NewClient(apiKey, secretKey),
		tries:  3,
	}
}

// retry runs fn up to p.tries times with exponential backoff
func (p *BinanceProvider) retry(ctx context.Context, what string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	var err error
	for i := 0; i < p.tries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		d := b.Duration()
		logger.Warnf("[Market] %s failed (attempt %d/%d): %v, retrying in %v", what, i+1, p.tries, err, d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (p *BinanceProvider) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var raw []*futures.Kline
	err := p.retry(ctx, "fetch klines "+symbol, func() error {
		var e error
		raw, e = p.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	result := make([]Kline, len(raw))
	for i, k := range raw {
		result[i] = Kline{
			OpenTime: time.Unix(k.OpenTime/1000, 0),
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
			Volume:   parseFloat(k.Volume),
		}
	}
	return result, nil
}

// AttachStream hooks a live mark-price stream in front of the REST price
// endpoint. Stale or missing stream prices fall back to REST.
func (p *BinanceProvider) AttachStream(stream *PriceStream) {
	p.mu.Lock()
	p.stream = stream
	p.mu.Unlock()
}

func (p *BinanceProvider) Price(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	stream := p.stream
	p.mu.Unlock()
	if stream != nil {
		if price, ok := stream.Price(symbol); ok {
			return price, nil
		}
	}

	var prices []*futures.SymbolPrice
	err := p.retry(ctx, "fetch price "+symbol, func() error {
		var e error
		prices, e = p.client.NewListPricesService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price data for %s", symbol)
	}
	return parseFloat(prices[0].Price), nil
}

func (p *BinanceProvider) Ticker24h(ctx context.Context, symbol string) (*TickerStats, error) {
	var stats []*futures.PriceChangeStats
	err := p.retry(ctx, "fetch 24h stats "+symbol, func() error {
		var e error
		stats, e = p.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("no 24h stats for %s", symbol)
	}

	s := stats[0]
	ts := &TickerStats{
		Symbol:      s.Symbol,
		LastPrice:   parseFloat(s.LastPrice),
		QuoteVolume: parseFloat(s.QuoteVolume),
		PriceChange: parseFloat(s.PriceChangePercent),
	}
	if book, err := p.client.NewListBookTickersService().Symbol(symbol).Do(ctx); err == nil && len(book) > 0 {
		ts.BidPrice = parseFloat(book[0].BidPrice)
		ts.AskPrice = parseFloat(book[0].AskPrice)
	}
	return ts, nil
}

func (p *BinanceProvider) AllTickers24h(ctx context.Context) ([]TickerStats, error) {
	var stats []*futures.PriceChangeStats
	err := p.retry(ctx, "fetch all 24h stats", func() error {
		var e error
		stats, e = p.client.NewListPriceChangeStatsService().Do(ctx)
		return e
	})
	if err != nil {
		return nil, err
	}

	result := make([]TickerStats, 0, len(stats))
	for _, s := range stats {
		result = append(result, TickerStats{
			Symbol:      s.Symbol,
			LastPrice:   parseFloat(s.LastPrice),
			QuoteVolume: parseFloat(s.QuoteVolume),
			PriceChange: parseFloat(s.PriceChangePercent),
		})
	}
	return result, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
