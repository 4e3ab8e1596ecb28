// Package pool builds the candidate pair catalogue the allocator selects
// from: 24h exchange stats scored into pair metrics, with a JSON file
// cache and a hardcoded mainstream fallback.
package pool

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gridpilot/allocator"
	"gridpilot/logger"
	"gridpilot/market"
	"gridpilot/risk"
)

// defaultPairs is the mainstream fallback used when both the exchange
// and the cache are unavailable
var defaultPairs = []string{
	"BTCUSDT",
	"ETHUSDT",
	"SOLUSDT",
	"BNBUSDT",
	"XRPUSDT",
	"DOGEUSDT",
	"ADAUSDT",
	"LINKUSDT",
}

// DefaultPairs returns the mainstream list, for callers that need a
// symbol universe before the first catalogue refresh
func DefaultPairs() []string {
	out := make([]string, len(defaultPairs))
	copy(out, defaultPairs)
	return out
}

const (
	cacheTTL = time.Hour
	// candidates examined per refresh; volatility and correlation need a
	// kline fetch each, so this bounds the request fan-out
	maxCandidates = 40
)

// Catalogue produces scored pair metrics for the allocator
type Catalogue struct {
	provider market.Provider
	cacheDir string
}

type cacheFile struct {
	Candidates []allocator.PairMetrics `json:"candidates"`
	FetchedAt  time.Time               `json:"fetched_at"`
}

// New creates a catalogue. cacheDir may be empty to disable the file
// cache.
func New(provider market.Provider, cacheDir string) *Catalogue {
	return &Catalogue{provider: provider, cacheDir: cacheDir}
}

// Candidates returns scored pair metrics, from cache when fresh,
// otherwise fetched live. On total failure the mainstream default list
// is returned with conservative metrics.
func (c *Catalogue) Candidates(ctx context.Context) []allocator.PairMetrics {
	if cached := c.loadCache(); cached != nil {
		return cached
	}

	candidates, err := c.fetch(ctx)
	if err != nil {
		logger.Errorf("[Pool] candidate fetch failed: %v, falling back to defaults", err)
		if stale := c.loadCacheIgnoringTTL(); stale != nil {
			logger.Warnf("[Pool] using stale cache with %d pairs", len(stale))
			return stale
		}
		return c.defaults(ctx)
	}

	c.saveCache(candidates)
	return candidates
}

// fetch pulls 24h stats, keeps the deepest USDT pairs and computes
// volatility plus BTC correlation from klines
func (c *Catalogue) fetch(ctx context.Context) ([]allocator.PairMetrics, error) {
	tickers, err := c.provider.AllTickers24h(ctx)
	if err != nil {
		return nil, err
	}

	var usdt []market.TickerStats
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		if t.QuoteVolume <= 0 || t.LastPrice <= 0 {
			continue
		}
		usdt = append(usdt, t)
	}
	sort.Slice(usdt, func(i, j int) bool {
		return usdt[i].QuoteVolume > usdt[j].QuoteVolume
	})
	if len(usdt) > maxCandidates {
		usdt = usdt[:maxCandidates]
	}

	btcCloses, err := c.closes(ctx, "BTCUSDT")
	if err != nil {
		logger.Warnf("[Pool] BTC reference klines unavailable: %v", err)
	}

	var out []allocator.PairMetrics
	for _, t := range usdt {
		closes, err := c.closes(ctx, t.Symbol)
		if err != nil {
			logger.Debugf("[Pool] skipping %s: %v", t.Symbol, err)
			continue
		}

		volPct := market.Volatility(closes, 20) * 100
		corr := 0.0
		if t.Symbol != "BTCUSDT" && len(btcCloses) > 0 {
			if r, ok := risk.ReturnCorrelation(closes, btcCloses); ok {
				corr = r
			}
		}

		m := allocator.PairMetrics{
			Symbol:         t.Symbol,
			VolatilityPct:  volPct,
			QuoteVolume24h: t.QuoteVolume,
			CorrBTC:        corr,
		}
		m.Score()
		out = append(out, m)
	}

	logger.Infof("[Pool] catalogue refreshed: %d candidates", len(out))
	return out, nil
}

func (c *Catalogue) closes(ctx context.Context, symbol string) ([]float64, error) {
	klines, err := c.provider.Klines(ctx, symbol, "1h", 30)
	if err != nil {
		return nil, err
	}
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes, nil
}

// defaults builds minimal metrics for the mainstream list. Volatility is
// set inside the common tier windows so the allocator does not reject
// everything when running blind.
func (c *Catalogue) defaults(ctx context.Context) []allocator.PairMetrics {
	out := make([]allocator.PairMetrics, 0, len(defaultPairs))
	for i, symbol := range defaultPairs {
		m := allocator.PairMetrics{
			Symbol:         symbol,
			VolatilityPct:  3,
			QuoteVolume24h: 20_000_000,
			CorrBTC:        math.Min(0.4, 0.1*float64(i)),
		}
		m.Score()
		out = append(out, m)
	}
	return out
}

func (c *Catalogue) cachePath() string {
	if c.cacheDir == "" {
		return ""
	}
	return filepath.Join(c.cacheDir, "catalogue.json")
}

func (c *Catalogue) loadCache() []allocator.PairMetrics {
	cf := c.readCacheFile()
	if cf == nil || time.Since(cf.FetchedAt) > cacheTTL {
		return nil
	}
	return cf.Candidates
}

func (c *Catalogue) loadCacheIgnoringTTL() []allocator.PairMetrics {
	cf := c.readCacheFile()
	if cf == nil {
		return nil
	}
	return cf.Candidates
}

func (c *Catalogue) readCacheFile() *cacheFile {
	path := c.cachePath()
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		logger.Warnf("[Pool] corrupt cache file, ignoring: %v", err)
		return nil
	}
	if len(cf.Candidates) == 0 {
		return nil
	}
	return &cf
}

func (c *Catalogue) saveCache(candidates []allocator.PairMetrics) {
	path := c.cachePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(cacheFile{Candidates: candidates, FetchedAt: time.Now()}, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warnf("[Pool] failed to write cache: %v", err)
	}
}
