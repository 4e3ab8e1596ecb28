package market

import (
	"context"
	"math"
	"sync"
	"time"

	"gridpilot/logger"
)

// ============================================================================
// Regime classification
// ============================================================================

// Thresholds for regime classification. Volatility figures are the
// stddev/mean ratio of the last 20 closes, slope is price-normalized.
const (
	minKlinesForAnalysis = 26

	highVolThreshold = 0.80
	lowVolThreshold  = 0.15

	strongTrendSlope = 0.003
	flatSlope        = 0.001

	overboughtRSI = 70.0
	oversoldRSI   = 30.0

	sidewaysBollWidth = 3.0 // percent
)

// Analyze computes all indicators for a kline window and classifies the
// regime. Fewer than 26 klines yields an insufficient_data snapshot with
// zero confidence.
func Analyze(symbol string, klines []Kline) *Snapshot {
	snap := &Snapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
	}
	if len(klines) < minKlinesForAnalysis {
		snap.Regime = RegimeInsufficientData
		snap.BollPosition = 0.5
		return snap
	}

	closes := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		volumes[i] = k.Volume
	}

	snap.Price = closes[len(closes)-1]
	snap.RSI14 = RSI(closes, 14)
	snap.EMA12 = EMA(closes, 12)
	snap.EMA26 = EMA(closes, 26)
	snap.MACD, snap.MACDSignal, snap.MACDHist = MACD(closes)
	snap.BollUpper, snap.BollMiddle, snap.BollLower, snap.BollWidth, snap.BollPosition = Bollinger(closes)
	snap.ATR14 = ATR(klines, 14)
	snap.CCI14 = CCI(klines, 14)
	snap.VolumeRatio = VolumeRatio(volumes)
	snap.TrendSlope = TrendSlope(closes)
	snap.Volatility = Volatility(closes, 20)

	snap.Regime, snap.Confidence = Classify(snap)
	return snap
}

// Classify maps a snapshot onto a regime label plus a confidence in [0,1].
// Volatility extremes dominate, then strong trends, then RSI extremes, then
// the sideways check. Same snapshot always yields the same answer.
func Classify(s *Snapshot) (Regime, float64) {
	if s.Price <= 0 {
		return RegimeInsufficientData, 0
	}

	switch {
	case s.Volatility > highVolThreshold:
		return RegimeHighVolatility, clamp01(s.Volatility)

	case s.TrendSlope > strongTrendSlope && s.MACDHist > 0 && s.RSI14 > 55:
		conf := clamp01(s.TrendSlope/strongTrendSlope*0.5 + (s.RSI14-55)/45*0.5)
		return RegimeStrongUptrend, conf

	case s.TrendSlope < -strongTrendSlope && s.MACDHist < 0 && s.RSI14 < 45:
		conf := clamp01(-s.TrendSlope/strongTrendSlope*0.5 + (45-s.RSI14)/45*0.5)
		return RegimeStrongDowntrend, conf

	case s.RSI14 > overboughtRSI:
		return RegimeOverbought, clamp01((s.RSI14 - overboughtRSI) / (100 - overboughtRSI))

	case s.RSI14 < oversoldRSI:
		return RegimeOversold, clamp01((oversoldRSI - s.RSI14) / oversoldRSI)

	case s.Volatility > 0 && s.Volatility < lowVolThreshold && math.Abs(s.TrendSlope) < flatSlope:
		return RegimeLowVolatility, clamp01(1 - s.Volatility/lowVolThreshold)

	case s.BollWidth > 0 && s.BollWidth < sidewaysBollWidth && math.Abs(s.TrendSlope) < flatSlope:
		return RegimeSideways, clamp01(1 - s.BollWidth/sidewaysBollWidth)

	default:
		return RegimeNeutral, 0.3
	}
}

// ShouldTrade decides whether a grid should run under the current snapshot.
// The reason string is stable so it can be matched in logs and tests.
func ShouldTrade(s *Snapshot) (bool, string) {
	if s.Regime == RegimeInsufficientData {
		return false, "insufficient market data"
	}
	if s.Confidence < 0.1 {
		return false, "regime confidence too low"
	}
	if s.Volatility > 0.95 {
		return false, "volatility too high"
	}
	if s.Volatility < 0.0001 {
		return false, "market inactive"
	}
	if s.BollPosition > 0.9 && (s.Regime == RegimeStrongUptrend || s.Regime == RegimeOverbought) {
		return false, "price at upper band extreme"
	}
	if s.BollPosition < 0.1 && (s.Regime == RegimeStrongDowntrend || s.Regime == RegimeOversold) {
		return false, "price at lower band extreme"
	}
	return true, "ok"
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ============================================================================
// Cached analyzer
// ============================================================================

// Analyzer fetches klines through a Provider and caches per-symbol
// snapshots so repeated ladder cycles inside the TTL reuse the same view
type Analyzer struct {
	provider Provider
	interval string
	limit    int
	ttl      time.Duration

	mu    sync.Mutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snap *Snapshot
	at   time.Time
}

// NewAnalyzer creates an analyzer over the given provider.
// interval is the kline interval (e.g. "15m"), limit the window size.
func NewAnalyzer(provider Provider, interval string, limit int, ttl time.Duration) *Analyzer {
	if limit < minKlinesForAnalysis {
		limit = 50
	}
	return &Analyzer{
		provider: provider,
		interval: interval,
		limit:    limit,
		ttl:      ttl,
		cache:    make(map[string]cachedSnapshot),
	}
}

// Snapshot returns the current snapshot for symbol, fetching fresh klines
// only when the cached one has expired
func (a *Analyzer) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	a.mu.Lock()
	if c, ok := a.cache[symbol]; ok && time.Since(c.at) < a.ttl {
		a.mu.Unlock()
		return c.snap, nil
	}
	a.mu.Unlock()

	klines, err := a.provider.Klines(ctx, symbol, a.interval, a.limit)
	if err != nil {
		return nil, err
	}

	snap := Analyze(symbol, klines)
	logger.Debugf("[Market] %s regime=%s conf=%.2f vol=%.4f rsi=%.1f",
		symbol, snap.Regime, snap.Confidence, snap.Volatility, snap.RSI14)

	a.mu.Lock()
	a.cache[symbol] = cachedSnapshot{snap: snap, at: time.Now()}
	a.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot for symbol
func (a *Analyzer) Invalidate(symbol string) {
	a.mu.Lock()
	delete(a.cache, symbol)
	a.mu.Unlock()
}
