// Package market provides candle retrieval, indicator math and regime
// classification for the grid controllers.
package market

import "time"

// Kline is a single candle
type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Regime is the market state label assigned to a symbol
type Regime string

const (
	RegimeStrongUptrend    Regime = "strong_uptrend"
	RegimeStrongDowntrend  Regime = "strong_downtrend"
	RegimeSideways         Regime = "sideways"
	RegimeHighVolatility   Regime = "high_volatility"
	RegimeLowVolatility    Regime = "low_volatility"
	RegimeOverbought       Regime = "overbought"
	RegimeOversold         Regime = "oversold"
	RegimeNeutral          Regime = "neutral"
	RegimeInsufficientData Regime = "insufficient_data"
)

// Snapshot bundles the indicators computed from one kline window
type Snapshot struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`

	Price      float64 `json:"price"`
	RSI14      float64 `json:"rsi14"`
	EMA12      float64 `json:"ema12"`
	EMA26      float64 `json:"ema26"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	BollUpper    float64 `json:"boll_upper"`
	BollMiddle   float64 `json:"boll_middle"`
	BollLower    float64 `json:"boll_lower"`
	BollWidth    float64 `json:"boll_width"`    // percent of middle band
	BollPosition float64 `json:"boll_position"` // 0 = lower band, 1 = upper band

	ATR14       float64 `json:"atr14"`
	CCI14       float64 `json:"cci14"`
	VolumeRatio float64 `json:"volume_ratio"` // current volume vs SMA20
	TrendSlope  float64 `json:"trend_slope"`  // normalized by price
	Volatility  float64 `json:"volatility"`   // stddev/mean of last 20 closes

	Regime     Regime  `json:"regime"`
	Confidence float64 `json:"confidence"` // 0..1
}

// TickerStats is the 24h rolling window summary for a symbol
type TickerStats struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"last_price"`
	QuoteVolume float64 `json:"quote_volume"`
	PriceChange float64 `json:"price_change_pct"`
	BidPrice    float64 `json:"bid_price"`
	AskPrice    float64 `json:"ask_price"`
}

// SpreadPct returns bid/ask spread as a fraction of mid price
func (t TickerStats) SpreadPct() float64 {
	if t.BidPrice <= 0 || t.AskPrice <= 0 {
		return 0
	}
	mid := (t.BidPrice + t.AskPrice) / 2
	if mid <= 0 {
		return 0
	}
	return (t.AskPrice - t.BidPrice) / mid
}
