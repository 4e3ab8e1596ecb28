package market

import "math"

// ============================================================================
// Indicator math
// ============================================================================

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SMA returns the simple moving average of the last period values
func SMA(values []float64, period int) float64 {
	if len(values) < period || period <= 0 {
		return 0
	}
	return average(values[len(values)-period:])
}

// EMA returns the exponential moving average over the full series,
// seeded with the first value, alpha = 2/(period+1)
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// RSI returns the relative strength index over the last period changes.
// Returns 50 when there is not enough data, 100 when there are no losses.
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var gains, losses []float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains = append(gains, change)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -change)
		}
	}
	if len(gains) > period {
		gains = gains[len(gains)-period:]
		losses = losses[len(losses)-period:]
	}

	avgGain := average(gains)
	avgLoss := average(losses)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line, signal line and histogram.
// Uses the simplified signal (0.9 of the line) rather than a 9-period EMA.
func MACD(closes []float64) (line, signal, hist float64) {
	if len(closes) < 26 {
		return 0, 0, 0
	}
	line = EMA(closes, 12) - EMA(closes, 26)
	signal = line * 0.9
	hist = line - signal
	return line, signal, hist
}

// Bollinger returns the 20-period 2-sigma bands plus width (percent of the
// middle band) and the position of price inside the band clamped to [0,1]
func Bollinger(closes []float64) (upper, middle, lower, width, position float64) {
	if len(closes) < 20 {
		return 0, 0, 0, 0, 0.5
	}
	window := closes[len(closes)-20:]
	middle = average(window)

	variance := 0.0
	for _, c := range window {
		variance += (c - middle) * (c - middle)
	}
	variance /= float64(len(window))
	sigma := math.Sqrt(variance)

	upper = middle + 2*sigma
	lower = middle - 2*sigma
	if middle > 0 {
		width = (upper - lower) / middle * 100
	}

	price := closes[len(closes)-1]
	if upper > lower {
		position = (price - lower) / (upper - lower)
	} else {
		position = 0.5
	}
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}
	return upper, middle, lower, width, position
}

// CCI returns the commodity channel index over the last period candles,
// based on the typical price (H+L+C)/3. Zero when the window is flat.
func CCI(klines []Kline, period int) float64 {
	if len(klines) < period || period <= 0 {
		return 0
	}
	window := klines[len(klines)-period:]
	typical := make([]float64, len(window))
	for i, k := range window {
		typical[i] = (k.High + k.Low + k.Close) / 3
	}
	m := average(typical)

	dev := 0.0
	for _, tp := range typical {
		dev += math.Abs(tp - m)
	}
	dev /= float64(len(typical))
	if dev == 0 {
		return 0
	}
	return (typical[len(typical)-1] - m) / (0.015 * dev)
}

// ATR returns the average true range over the last period candles
func ATR(klines []Kline, period int) float64 {
	if len(klines) < period+1 {
		return 0
	}
	var ranges []float64
	for i := len(klines) - period; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close
		tr := math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
		ranges = append(ranges, tr)
	}
	return average(ranges)
}

// VolumeRatio returns current volume over its 20-period SMA
func VolumeRatio(volumes []float64) float64 {
	if len(volumes) < 21 {
		return 1
	}
	avg := average(volumes[len(volumes)-21 : len(volumes)-1])
	if avg <= 0 {
		return 1
	}
	return volumes[len(volumes)-1] / avg
}

// TrendSlope returns the least-squares slope of the last 10 closes,
// normalized by the latest price
func TrendSlope(closes []float64) float64 {
	const window = 10
	if len(closes) < window {
		return 0
	}
	w := closes[len(closes)-window:]

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range w {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	n := float64(window)
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (n*sumXY - sumX*sumY) / denom

	price := w[len(w)-1]
	if price <= 0 {
		return 0
	}
	return slope / price
}

// Volatility returns stddev/mean of the last period closes
func Volatility(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	mean := average(window)
	if mean <= 0 {
		return 0
	}
	variance := 0.0
	for _, c := range window {
		variance += (c - mean) * (c - mean)
	}
	variance /= float64(len(window))
	return math.Sqrt(variance) / mean
}
