package market

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestRSI(t *testing.T) {
	// Monotonic rise has no losses
	rising := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if got := RSI(rising, 14); got != 100 {
		t.Errorf("Expected RSI 100 for pure uptrend, got %.2f", got)
	}

	falling := []float64{16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	if got := RSI(falling, 14); got != 0 {
		t.Errorf("Expected RSI 0 for pure downtrend, got %.2f", got)
	}

	// Not enough data defaults to 50
	if got := RSI([]float64{1, 2, 3}, 14); got != 50 {
		t.Errorf("Expected RSI 50 with insufficient data, got %.2f", got)
	}
}

func TestEMA(t *testing.T) {
	if got := EMA(nil, 12); got != 0 {
		t.Errorf("Expected 0 for empty series, got %.2f", got)
	}

	// Constant series stays at the constant
	constant := []float64{5, 5, 5, 5, 5}
	if got := EMA(constant, 3); !almostEqual(got, 5, 1e-9) {
		t.Errorf("Expected EMA 5 for constant series, got %.4f", got)
	}
}

func TestMACDSimplifiedSignal(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	line, signal, hist := MACD(closes)
	if !almostEqual(signal, line*0.9, 1e-9) {
		t.Errorf("Expected signal = 0.9*line, got line=%.4f signal=%.4f", line, signal)
	}
	if !almostEqual(hist, line-signal, 1e-9) {
		t.Errorf("Expected hist = line-signal, got %.4f", hist)
	}
}

func TestBollingerPosition(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100
	}
	// Flat series: zero sigma, position defaults to mid
	_, middle, _, width, position := Bollinger(closes)
	if middle != 100 {
		t.Errorf("Expected middle 100, got %.2f", middle)
	}
	if width != 0 {
		t.Errorf("Expected zero width, got %.2f", width)
	}
	if position != 0.5 {
		t.Errorf("Expected mid position 0.5 on flat series, got %.2f", position)
	}

	// Last close at the top of the window sits near the upper band
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	_, _, _, _, position = Bollinger(closes)
	if position < 0.5 {
		t.Errorf("Expected position above middle for rising closes, got %.2f", position)
	}
}

func TestATR(t *testing.T) {
	klines := make([]Kline, 20)
	for i := range klines {
		klines[i] = Kline{High: 102, Low: 98, Close: 100}
	}
	got := ATR(klines, 14)
	if !almostEqual(got, 4, 1e-9) {
		t.Errorf("Expected ATR 4 for constant 4-point range, got %.4f", got)
	}

	if got := ATR(klines[:5], 14); got != 0 {
		t.Errorf("Expected 0 ATR with insufficient data, got %.4f", got)
	}
}

func TestCCI(t *testing.T) {
	// Alternating typical price ending on a low point: deviation equals the
	// swing, so CCI lands at -1/0.015
	klines := make([]Kline, 20)
	for i := range klines {
		c := 101.0
		if i%2 == 1 {
			c = 99.0
		}
		klines[i] = Kline{High: c, Low: c, Close: c}
	}
	got := CCI(klines, 14)
	if !almostEqual(got, -1/0.015, 1e-6) {
		t.Errorf("Expected CCI %.2f on a low swing point, got %.4f", -1/0.015, got)
	}

	// Ending on a high point flips the sign
	got = CCI(klines[:19], 14)
	if !almostEqual(got, 1/0.015, 1e-6) {
		t.Errorf("Expected CCI %.2f on a high swing point, got %.4f", 1/0.015, got)
	}

	// Flat window and short input both yield zero
	flat := make([]Kline, 20)
	for i := range flat {
		flat[i] = Kline{High: 100, Low: 100, Close: 100}
	}
	if got := CCI(flat, 14); got != 0 {
		t.Errorf("Expected 0 CCI for flat window, got %.4f", got)
	}
	if got := CCI(klines[:5], 14); got != 0 {
		t.Errorf("Expected 0 CCI with insufficient data, got %.4f", got)
	}
}

func TestTrendSlope(t *testing.T) {
	flat := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100}
	if got := TrendSlope(flat); got != 0 {
		t.Errorf("Expected zero slope for flat series, got %.6f", got)
	}

	rising := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	if got := TrendSlope(rising); got <= 0 {
		t.Errorf("Expected positive slope for rising series, got %.6f", got)
	}

	falling := []float64{109, 108, 107, 106, 105, 104, 103, 102, 101, 100}
	if got := TrendSlope(falling); got >= 0 {
		t.Errorf("Expected negative slope for falling series, got %.6f", got)
	}
}

func TestVolatility(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	if got := Volatility(flat, 20); got != 0 {
		t.Errorf("Expected zero volatility for flat series, got %.6f", got)
	}

	noisy := make([]float64, 20)
	for i := range noisy {
		if i%2 == 0 {
			noisy[i] = 90
		} else {
			noisy[i] = 110
		}
	}
	if got := Volatility(noisy, 20); got <= 0 {
		t.Errorf("Expected positive volatility, got %.6f", got)
	}
}
