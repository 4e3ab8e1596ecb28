package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecommendMode(t *testing.T) {
	tests := []struct {
		capital  float64
		expected Mode
	}{
		{300, ModeConservative},
		{799, ModeConservative},
		{800, ModeAutomatic},
		{1999, ModeAutomatic},
		{2000, ModeAggressive},
		{10000, ModeAggressive},
	}
	for _, tt := range tests {
		if got := RecommendMode(tt.capital); got != tt.expected {
			t.Errorf("RecommendMode(%.0f) = %s, expected %s", tt.capital, got, tt.expected)
		}
	}
}

func TestLimitsForUnknownModeDefaultsToAutomatic(t *testing.T) {
	l := LimitsFor(Mode("bogus"))
	assert.Equal(t, ModeAutomatic, l.Mode)
}

func TestStopPrice(t *testing.T) {
	m := NewManager(ModeAutomatic)

	// ATR-based: 2x ATR below entry for longs
	stop := m.StopPrice(100, "LONG", 1.5)
	assert.InDelta(t, 97.0, stop, 1e-9)

	stop = m.StopPrice(100, "SHORT", 1.5)
	assert.InDelta(t, 103.0, stop, 1e-9)

	// Percent fallback when ATR is unusable (automatic mode: 2.5%)
	stop = m.StopPrice(100, "LONG", 0)
	assert.InDelta(t, 97.5, stop, 1e-9)
}

func TestStopPriceATRMultiplierPerMode(t *testing.T) {
	// Conservative converts ATR with 1.5x, aggressive with 2.5x
	stop := NewManager(ModeConservative).StopPrice(100, "LONG", 2)
	assert.InDelta(t, 97.0, stop, 1e-9)

	stop = NewManager(ModeAggressive).StopPrice(100, "LONG", 2)
	assert.InDelta(t, 95.0, stop, 1e-9)
}

// The trailing distance is its own profile attribute, tighter than the
// protective stop-loss percent
func TestTrailingDistanceUsesTrailingPct(t *testing.T) {
	m := NewManager(ModeAutomatic) // trailing 1.5%, stop-loss 2.5%
	pos := &Position{Symbol: "BTCUSDT", Side: "LONG", EntryPrice: 100}

	assert.True(t, m.UpdateTrailing(pos, 100))
	assert.InDelta(t, 98.5, pos.TrailingStop, 1e-9)
	assert.Greater(t, pos.TrailingStop, m.StopPrice(100, "LONG", 0))

	short := &Position{Symbol: "BTCUSDT", Side: "SHORT", EntryPrice: 100}
	assert.True(t, m.UpdateTrailing(short, 100))
	assert.InDelta(t, 101.5, short.TrailingStop, 1e-9)
}

// Trailing stops only tighten, never loosen
func TestTrailingStopMonotonicity(t *testing.T) {
	m := NewManager(ModeAutomatic)
	pos := &Position{Symbol: "BTCUSDT", Side: "LONG", EntryPrice: 100}

	moved := m.UpdateTrailing(pos, 100)
	assert.True(t, moved)
	first := pos.TrailingStop

	// Price rises, stop ratchets up
	m.UpdateTrailing(pos, 110)
	assert.Greater(t, pos.TrailingStop, first)
	high := pos.TrailingStop

	// Price falls back, stop must not move down
	moved = m.UpdateTrailing(pos, 95)
	assert.False(t, moved)
	assert.Equal(t, high, pos.TrailingStop)

	// Random walk never loosens the stop
	prev := pos.TrailingStop
	for _, price := range []float64{103, 99, 111, 104, 118, 90} {
		m.UpdateTrailing(pos, price)
		assert.GreaterOrEqual(t, pos.TrailingStop, prev)
		prev = pos.TrailingStop
	}
}

func TestTrailingStopShortSide(t *testing.T) {
	m := NewManager(ModeAutomatic)
	pos := &Position{Symbol: "ETHUSDT", Side: "SHORT", EntryPrice: 100}

	m.UpdateTrailing(pos, 100)
	first := pos.TrailingStop

	// Price drops, short stop ratchets down
	m.UpdateTrailing(pos, 90)
	assert.Less(t, pos.TrailingStop, first)
	low := pos.TrailingStop

	// Price bounces, stop stays put
	m.UpdateTrailing(pos, 98)
	assert.Equal(t, low, pos.TrailingStop)
}

func TestStopHit(t *testing.T) {
	pos := &Position{Side: "LONG", EntryPrice: 100, StopPrice: 97, TrailingStop: 98}
	assert.False(t, StopHit(pos, 99))
	assert.True(t, StopHit(pos, 98))  // trailing is the tighter stop
	assert.True(t, StopHit(pos, 96))

	short := &Position{Side: "SHORT", EntryPrice: 100, StopPrice: 103, TrailingStop: 102}
	assert.False(t, StopHit(short, 101))
	assert.True(t, StopHit(short, 102))
}

// A 6% drawdown in automatic mode trips the kill switch; a full recovery
// does not untrip it
func TestKillSwitchStickiness(t *testing.T) {
	m := NewManager(ModeAutomatic)

	dd, tripped := m.CheckGlobalDrawdown(1000)
	assert.Equal(t, 0.0, dd)
	assert.False(t, tripped)

	// 4% drawdown, below the 6% cap
	_, tripped = m.CheckGlobalDrawdown(960)
	assert.False(t, tripped)

	// 6% drawdown trips
	dd, tripped = m.CheckGlobalDrawdown(940)
	assert.InDelta(t, 6.0, dd, 1e-9)
	assert.True(t, tripped)

	// Equity fully recovers; switch stays tripped
	_, tripped = m.CheckGlobalDrawdown(1100)
	assert.True(t, tripped)
	assert.True(t, m.KillSwitchTripped())

	// Only the explicit reset clears it
	m.ResetKillSwitch(1100)
	assert.False(t, m.KillSwitchTripped())

	// After reset the peak is rebased, small dips do not re-trip
	_, tripped = m.CheckGlobalDrawdown(1080)
	assert.False(t, tripped)
}

func TestPositionAllowed(t *testing.T) {
	m := NewManager(ModeAutomatic) // 10% cap

	ok, _ := m.PositionAllowed(100, 1000)
	assert.True(t, ok)

	ok, reason := m.PositionAllowed(101, 1000)
	assert.False(t, ok)
	assert.Equal(t, "position size cap exceeded", reason)

	ok, reason = m.PositionAllowed(10, 0)
	assert.False(t, ok)
	assert.Equal(t, "no equity", reason)
}

func TestReturnCorrelation(t *testing.T) {
	a := make([]float64, 25)
	b := make([]float64, 25)
	c := make([]float64, 25)
	for i := range a {
		a[i] = 100 + float64(i%5)
		b[i] = 200 + 2*float64(i%5) // same shape, scaled
		c[i] = 100 - float64(i%5)   // inverted
	}

	corr, ok := ReturnCorrelation(a, b)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, corr, 1e-6)

	corr, ok = ReturnCorrelation(a, c)
	assert.True(t, ok)
	assert.Less(t, corr, 0.0)

	_, ok = ReturnCorrelation(a[:5], b)
	assert.False(t, ok)
}

func TestCorrelationOK(t *testing.T) {
	m := NewManager(ModeConservative) // cap 0.5

	a := make([]float64, 25)
	b := make([]float64, 25)
	for i := range a {
		a[i] = 100 + float64(i%7)
		b[i] = 300 + 3*float64(i%7)
	}
	// Perfectly correlated, above any cap
	assert.False(t, m.CorrelationOK(a, b))

	// Too little data: allowed
	assert.True(t, m.CorrelationOK(a[:3], b[:3]))
}
