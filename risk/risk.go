// Package risk enforces position level and account level risk limits:
// ATR-based stops, ratchet-only trailing stops, the global drawdown kill
// switch, position size caps and pairwise correlation caps.
package risk

import (
	"math"
	"sync"
	"time"

	"gridpilot/logger"
)

// Mode selects one of the predefined risk profiles
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeAggressive   Mode = "aggressive"
	ModeAutomatic    Mode = "automatic"
)

// Limits are the hard parameters of one risk mode
type Limits struct {
	Mode            Mode    `json:"mode"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TrailingPct     float64 `json:"trailing_pct"` // trailing stop distance from price
	ATRMultiplier   float64 `json:"atr_multiplier"` // converts ATR into stop distance
	MaxPositionPct  float64 `json:"max_position_pct"` // of equity, per position
	CorrelationCap  float64 `json:"correlation_cap"`
	MinCapital      float64 `json:"min_capital"`
	MaxPairs        int     `json:"max_pairs"`
	VolatilityMin   float64 `json:"volatility_min"` // percent
	VolatilityMax   float64 `json:"volatility_max"` // percent
}

var modeTable = map[Mode]Limits{
	ModeConservative: {
		Mode: ModeConservative, MaxDrawdownPct: 5, StopLossPct: 2.0,
		TrailingPct: 1.0, ATRMultiplier: 1.5,
		MaxPositionPct: 15, CorrelationCap: 0.5, MinCapital: 400,
		MaxPairs: 1, VolatilityMin: 2, VolatilityMax: 4,
	},
	ModeAggressive: {
		Mode: ModeAggressive, MaxDrawdownPct: 8, StopLossPct: 3.0,
		TrailingPct: 2.0, ATRMultiplier: 2.5,
		MaxPositionPct: 8, CorrelationCap: 0.7, MinCapital: 200,
		MaxPairs: 3, VolatilityMin: 4, VolatilityMax: 8,
	},
	ModeAutomatic: {
		Mode: ModeAutomatic, MaxDrawdownPct: 6, StopLossPct: 2.5,
		TrailingPct: 1.5, ATRMultiplier: 2.0,
		MaxPositionPct: 10, CorrelationCap: 0.6, MinCapital: 200,
		MaxPairs: 5, VolatilityMin: 3, VolatilityMax: 6,
	},
}

// LimitsFor returns the limit table for a mode, defaulting to automatic
func LimitsFor(mode Mode) Limits {
	if l, ok := modeTable[mode]; ok {
		return l
	}
	return modeTable[ModeAutomatic]
}

// RecommendMode picks a risk mode from available capital
func RecommendMode(capital float64) Mode {
	switch {
	case capital < 800:
		return ModeConservative
	case capital < 2000:
		return ModeAutomatic
	default:
		return ModeAggressive
	}
}

// Position is the minimal position view the risk manager operates on
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"` // LONG or SHORT
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`
	StopPrice    float64   `json:"stop_price"`
	TrailingStop float64   `json:"trailing_stop"`
	OpenedAt     time.Time `json:"opened_at"`
}

// Manager owns account-level risk state. One manager per bot instance.
type Manager struct {
	mu         sync.Mutex
	limits     Limits
	peakEquity float64
	tripped    bool
	trippedAt  time.Time
}

// NewManager creates a manager for the given mode
func NewManager(mode Mode) *Manager {
	return &Manager{limits: LimitsFor(mode)}
}

// Limits returns the active limit table
func (m *Manager) Limits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// StopPrice computes the initial protective stop for an entry. ATR drives
// the distance when available, otherwise the mode's percent stop applies.
func (m *Manager) StopPrice(entry float64, side string, atr float64) float64 {
	m.mu.Lock()
	limits := m.limits
	m.mu.Unlock()

	var distance float64
	if atr > 0 && atr < entry {
		distance = atr * limits.ATRMultiplier
	} else {
		distance = entry * limits.StopLossPct / 100
	}

	if side == "LONG" || side == "BUY" {
		return entry - distance
	}
	return entry + distance
}

// UpdateTrailing ratchets the trailing stop toward price. A long stop only
// ever rises and a short stop only ever falls; no update loosens the stop.
// Returns true when the stop moved.
func (m *Manager) UpdateTrailing(pos *Position, price float64) bool {
	if pos == nil || price <= 0 {
		return false
	}
	m.mu.Lock()
	trailPct := m.limits.TrailingPct
	m.mu.Unlock()

	if pos.Side == "LONG" || pos.Side == "BUY" {
		candidate := price * (1 - trailPct/100)
		if candidate > pos.TrailingStop {
			pos.TrailingStop = candidate
			return true
		}
		return false
	}

	candidate := price * (1 + trailPct/100)
	if pos.TrailingStop == 0 || candidate < pos.TrailingStop {
		pos.TrailingStop = candidate
		return true
	}
	return false
}

// StopHit reports whether price has crossed the tighter of the protective
// and trailing stops
func StopHit(pos *Position, price float64) bool {
	if pos == nil || price <= 0 {
		return false
	}
	stop := pos.StopPrice
	if pos.Side == "LONG" || pos.Side == "BUY" {
		if pos.TrailingStop > stop {
			stop = pos.TrailingStop
		}
		return stop > 0 && price <= stop
	}
	if pos.TrailingStop > 0 && (stop == 0 || pos.TrailingStop < stop) {
		stop = pos.TrailingStop
	}
	return stop > 0 && price >= stop
}

// CheckGlobalDrawdown tracks peak equity and trips the kill switch when
// drawdown exceeds the mode cap. The switch is sticky: once tripped it
// stays tripped until ResetKillSwitch, regardless of recovery.
// Returns the current drawdown percent and the switch state.
func (m *Manager) CheckGlobalDrawdown(equity float64) (drawdownPct float64, tripped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.peakEquity > 0 {
		drawdownPct = (m.peakEquity - equity) / m.peakEquity * 100
	}

	if !m.tripped && drawdownPct >= m.limits.MaxDrawdownPct {
		m.tripped = true
		m.trippedAt = time.Now()
		logger.Errorf("🛑 [Risk] global kill switch tripped: drawdown %.2f%% >= %.2f%% (peak %.2f, equity %.2f)",
			drawdownPct, m.limits.MaxDrawdownPct, m.peakEquity, equity)
	}
	return drawdownPct, m.tripped
}

// KillSwitchTripped reports the sticky switch state
func (m *Manager) KillSwitchTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped
}

// ResetKillSwitch clears the switch and rebaselines peak equity. This is
// the explicit operator action; nothing else untrips the switch.
func (m *Manager) ResetKillSwitch(currentEquity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tripped {
		return
	}
	m.tripped = false
	m.peakEquity = currentEquity
	logger.Warnf("[Risk] kill switch reset by operator, peak rebased to %.2f", currentEquity)
}

// PositionAllowed checks the per-position notional cap against equity
func (m *Manager) PositionAllowed(notional, equity float64) (bool, string) {
	m.mu.Lock()
	limits := m.limits
	m.mu.Unlock()

	if equity <= 0 {
		return false, "no equity"
	}
	maxNotional := equity * limits.MaxPositionPct / 100
	if notional > maxNotional {
		return false, "position size cap exceeded"
	}
	return true, "ok"
}

// CorrelationOK computes the Pearson correlation of returns over the last
// 20 closes of each series and compares it to the mode cap
func (m *Manager) CorrelationOK(candidateCloses, heldCloses []float64) bool {
	m.mu.Lock()
	corrCap := m.limits.CorrelationCap
	m.mu.Unlock()

	corr, ok := ReturnCorrelation(candidateCloses, heldCloses)
	if !ok {
		// Not enough data to judge, allow
		return true
	}
	return math.Abs(corr) <= corrCap
}

// ReturnCorrelation returns the Pearson correlation of the return series
// built from the last 21 closes of each input. ok is false when either
// series is too short or degenerate.
func ReturnCorrelation(a, b []float64) (float64, bool) {
	const window = 21
	if len(a) < window || len(b) < window {
		return 0, false
	}
	ra := returns(a[len(a)-window:])
	rb := returns(b[len(b)-window:])

	meanA := mean(ra)
	meanB := mean(rb)

	var cov, varA, varB float64
	for i := range ra {
		da := ra[i] - meanA
		db := rb[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	return cov / math.Sqrt(varA*varB), true
}

func returns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
