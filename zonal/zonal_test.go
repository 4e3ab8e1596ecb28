package zonal

import (
	"testing"

	"gridpilot/market"
)

func TestZoneFor(t *testing.T) {
	tests := []struct {
		name     string
		level    float64
		current  float64
		expected Zone
	}{
		{"at price", 100.0, 100.0, ZoneClose},
		{"one percent below", 99.0, 100.0, ZoneClose},
		{"two percent above", 102.0, 100.0, ZoneMedium},
		{"three percent below", 97.0, 100.0, ZoneMedium},
		{"five percent above", 105.0, 100.0, ZoneFar},
		{"ten percent below", 90.0, 100.0, ZoneFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ZoneFor(tt.level, tt.current); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

// TP and SL widen monotonically from close to far, in every regime and
// volatility setting
func TestZoneMonotonicity(t *testing.T) {
	regimes := []market.Regime{
		market.RegimeStrongUptrend, market.RegimeStrongDowntrend,
		market.RegimeSideways, market.RegimeHighVolatility,
		market.RegimeLowVolatility, market.RegimeOverbought,
		market.RegimeOversold, market.RegimeNeutral,
	}
	vols := []float64{0.05, 0.3, 0.9}

	for _, regime := range regimes {
		for _, vol := range vols {
			close := ParamsFor(ZoneClose, regime, vol)
			medium := ParamsFor(ZoneMedium, regime, vol)
			far := ParamsFor(ZoneFar, regime, vol)

			if !(close.TakeProfit <= medium.TakeProfit && medium.TakeProfit <= far.TakeProfit) {
				t.Errorf("TP not monotonic for %s vol=%.2f: %.3f %.3f %.3f",
					regime, vol, close.TakeProfit, medium.TakeProfit, far.TakeProfit)
			}
			if !(close.StopLoss <= medium.StopLoss && medium.StopLoss <= far.StopLoss) {
				t.Errorf("SL not monotonic for %s vol=%.2f: %.3f %.3f %.3f",
					regime, vol, close.StopLoss, medium.StopLoss, far.StopLoss)
			}
		}
	}
}

func TestParamsDeterministic(t *testing.T) {
	a := ParamsFor(ZoneMedium, market.RegimeHighVolatility, 0.85)
	b := ParamsFor(ZoneMedium, market.RegimeHighVolatility, 0.85)
	if a != b {
		t.Errorf("Params not deterministic: %+v vs %+v", a, b)
	}
}

func TestVolatilityAdjustment(t *testing.T) {
	base := ParamsFor(ZoneMedium, market.RegimeNeutral, 0.5)
	high := ParamsFor(ZoneMedium, market.RegimeNeutral, 0.85)
	low := ParamsFor(ZoneMedium, market.RegimeNeutral, 0.1)

	// High volatility widens both exit distances and shrinks size
	if high.TakeProfit <= base.TakeProfit {
		t.Errorf("Expected wider TP under high volatility: %.3f vs %.3f", high.TakeProfit, base.TakeProfit)
	}
	if high.StopLoss <= base.StopLoss {
		t.Errorf("Expected wider SL under high volatility: %.3f vs %.3f", high.StopLoss, base.StopLoss)
	}
	if high.SizeMult >= base.SizeMult {
		t.Errorf("Expected smaller size under high volatility: %.3f vs %.3f", high.SizeMult, base.SizeMult)
	}

	// Low volatility does the opposite on all three fields
	if low.TakeProfit >= base.TakeProfit {
		t.Errorf("Expected tighter TP under low volatility: %.3f vs %.3f", low.TakeProfit, base.TakeProfit)
	}
	if low.StopLoss >= base.StopLoss {
		t.Errorf("Expected tighter SL under low volatility: %.3f vs %.3f", low.StopLoss, base.StopLoss)
	}
	if low.SizeMult <= base.SizeMult {
		t.Errorf("Expected bigger size under low volatility: %.3f vs %.3f", low.SizeMult, base.SizeMult)
	}
}

func TestDynamicTPSL(t *testing.T) {
	tp, sl := DynamicTPSL(100, "BUY", ZoneClose, market.RegimeNeutral, 0.5)
	if tp <= 100 {
		t.Errorf("Expected long TP above entry, got %.4f", tp)
	}
	if sl >= 100 {
		t.Errorf("Expected long SL below entry, got %.4f", sl)
	}

	tp, sl = DynamicTPSL(100, "SELL", ZoneClose, market.RegimeNeutral, 0.5)
	if tp >= 100 {
		t.Errorf("Expected short TP below entry, got %.4f", tp)
	}
	if sl <= 100 {
		t.Errorf("Expected short SL above entry, got %.4f", sl)
	}
}

func TestOptimalPositionSize(t *testing.T) {
	// 10% base with neutral multipliers
	size := OptimalPositionSize(1000, ZoneMedium, market.RegimeNeutral, 0.5, 10)
	if size != 100 {
		t.Errorf("Expected 100 USD at neutral medium, got %.2f", size)
	}

	// Clamped up to minimum order
	size = OptimalPositionSize(50, ZoneFar, market.RegimeHighVolatility, 0.9, 10)
	if size < 10 {
		t.Errorf("Expected at least min order size, got %.2f", size)
	}

	// Never above 30% of capital
	size = OptimalPositionSize(100, ZoneClose, market.RegimeSideways, 0.5, 10)
	if size > 30 {
		t.Errorf("Expected size capped at 30%% of capital, got %.2f", size)
	}
}

func TestGridPlan(t *testing.T) {
	levels := GridPlan(100, 3, 0.006, market.RegimeSideways, 0.3)
	if len(levels) != 6 {
		t.Fatalf("Expected 6 levels, got %d", len(levels))
	}

	var buys, sells []Level
	for _, l := range levels {
		if l.Side == "BUY" {
			buys = append(buys, l)
		} else {
			sells = append(sells, l)
		}
	}
	if len(buys) != 3 || len(sells) != 3 {
		t.Fatalf("Expected 3 buys and 3 sells, got %d/%d", len(buys), len(sells))
	}

	// Buys strictly below current and strictly descending
	prev := 100.0
	for _, b := range buys {
		if b.Price >= prev {
			t.Errorf("Buy levels not descending: %.4f >= %.4f", b.Price, prev)
		}
		prev = b.Price
	}

	// Sells strictly above current and strictly ascending
	prev = 100.0
	for _, s := range sells {
		if s.Price <= prev {
			t.Errorf("Sell levels not ascending: %.4f <= %.4f", s.Price, prev)
		}
		prev = s.Price
	}
}

func TestGridPlanZoneLevelCaps(t *testing.T) {
	// Far more requested levels than the zone caps allow: tight spacing
	// keeps the walk inside the close band for many steps
	levels := GridPlan(100, 20, 0.002, market.RegimeNeutral, 0.5)

	counts := make(map[string]map[Zone]int)
	for _, l := range levels {
		if counts[l.Side] == nil {
			counts[l.Side] = make(map[Zone]int)
		}
		counts[l.Side][l.Zone]++
	}
	caps := map[Zone]int{ZoneClose: 4, ZoneMedium: 3, ZoneFar: 2}
	for side, byZone := range counts {
		for zone, n := range byZone {
			if n > caps[zone] {
				t.Errorf("%s side holds %d %s levels, cap is %d", side, n, zone, caps[zone])
			}
		}
	}
	if counts["BUY"][ZoneClose] != 4 {
		t.Errorf("Expected the close zone filled to its 4-level cap, got %d", counts["BUY"][ZoneClose])
	}
}

func TestGridPlanSpacingStretchesOutward(t *testing.T) {
	// With enough levels the ladder crosses into the medium and far zones
	// where the spacing multiplier is larger
	levels := GridPlan(100, 10, 0.006, market.RegimeNeutral, 0.3)

	var buys []Level
	for _, l := range levels {
		if l.Side == "BUY" {
			buys = append(buys, l)
		}
	}

	firstGap := 100 - buys[0].Price
	lastGap := buys[len(buys)-2].Price - buys[len(buys)-1].Price
	if lastGap <= firstGap {
		t.Errorf("Expected outward spacing to stretch: first=%.4f last=%.4f", firstGap, lastGap)
	}
}
