package allocator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierFor(t *testing.T) {
	tests := []struct {
		capital  float64
		expected Tier
	}{
		{0, TierMicro},
		{399, TierMicro},
		{400, TierSmall},
		{999, TierSmall},
		{1000, TierMedium},
		{1999, TierMedium},
		{2000, TierLarge},
		{3500, TierXLarge},
		{5000, TierMega},
		{50000, TierMega},
	}
	for _, tt := range tests {
		if got := TierFor(tt.capital); got.Tier != tt.expected {
			t.Errorf("TierFor(%.0f) = %s, expected %s", tt.capital, got.Tier, tt.expected)
		}
	}
}

func TestPairMetricsScore(t *testing.T) {
	deep := PairMetrics{Symbol: "BTCUSDT", VolatilityPct: 3, QuoteVolume24h: 50_000_000, CorrBTC: 0}
	thin := PairMetrics{Symbol: "XYZUSDT", VolatilityPct: 3, QuoteVolume24h: 10_000, CorrBTC: 0}

	deep.Score()
	thin.Score()

	assert.Greater(t, deep.ProfitPotential, thin.ProfitPotential)
	assert.Less(t, deep.RiskScore, thin.RiskScore)
}

// With $1,000 the medium tier requires volatility 2-4% and liquidity over
// $1M: only BTCUSDT qualifies and it takes the whole working budget
func TestThousandDollarScenario(t *testing.T) {
	a := New(0.5, true)

	candidates := []PairMetrics{
		{Symbol: "BTCUSDT", VolatilityPct: 3, QuoteVolume24h: 5_000_000, CorrBTC: 0},
		{Symbol: "XYZUSDT", VolatilityPct: 0.5, QuoteVolume24h: 10_000, CorrBTC: 0.1},
	}

	snap := a.Rebalance(1000, candidates)
	require.NotNil(t, snap)

	assert.Equal(t, TierMedium, snap.Tier)
	assert.False(t, snap.UsedFallback)
	require.Len(t, snap.Pairs, 1)
	assert.Equal(t, "BTCUSDT", snap.Pairs[0])
	assert.InDelta(t, 500.0, snap.Allocations["BTCUSDT"], 1e-9)
}

func TestSelectPairsFallback(t *testing.T) {
	// Nothing passes the medium tier filter
	candidates := []PairMetrics{
		{Symbol: "AAAUSDT", VolatilityPct: 9, QuoteVolume24h: 5_000_000, CorrBTC: 0.2},
		{Symbol: "BBBUSDT", VolatilityPct: 8, QuoteVolume24h: 4_000_000, CorrBTC: 0.3},
	}

	a := New(0.5, true)
	selected, usedFallback := a.SelectPairs(1500, candidates)
	assert.True(t, usedFallback)
	assert.NotEmpty(t, selected)

	// Fallback disabled: selection is empty instead
	strict := New(0.5, false)
	selected, usedFallback = strict.SelectPairs(1500, candidates)
	assert.False(t, usedFallback)
	assert.Empty(t, selected)
}

func TestAllocationConservation(t *testing.T) {
	a := New(0.5, true)

	candidates := []PairMetrics{
		{Symbol: "BTCUSDT", VolatilityPct: 3, QuoteVolume24h: 50_000_000, CorrBTC: 0},
		{Symbol: "ETHUSDT", VolatilityPct: 3.5, QuoteVolume24h: 30_000_000, CorrBTC: 0.4},
		{Symbol: "SOLUSDT", VolatilityPct: 3.8, QuoteVolume24h: 10_000_000, CorrBTC: 0.5},
		{Symbol: "XRPUSDT", VolatilityPct: 2.5, QuoteVolume24h: 8_000_000, CorrBTC: 0.55},
	}

	snap := a.Rebalance(4000, candidates)
	require.NotNil(t, snap)
	require.NotEmpty(t, snap.Allocations)

	sum := 0.0
	for _, alloc := range snap.Allocations {
		sum += alloc
	}
	assert.LessOrEqual(t, sum, snap.WorkingCapital+1e-9)
	assert.InDelta(t, snap.WorkingCapital, sum, 1e-6) // nothing left on the table either
}

func TestTopPairPremium(t *testing.T) {
	a := New(1.0, true)

	candidates := []PairMetrics{
		{Symbol: "AAAUSDT", VolatilityPct: 3, QuoteVolume24h: 50_000_000, CorrBTC: 0},
		{Symbol: "BBBUSDT", VolatilityPct: 2.5, QuoteVolume24h: 20_000_000, CorrBTC: 0.1},
		{Symbol: "CCCUSDT", VolatilityPct: 2.2, QuoteVolume24h: 10_000_000, CorrBTC: 0.2},
	}

	snap := a.Rebalance(1800, candidates)
	require.NotNil(t, snap)
	require.Len(t, snap.Pairs, 3)

	top := snap.Allocations[snap.Pairs[0]]
	even := snap.WorkingCapital / 3
	assert.InDelta(t, even*1.2, top, 1e-9)

	// Remaining pairs split the rest evenly
	rest := snap.Allocations[snap.Pairs[1]]
	assert.InDelta(t, (snap.WorkingCapital-top)/2, rest, 1e-9)
	assert.InDelta(t, rest, snap.Allocations[snap.Pairs[2]], 1e-9)
}

func TestAllocationMinPerPairClamp(t *testing.T) {
	a := New(1.0, true)

	// Micro tier (min 100 per pair): 230 working over 2 pairs would leave
	// the second pair under the minimum, so it is dropped
	candidates := []PairMetrics{
		{Symbol: "AAAUSDT", VolatilityPct: 3, QuoteVolume24h: 5_000_000, CorrBTC: 0},
		{Symbol: "BBBUSDT", VolatilityPct: 2.5, QuoteVolume24h: 2_000_000, CorrBTC: 0.1},
	}

	snap := a.Rebalance(230, candidates)
	require.NotNil(t, snap)
	require.Len(t, snap.Pairs, 1)
	assert.InDelta(t, 230.0, snap.Allocations[snap.Pairs[0]], 1e-9)
}

func TestRebalanceBelowMinimumCapital(t *testing.T) {
	a := New(0.5, true)
	snap := a.Rebalance(150, []PairMetrics{
		{Symbol: "BTCUSDT", VolatilityPct: 3, QuoteVolume24h: 5_000_000},
	})
	assert.Nil(t, snap)
}

func TestSnapshotPairsInScoreOrder(t *testing.T) {
	a := New(0.5, true)

	candidates := []PairMetrics{
		{Symbol: "LOWUSDT", VolatilityPct: 2.1, QuoteVolume24h: 1_200_000, CorrBTC: 0.1},
		{Symbol: "HIGHUSDT", VolatilityPct: 3.9, QuoteVolume24h: 9_000_000, CorrBTC: 0},
	}

	snap := a.Rebalance(1200, candidates)
	require.NotNil(t, snap)
	require.Len(t, snap.Pairs, 2)
	assert.Equal(t, "HIGHUSDT", snap.Pairs[0])

	top := snap.Allocations[snap.Pairs[0]]
	for _, p := range snap.Pairs[1:] {
		assert.True(t, top >= snap.Allocations[p] || math.Abs(top-snap.Allocations[p]) < 1e-9)
	}
}
