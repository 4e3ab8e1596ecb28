// Package allocator buckets account capital into tiers, selects tradable
// pairs per tier policy and splits the working capital across them. A
// single allocator instance owns the capital state; controllers consume
// read-only snapshots.
package allocator

import (
	"math"
	"sort"
	"time"

	"gridpilot/logger"
)

// Tier is a capital-size bracket
type Tier string

const (
	TierMicro  Tier = "micro"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
	TierXLarge Tier = "xlarge"
	TierMega   Tier = "mega"
)

// MinWorkingCapital is the floor below which no allocation happens
const MinWorkingCapital = 200.0

// topPairPremium is the multiple of the even split granted to the
// highest-scored pair
const topPairPremium = 1.2

// TierPolicy fixes the selection bounds and pair budget for one tier
type TierPolicy struct {
	Tier          Tier    `json:"tier"`
	FloorUSD      float64 `json:"floor_usd"` // inclusive lower bound
	PairCount     int     `json:"pair_count"`
	MinPerPair    float64 `json:"min_per_pair"`
	VolatilityMin float64 `json:"volatility_min"` // percent
	VolatilityMax float64 `json:"volatility_max"` // percent
	MinLiquidity  float64 `json:"min_liquidity"`  // 24h quote volume USD
	MaxCorr       float64 `json:"max_corr"`
}

// ordered low to high; TierFor walks it backwards
var tierTable = []TierPolicy{
	{Tier: TierMicro, FloorUSD: 0, PairCount: 2, MinPerPair: 100, VolatilityMin: 1, VolatilityMax: 5, MinLiquidity: 500_000, MaxCorr: 0.7},
	{Tier: TierSmall, FloorUSD: 400, PairCount: 3, MinPerPair: 120, VolatilityMin: 2, VolatilityMax: 5, MinLiquidity: 750_000, MaxCorr: 0.7},
	{Tier: TierMedium, FloorUSD: 1000, PairCount: 4, MinPerPair: 150, VolatilityMin: 2, VolatilityMax: 4, MinLiquidity: 1_000_000, MaxCorr: 0.6},
	{Tier: TierLarge, FloorUSD: 2000, PairCount: 5, MinPerPair: 200, VolatilityMin: 2, VolatilityMax: 4, MinLiquidity: 2_000_000, MaxCorr: 0.6},
	{Tier: TierXLarge, FloorUSD: 3500, PairCount: 6, MinPerPair: 250, VolatilityMin: 1.5, VolatilityMax: 4, MinLiquidity: 5_000_000, MaxCorr: 0.5},
	{Tier: TierMega, FloorUSD: 5000, PairCount: 8, MinPerPair: 300, VolatilityMin: 1.5, VolatilityMax: 3.5, MinLiquidity: 10_000_000, MaxCorr: 0.5},
}

// TierFor returns the policy whose bracket contains capital
func TierFor(capital float64) TierPolicy {
	policy := tierTable[0]
	for _, t := range tierTable {
		if capital >= t.FloorUSD {
			policy = t
		}
	}
	return policy
}

// PairMetrics is the scored view of one candidate pair
type PairMetrics struct {
	Symbol          string  `json:"symbol"`
	VolatilityPct   float64 `json:"volatility_pct"`   // 24h range as percent
	QuoteVolume24h  float64 `json:"quote_volume_24h"` // USD
	CorrBTC         float64 `json:"corr_btc"`
	ProfitPotential float64 `json:"profit_potential"`
	RiskScore       float64 `json:"risk_score"`
}

// Score fills in ProfitPotential and RiskScore from the raw metrics
func (p *PairMetrics) Score() {
	liqFactor := math.Min(1.0, p.QuoteVolume24h/10_000_000)
	absCorr := math.Abs(p.CorrBTC)

	p.ProfitPotential = p.VolatilityPct * liqFactor * (1 - 0.3*absCorr)
	p.RiskScore = 0.5*p.VolatilityPct/10 + 0.3*absCorr + 0.2*(1-liqFactor)
}

// Snapshot is the immutable result of one rebalance pass
type Snapshot struct {
	Timestamp      time.Time          `json:"timestamp"`
	TotalCapital   float64            `json:"total_capital"`
	WorkingCapital float64            `json:"working_capital"`
	Tier           Tier               `json:"tier"`
	Pairs          []string           `json:"pairs"` // score order, best first
	Allocations    map[string]float64 `json:"allocations"`
	UsedFallback   bool               `json:"used_fallback"`
}

// Allocator selects pairs and splits working capital. Safe for use from a
// single rebalance goroutine; snapshots it hands out are never mutated.
type Allocator struct {
	workingPct    float64
	allowFallback bool
}

// New creates an allocator. workingPct is the share of total capital put
// to work; allowFallback enables the top-N fallback when no pair passes
// the tier filter.
func New(workingPct float64, allowFallback bool) *Allocator {
	if workingPct <= 0 || workingPct > 1 {
		workingPct = 0.5
	}
	return &Allocator{workingPct: workingPct, allowFallback: allowFallback}
}

// SelectPairs filters candidates by the tier's volatility window,
// liquidity floor and correlation cap, in descending score order, until
// the tier pair count is met. When nothing passes and fallback is
// enabled, the top-N by raw profit potential are taken instead; that path
// is logged distinctly.
func (a *Allocator) SelectPairs(capital float64, candidates []PairMetrics) ([]PairMetrics, bool) {
	policy := TierFor(capital)

	scored := make([]PairMetrics, len(candidates))
	copy(scored, candidates)
	for i := range scored {
		scored[i].Score()
	}
	sort.Slice(scored, func(i, j int) bool {
		return scored[i].ProfitPotential > scored[j].ProfitPotential
	})

	var selected []PairMetrics
	for _, p := range scored {
		if len(selected) >= policy.PairCount {
			break
		}
		if p.VolatilityPct < policy.VolatilityMin || p.VolatilityPct > policy.VolatilityMax {
			continue
		}
		if p.QuoteVolume24h < policy.MinLiquidity {
			continue
		}
		if math.Abs(p.CorrBTC) > policy.MaxCorr {
			continue
		}
		selected = append(selected, p)
	}

	if len(selected) > 0 {
		return selected, false
	}

	if !a.allowFallback || len(scored) == 0 {
		logger.Warnf("[Allocator] no pair passed tier %s filters, fallback disabled", policy.Tier)
		return nil, false
	}

	n := policy.PairCount
	if n > len(scored) {
		n = len(scored)
	}
	fallback := scored[:n]
	names := make([]string, len(fallback))
	for i, p := range fallback {
		names[i] = p.Symbol
	}
	logger.Warnf("⚠️ [Allocator] FALLBACK selection: no pair passed tier %s filters, taking top %d by raw score: %v",
		policy.Tier, n, names)
	return fallback, true
}

// Rebalance runs a full selection + allocation pass and returns the new
// snapshot. Returns nil when capital is below the working minimum or no
// pair could be selected.
func (a *Allocator) Rebalance(totalCapital float64, candidates []PairMetrics) *Snapshot {
	if totalCapital < MinWorkingCapital {
		logger.Warnf("[Allocator] capital %.2f below minimum %.2f, skipping rebalance",
			totalCapital, MinWorkingCapital)
		return nil
	}

	policy := TierFor(totalCapital)
	selected, usedFallback := a.SelectPairs(totalCapital, candidates)
	if len(selected) == 0 {
		return nil
	}

	working := totalCapital * a.workingPct
	allocations := a.allocate(working, selected, policy)
	if len(allocations) == 0 {
		return nil
	}

	pairs := make([]string, 0, len(allocations))
	for _, p := range selected {
		if _, ok := allocations[p.Symbol]; ok {
			pairs = append(pairs, p.Symbol)
		}
	}

	snap := &Snapshot{
		Timestamp:      time.Now(),
		TotalCapital:   totalCapital,
		WorkingCapital: working,
		Tier:           policy.Tier,
		Pairs:          pairs,
		Allocations:    allocations,
		UsedFallback:   usedFallback,
	}
	logger.Infof("💰 [Allocator] tier=%s working=%.2f pairs=%d fallback=%v",
		policy.Tier, working, len(pairs), usedFallback)
	return snap
}

// allocate splits working capital: the top-scored pair takes the premium
// multiple of the even split, the rest share the remainder equally. Pairs
// whose share would fall under the tier minimum are dropped (lowest score
// first) and the pass is retried, so the freed budget flows to the pairs
// that remain. The sum of allocations never exceeds working capital.
func (a *Allocator) allocate(working float64, selected []PairMetrics, policy TierPolicy) map[string]float64 {
	pairs := make([]PairMetrics, len(selected))
	copy(pairs, selected)

	for len(pairs) > 0 {
		n := len(pairs)
		if n == 1 {
			return map[string]float64{pairs[0].Symbol: working}
		}

		even := working / float64(n)
		topShare := even * topPairPremium
		if topShare > working {
			topShare = working
		}
		restShare := (working - topShare) / float64(n-1)

		if restShare < policy.MinPerPair && n > 1 {
			// Drop the weakest pair and retry with a bigger split
			pairs = pairs[:n-1]
			continue
		}

		out := make(map[string]float64, n)
		out[pairs[0].Symbol] = topShare
		for _, p := range pairs[1:] {
			out[p.Symbol] = restShare
		}
		return out
	}
	return nil
}
