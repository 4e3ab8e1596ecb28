// Package zonal derives per-level risk parameters from the distance
// between a grid level and the current price. Levels close to price trade
// tighter and bigger, far levels trade wider and smaller.
package zonal

import (
	"gridpilot/market"
)

// Zone is the distance band of a grid level relative to current price
type Zone string

const (
	ZoneClose  Zone = "close"
	ZoneMedium Zone = "medium"
	ZoneFar    Zone = "far"
)

// Distance band boundaries (fraction of current price)
const (
	closeBand  = 0.015
	mediumBand = 0.04
)

// Params are the risk parameters applied to one grid level after zone,
// regime and volatility adjustments
type Params struct {
	Zone        Zone    `json:"zone"`
	TakeProfit  float64 `json:"take_profit_pct"` // percent
	StopLoss    float64 `json:"stop_loss_pct"`   // percent
	SizeMult    float64 `json:"size_mult"`
	SpacingMult float64 `json:"spacing_mult"`
	MaxLevels   int     `json:"max_levels"` // ladder levels per side in this zone
}

// base parameters per zone, before adjustments
var zoneTable = map[Zone]Params{
	ZoneClose:  {Zone: ZoneClose, TakeProfit: 0.8, StopLoss: 0.5, SizeMult: 1.2, SpacingMult: 0.8, MaxLevels: 4},
	ZoneMedium: {Zone: ZoneMedium, TakeProfit: 1.5, StopLoss: 1.0, SizeMult: 1.0, SpacingMult: 1.0, MaxLevels: 3},
	ZoneFar:    {Zone: ZoneFar, TakeProfit: 2.5, StopLoss: 1.8, SizeMult: 0.7, SpacingMult: 1.4, MaxLevels: 2},
}

type regimeAdjust struct {
	tp, sl, size float64
}

// multiplicative regime adjustments, applied after the zone table
var regimeTable = map[market.Regime]regimeAdjust{
	market.RegimeStrongUptrend:   {tp: 1.3, sl: 1.1, size: 1.1},
	market.RegimeStrongDowntrend: {tp: 1.3, sl: 1.1, size: 0.8},
	market.RegimeHighVolatility:  {tp: 1.5, sl: 1.4, size: 0.7},
	market.RegimeLowVolatility:   {tp: 0.8, sl: 0.9, size: 1.1},
	market.RegimeSideways:        {tp: 1.0, sl: 1.0, size: 1.2},
	market.RegimeOverbought:      {tp: 0.9, sl: 1.0, size: 0.8},
	market.RegimeOversold:        {tp: 0.9, sl: 1.0, size: 0.8},
	market.RegimeNeutral:         {tp: 1.0, sl: 1.0, size: 1.0},
}

// ZoneFor returns the distance band of a level price relative to current
func ZoneFor(levelPrice, currentPrice float64) Zone {
	if currentPrice <= 0 {
		return ZoneMedium
	}
	d := levelPrice - currentPrice
	if d < 0 {
		d = -d
	}
	dist := d / currentPrice
	switch {
	case dist < closeBand:
		return ZoneClose
	case dist < mediumBand:
		return ZoneMedium
	default:
		return ZoneFar
	}
}

// ParamsFor applies the fixed adjustment order: zone table, then regime
// multipliers, then volatility. Same inputs always produce the same output.
func ParamsFor(zone Zone, regime market.Regime, volatility float64) Params {
	p := zoneTable[zone]

	adj, ok := regimeTable[regime]
	if !ok {
		adj = regimeTable[market.RegimeNeutral]
	}
	p.TakeProfit *= adj.tp
	p.StopLoss *= adj.sl
	p.SizeMult *= adj.size

	// Volatility adjustment comes last: high volatility widens both exit
	// distances and shrinks size, low volatility does the opposite
	if volatility > 0.8 {
		p.TakeProfit *= 1.3
		p.StopLoss *= 1.4
		p.SizeMult *= 0.8
	} else if volatility > 0 && volatility < 0.2 {
		p.TakeProfit *= 0.8
		p.StopLoss *= 0.7
		p.SizeMult *= 1.2
	}

	return p
}

// DynamicTPSL returns absolute take-profit and stop-loss prices for an
// entry at the given level
func DynamicTPSL(entry float64, side string, zone Zone, regime market.Regime, volatility float64) (tp, sl float64) {
	p := ParamsFor(zone, regime, volatility)
	if side == "BUY" || side == "LONG" {
		tp = entry * (1 + p.TakeProfit/100)
		sl = entry * (1 - p.StopLoss/100)
	} else {
		tp = entry * (1 - p.TakeProfit/100)
		sl = entry * (1 + p.StopLoss/100)
	}
	return tp, sl
}

// OptimalPositionSize returns the USD notional for one grid level:
// 10% of allocated capital scaled by the zone/regime/volatility size
// multiplier, clamped to [minOrderUSD, 30% of capital]
func OptimalPositionSize(capital float64, zone Zone, regime market.Regime, volatility, minOrderUSD float64) float64 {
	if capital <= 0 {
		return 0
	}
	p := ParamsFor(zone, regime, volatility)
	size := capital * 0.10 * p.SizeMult

	maxSize := capital * 0.30
	if size > maxSize {
		size = maxSize
	}
	if size < minOrderUSD {
		size = minOrderUSD
	}
	return size
}

// Level is one planned grid level
type Level struct {
	Side  string  `json:"side"` // BUY or SELL
	Price float64 `json:"price"`
	Zone  Zone    `json:"zone"`
}

// GridPlan builds buy levels below and sell levels above current price.
// Spacing stretches as levels move outward: each step is the base spacing
// scaled by the spacing multiplier of the zone the level lands in. Each
// zone holds at most its MaxLevels levels per side; levels beyond the cap
// are dropped while the walk keeps stepping outward.
// Levels are returned sorted by distance from current price, buys first.
func GridPlan(currentPrice float64, levelsPerSide int, baseSpacing float64, regime market.Regime, volatility float64) []Level {
	if currentPrice <= 0 || levelsPerSide <= 0 || baseSpacing <= 0 {
		return nil
	}

	levels := make([]Level, 0, levelsPerSide*2)

	counts := make(map[Zone]int)
	price := currentPrice
	for i := 0; i < levelsPerSide; i++ {
		zone := ZoneFor(price, currentPrice)
		p := ParamsFor(zone, regime, volatility)
		price = price * (1 - baseSpacing*p.SpacingMult)
		landed := ZoneFor(price, currentPrice)
		if counts[landed] >= zoneTable[landed].MaxLevels {
			continue
		}
		counts[landed]++
		levels = append(levels, Level{Side: "BUY", Price: price, Zone: landed})
	}

	counts = make(map[Zone]int)
	price = currentPrice
	for i := 0; i < levelsPerSide; i++ {
		zone := ZoneFor(price, currentPrice)
		p := ParamsFor(zone, regime, volatility)
		price = price * (1 + baseSpacing*p.SpacingMult)
		landed := ZoneFor(price, currentPrice)
		if counts[landed] >= zoneTable[landed].MaxLevels {
			continue
		}
		counts[landed]++
		levels = append(levels, Level{Side: "SELL", Price: price, Zone: landed})
	}

	return levels
}
