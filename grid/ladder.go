package grid

import (
	"context"
	"errors"
	"math"
	"time"

	"gridpilot/logger"
	"gridpilot/market"
	"gridpilot/trader"
	"gridpilot/zonal"
)

// maintainLadder is the placing half of the cycle. Gates run first: regime,
// momentum, spread, capital floor, correlation. When the ladder is stale (regime
// changed, price drifted past one spacing step, or no ladder orders left)
// it is cancelled and rebuilt from a fresh plan.
func (c *Controller) maintainLadder(ctx context.Context, price, equity float64) error {
	snap, err := c.analyzer.Snapshot(ctx, c.cfg.Symbol)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.lastSnap = snap
	c.mu.Unlock()

	if ok, reason := market.ShouldTrade(snap); !ok {
		return c.pauseLadder(ctx, reason)
	}
	if snap.CCI14 < c.cfg.CCIFloor {
		return c.pauseLadder(ctx, "momentum below floor")
	}
	c.mu.Lock()
	wasPaused := c.paused
	c.paused = false
	c.pauseReason = ""
	c.mu.Unlock()
	if wasPaused {
		logger.Infof("✅ [Grid] %s conditions recovered, resuming ladder", c.cfg.Symbol)
	}

	if ticker, err := c.provider.Ticker24h(ctx, c.cfg.Symbol); err != nil {
		logger.Warnf("[Grid] %s spread check unavailable: %v", c.cfg.Symbol, err)
	} else if spread := ticker.SpreadPct(); spread >= c.cfg.MaxSpreadPct {
		logger.Infof("[Grid] %s spread %.4f%% too wide, skipping ladder this cycle", c.cfg.Symbol, spread*100)
		return nil
	}

	c.mu.Lock()
	capital := c.cfg.Capital
	c.mu.Unlock()
	if capital < 2*c.cfg.MinOrderUSD {
		logger.Warnf("[Grid] %s capital %.2f below floor %.2f, ladder idle",
			c.cfg.Symbol, capital, 2*c.cfg.MinOrderUSD)
		return nil
	}

	c.mu.Lock()
	gate := c.corrGate
	c.mu.Unlock()
	if gate != nil {
		if ok, reason := gate(); !ok {
			logger.Infof("[Grid] %s correlation gate closed: %s", c.cfg.Symbol, reason)
			return nil
		}
	}

	if !c.needRebuild(price, snap.Regime) {
		return nil
	}

	if err := c.cancelLadderOrders(ctx); err != nil {
		return err
	}
	return c.buildLadder(ctx, price, equity, snap)
}

// needRebuild decides whether the resting ladder still matches the market
func (c *Controller) needRebuild(price float64, regime market.Regime) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ladderCount := 0
	for _, ord := range c.tracked {
		if !ord.Counter {
			ladderCount++
		}
	}
	if ladderCount == 0 {
		return true
	}
	if regime != c.anchorRegime {
		logger.Infof("[Grid] %s regime shifted %s → %s, rebuilding ladder", c.cfg.Symbol, c.anchorRegime, regime)
		return true
	}
	if c.anchorPrice > 0 && math.Abs(price-c.anchorPrice)/c.anchorPrice > c.cfg.BaseSpacing {
		logger.Infof("[Grid] %s price drifted %.4f → %.4f, rebuilding ladder", c.cfg.Symbol, c.anchorPrice, price)
		return true
	}
	return false
}

// pauseLadder cancels resting ladder orders and holds until conditions
// recover. Counter orders stay: they close exposure, they never add it.
func (c *Controller) pauseLadder(ctx context.Context, reason string) error {
	c.mu.Lock()
	alreadyPaused := c.paused
	c.paused = true
	c.pauseReason = reason
	c.mu.Unlock()
	if alreadyPaused {
		return nil
	}

	logger.Warnf("⚠️ [Grid] %s ladder paused: %s", c.cfg.Symbol, reason)
	return c.cancelLadderOrders(ctx)
}

// cancelLadderOrders cancels every tracked non-counter order. An order the
// venue no longer knows stays tracked so the next reconciliation treats it
// as the fill it was.
func (c *Controller) cancelLadderOrders(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.tracked))
	for id, ord := range c.tracked {
		if !ord.Counter {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.exch.CancelOrder(ctx, c.cfg.Symbol, id); err != nil {
			if errors.Is(err, trader.ErrOrderNotFound) || trader.Classify(err) == trader.ClassPermanent {
				// likely filled between listing and cancel, leave it
				// tracked for the reconciler
				logger.Infof("[Grid] %s cancel of %s rejected, deferring to fill check", c.cfg.Symbol, id)
				continue
			}
			logger.Warnf("[Grid] %s failed to cancel %s: %v", c.cfg.Symbol, id, err)
			continue
		}
		c.mu.Lock()
		delete(c.tracked, id)
		c.mu.Unlock()
	}
	return nil
}

// buildLadder places the buy and sell limits from a fresh zonal plan
func (c *Controller) buildLadder(ctx context.Context, price, equity float64, snap *market.Snapshot) error {
	filters, err := c.exch.GetSymbolFilters(ctx, c.cfg.Symbol)
	if err != nil {
		return err
	}

	c.mu.Lock()
	capital := c.cfg.Capital
	c.mu.Unlock()

	plan := zonal.GridPlan(price, c.cfg.LevelsPerSide, c.cfg.BaseSpacing, snap.Regime, snap.Volatility)
	placed := 0
	for _, level := range plan {
		sizeUSD := zonal.OptimalPositionSize(capital, level.Zone, snap.Regime, snap.Volatility, c.cfg.MinOrderUSD)
		qty := sizeUSD * float64(c.cfg.Leverage) / level.Price

		if qty < filters.MinQty || qty*level.Price < filters.MinNotional {
			logger.Debugf("[Grid] %s level %.4f under min lot (qty=%.8f), skipped", c.cfg.Symbol, level.Price, qty)
			continue
		}

		if ok, reason := c.riskMgr.PositionAllowed(sizeUSD, equity); !ok {
			logger.Warnf("[Grid] %s position gate closed: %s, stopping ladder build", c.cfg.Symbol, reason)
			break
		}

		res, err := c.exch.PlaceLimitOrder(ctx, &trader.LimitOrderRequest{
			Symbol:   c.cfg.Symbol,
			Side:     level.Side,
			Price:    level.Price,
			Quantity: qty,
			ClientID: trader.NewClientID(),
		})
		if err != nil {
			if errors.Is(err, trader.ErrInsufficientFunds) || trader.Classify(err) == trader.ClassRisk {
				logger.Warnf("💸 [Grid] %s insufficient funds, stopping ladder build at %d orders", c.cfg.Symbol, placed)
				break
			}
			logger.Warnf("[Grid] %s failed to place %s @ %.4f: %v", c.cfg.Symbol, level.Side, level.Price, err)
			continue
		}

		c.mu.Lock()
		c.tracked[res.OrderID] = trackedOrder{
			ID:       res.OrderID,
			ClientID: res.ClientID,
			Side:     res.Side,
			Price:    res.Price,
			Quantity: res.Quantity,
			PlacedAt: time.Now(),
		}
		c.mu.Unlock()
		placed++
	}

	c.mu.Lock()
	c.anchorPrice = price
	c.anchorRegime = snap.Regime
	c.mu.Unlock()

	if placed > 0 {
		logger.Infof("✅ [Grid] %s ladder rebuilt: %d orders around %.4f (regime=%s)",
			c.cfg.Symbol, placed, price, snap.Regime)
	}
	return nil
}
