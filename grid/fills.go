package grid

import (
	"context"
	"math"
	"time"

	"gridpilot/logger"
	"gridpilot/market"
	"gridpilot/store"
	"gridpilot/trader"
	"gridpilot/zonal"
)

// reconcileFills detects fills by diffing tracked orders against the open
// order list: an order we placed that the venue no longer shows has either
// filled or been cancelled externally, and since this controller is the
// only canceller of its own orders, absence means fill. The seen set plus
// the fills table make handling exactly-once, in memory and across
// restarts.
func (c *Controller) reconcileFills(ctx context.Context, price float64) error {
	open, err := c.exch.GetOpenOrders(ctx, c.cfg.Symbol)
	if err != nil {
		return err
	}

	active := make(map[string]bool, len(open))
	for _, ord := range open {
		active[ord.OrderID] = true
	}

	c.mu.Lock()
	gone := make([]trackedOrder, 0)
	for id, ord := range c.tracked {
		if !active[id] {
			gone = append(gone, ord)
			delete(c.tracked, id)
		}
	}
	snap := c.lastSnap
	c.mu.Unlock()

	regime := market.RegimeNeutral
	volatility := 0.0
	if snap != nil {
		regime = snap.Regime
		volatility = snap.Volatility
	}

	for _, ord := range gone {
		if !c.seen.Add(ord.ID) {
			logger.Debugf("[Grid] %s order %s already handled, skipping", c.cfg.Symbol, ord.ID)
			continue
		}

		if c.st != nil {
			inserted, err := c.st.Fill().Record(&store.Fill{
				Symbol:   c.cfg.Symbol,
				OrderID:  ord.ID,
				ClientID: ord.ClientID,
				Side:     ord.Side,
				Price:    ord.Price,
				Quantity: ord.Quantity,
				FilledAt: time.Now().UTC(),
			})
			if err != nil {
				logger.Warnf("[Grid] %s failed to record fill %s: %v", c.cfg.Symbol, ord.ID, err)
			} else if !inserted {
				// handled in a previous run of the process
				logger.Infof("[Grid] %s fill %s already recorded, not re-countering", c.cfg.Symbol, ord.ID)
				continue
			}
		}

		if ord.Counter {
			profit := math.Abs(ord.Price-ord.OriginPrice) * ord.Quantity
			c.mu.Lock()
			c.counterFills++
			c.realizedProfit += profit
			c.mu.Unlock()
			c.recordStats(true, profit)
			logger.Infof("✅ [Grid] %s counter %s filled at %.4f, round trip profit %.4f USDT",
				c.cfg.Symbol, ord.Side, ord.Price, profit)
			continue
		}

		c.mu.Lock()
		c.totalFills++
		c.mu.Unlock()
		c.recordStats(false, 0)
		logger.Infof("💰 [Grid] %s %s filled %.6f @ %.4f", c.cfg.Symbol, ord.Side, ord.Quantity, ord.Price)

		if err := c.placeCounterOrder(ctx, ord, price, regime, volatility); err != nil {
			logger.Warnf("[Grid] %s failed to place counter for %s: %v", c.cfg.Symbol, ord.ID, err)
		}
	}
	return nil
}

func (c *Controller) recordStats(counter bool, profit float64) {
	if c.st == nil {
		return
	}
	if err := c.st.Stats().RecordFill(c.cfg.Symbol, counter, profit); err != nil {
		logger.Warnf("[Grid] %s failed to update trade stats: %v", c.cfg.Symbol, err)
	}
}

// placeCounterOrder places the take-profit leg for a fill on the opposite
// side, at the dynamic TP price for the fill's zone
func (c *Controller) placeCounterOrder(ctx context.Context, fill trackedOrder, price float64, regime market.Regime, volatility float64) error {
	counterPrice, _ := zonal.DynamicTPSL(fill.Price, fill.Side, zonal.ZoneFor(fill.Price, price), regime, volatility)

	side := "SELL"
	if fill.Side == "SELL" {
		side = "BUY"
	}

	res, err := c.exch.PlaceLimitOrder(ctx, &trader.LimitOrderRequest{
		Symbol:   c.cfg.Symbol,
		Side:     side,
		Price:    counterPrice,
		Quantity: fill.Quantity,
		ClientID: trader.NewClientID(),
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tracked[res.OrderID] = trackedOrder{
		ID:          res.OrderID,
		ClientID:    res.ClientID,
		Side:        side,
		Price:       res.Price,
		Quantity:    res.Quantity,
		Counter:     true,
		OriginPrice: fill.Price,
		PlacedAt:    time.Now(),
	}
	c.mu.Unlock()

	logger.Infof("[Grid] %s counter %s placed %.6f @ %.4f (origin %.4f)",
		c.cfg.Symbol, side, res.Quantity, res.Price, fill.Price)
	return nil
}
