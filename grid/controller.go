// Package grid runs the adaptive grid for one symbol: it keeps a ladder of
// buy limits below and sell limits above the price, detects fills by
// diffing tracked orders against the venue's open-order list, and places a
// counter take-profit order for every fill. Regime, zone and account risk
// gates decide each cycle whether the ladder may run at all.
package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridpilot/logger"
	"gridpilot/market"
	"gridpilot/risk"
	"gridpilot/store"
	"gridpilot/trader"
)

const (
	defaultMaxSpreadPct = 0.001 // 0.1% bid/ask spread blocks the ladder
	defaultCCIFloor     = -100  // CCI below this blocks new ladder entries
)

// Config is the per-symbol tuning of one controller
type Config struct {
	Symbol        string
	Capital       float64 // allocated working capital in USDT
	LevelsPerSide int
	BaseSpacing   float64 // fraction, e.g. 0.006
	MinOrderUSD   float64
	Leverage      int
	MaxSpreadPct  float64 // 0 means defaultMaxSpreadPct
	CCIFloor      float64 // 0 means defaultCCIFloor
}

// trackedOrder is one order this controller placed and still considers live
type trackedOrder struct {
	ID          string
	ClientID    string
	Side        string // BUY/SELL
	Price       float64
	Quantity    float64
	Counter     bool    // take-profit counter order
	OriginPrice float64 // fill price the counter was derived from
	PlacedAt    time.Time
}

// Status is a point-in-time view of one controller for reporting
type Status struct {
	Symbol         string        `json:"symbol"`
	Paused         bool          `json:"paused"`
	PauseReason    string        `json:"pause_reason,omitempty"`
	Halted         bool          `json:"halted"`
	Regime         market.Regime `json:"regime"`
	Price          float64       `json:"price"`
	Capital        float64       `json:"capital"`
	LadderOrders   int           `json:"ladder_orders"`
	CounterOrders  int           `json:"counter_orders"`
	Fills          int           `json:"fills"`
	CounterFills   int           `json:"counter_fills"`
	RealizedProfit float64       `json:"realized_profit"`
	DailyPnL       float64       `json:"daily_pnl"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Controller drives the grid for a single symbol. All exchange access goes
// through the injected Exchange; all market reads through the analyzer and
// provider, so tests can run the full cycle against the paper venue.
type Controller struct {
	cfg      Config
	exch     trader.Exchange
	analyzer *market.Analyzer
	provider market.Provider
	riskMgr  *risk.Manager
	st       *store.Store // optional, nil disables persistence

	// corrGate is installed by the manager; it answers whether adding
	// exposure on this symbol keeps portfolio correlation in bounds
	corrGate func() (bool, string)

	mu           sync.Mutex
	tracked      map[string]trackedOrder
	seen         *seenSet
	paused       bool
	pauseReason  string
	halted       bool
	anchorPrice  float64
	anchorRegime market.Regime
	lastSnap     *market.Snapshot
	positions    map[string]*risk.Position // keyed by side

	totalFills     int
	counterFills   int
	realizedProfit float64
	dayStart       time.Time
	dayStartEquity float64
	dailyPnL       float64
	lastPrice      float64
}

// NewController creates a controller for one symbol. Store may be nil.
func NewController(cfg Config, exch trader.Exchange, analyzer *market.Analyzer, provider market.Provider, riskMgr *risk.Manager, st *store.Store) *Controller {
	if cfg.MaxSpreadPct <= 0 {
		cfg.MaxSpreadPct = defaultMaxSpreadPct
	}
	if cfg.CCIFloor == 0 {
		cfg.CCIFloor = defaultCCIFloor
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Controller{
		cfg:       cfg,
		exch:      exch,
		analyzer:  analyzer,
		provider:  provider,
		riskMgr:   riskMgr,
		st:        st,
		tracked:   make(map[string]trackedOrder),
		seen:      newSeenSet(1000),
		positions: make(map[string]*risk.Position),
	}
}

// SetCorrelationGate installs the portfolio-level correlation check. The
// manager wires this because a single controller cannot see its siblings.
func (c *Controller) SetCorrelationGate(gate func() (bool, string)) {
	c.mu.Lock()
	c.corrGate = gate
	c.mu.Unlock()
}

// SetCapital updates the allocated working capital after a rebalance
func (c *Controller) SetCapital(capital float64) {
	c.mu.Lock()
	c.cfg.Capital = capital
	c.mu.Unlock()
}

// Symbol returns the symbol this controller trades
func (c *Controller) Symbol() string {
	return c.cfg.Symbol
}

// RunCycle executes one full control cycle. The step order is fixed:
// kill switch, position stops, fill reconciliation, ladder maintenance,
// status accounting. Each step sees the effects of the previous one.
func (c *Controller) RunCycle(ctx context.Context) error {
	equity, err := c.exch.GetEquity(ctx)
	if err != nil {
		return fmt.Errorf("failed to get equity: %w", err)
	}
	c.rollDaily(equity)

	// 1. kill switch
	if _, tripped := c.riskMgr.CheckGlobalDrawdown(equity); tripped || c.riskMgr.KillSwitchTripped() {
		return c.halt(ctx)
	}
	c.mu.Lock()
	wasHalted := c.halted
	c.halted = false
	c.mu.Unlock()
	if wasHalted {
		logger.Infof("✅ [Grid] %s kill switch cleared, resuming", c.cfg.Symbol)
	}

	price, err := c.exch.GetMarketPrice(ctx, c.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to get market price: %w", err)
	}
	c.mu.Lock()
	c.lastPrice = price
	c.mu.Unlock()

	// 2. protective stops and trailing
	if err := c.checkStops(ctx, price); err != nil {
		logger.Warnf("[Grid] %s stop check failed: %v", c.cfg.Symbol, err)
	}

	// 3. fills
	if err := c.reconcileFills(ctx, price); err != nil {
		logger.Warnf("[Grid] %s fill reconciliation failed: %v", c.cfg.Symbol, err)
	}

	// 4. ladder
	if err := c.maintainLadder(ctx, price, equity); err != nil {
		logger.Warnf("[Grid] %s ladder maintenance failed: %v", c.cfg.Symbol, err)
	}

	return nil
}

// halt cancels everything and flattens all positions. It runs once per
// kill-switch trip; subsequent cycles return immediately until the switch
// is reset.
func (c *Controller) halt(ctx context.Context) error {
	c.mu.Lock()
	if c.halted {
		c.mu.Unlock()
		return nil
	}
	c.halted = true
	c.mu.Unlock()

	logger.Errorf("🛑 [Grid] %s kill switch tripped, cancelling orders and flattening", c.cfg.Symbol)

	if err := c.exch.CancelAllOrders(ctx, c.cfg.Symbol); err != nil {
		logger.Errorf("[Grid] %s failed to cancel orders on halt: %v", c.cfg.Symbol, err)
	}
	positions, err := c.exch.GetPositions(ctx, c.cfg.Symbol)
	if err != nil {
		logger.Errorf("[Grid] %s failed to list positions on halt: %v", c.cfg.Symbol, err)
	}
	for _, pos := range positions {
		if err := c.exch.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Quantity); err != nil {
			logger.Errorf("[Grid] %s failed to flatten %s position: %v", c.cfg.Symbol, pos.Side, err)
		}
	}

	c.mu.Lock()
	c.tracked = make(map[string]trackedOrder)
	c.positions = make(map[string]*risk.Position)
	c.mu.Unlock()
	return nil
}

// checkStops syncs local position state with the venue, ratchets trailing
// stops toward price and market-closes any position whose stop is hit.
func (c *Controller) checkStops(ctx context.Context, price float64) error {
	positions, err := c.exch.GetPositions(ctx, c.cfg.Symbol)
	if err != nil {
		return err
	}

	c.mu.Lock()
	snap := c.lastSnap
	c.mu.Unlock()
	atr := 0.0
	if snap != nil {
		atr = snap.ATR14
	}

	live := make(map[string]bool, len(positions))
	for _, pos := range positions {
		live[pos.Side] = true

		c.mu.Lock()
		rp, ok := c.positions[pos.Side]
		if !ok {
			rp = &risk.Position{
				Symbol:     pos.Symbol,
				Side:       pos.Side,
				EntryPrice: pos.EntryPrice,
				Quantity:   pos.Quantity,
				StopPrice:  c.riskMgr.StopPrice(pos.EntryPrice, pos.Side, atr),
				OpenedAt:   time.Now(),
			}
			c.positions[pos.Side] = rp
			logger.Infof("[Grid] %s tracking %s position entry=%.4f stop=%.4f",
				c.cfg.Symbol, pos.Side, rp.EntryPrice, rp.StopPrice)
		}
		rp.Quantity = pos.Quantity
		c.mu.Unlock()

		if c.riskMgr.UpdateTrailing(rp, price) {
			logger.Debugf("[Grid] %s %s trailing stop moved to %.4f", c.cfg.Symbol, pos.Side, rp.TrailingStop)
		}

		if risk.StopHit(rp, price) {
			logger.Warnf("🛑 [Grid] %s %s stop hit at %.4f (stop=%.4f trail=%.4f), closing",
				c.cfg.Symbol, pos.Side, price, rp.StopPrice, rp.TrailingStop)
			if err := c.exch.ClosePosition(ctx, pos.Symbol, pos.Side, pos.Quantity); err != nil {
				logger.Errorf("[Grid] %s failed to close stopped position: %v", c.cfg.Symbol, err)
				continue
			}
			c.mu.Lock()
			delete(c.positions, pos.Side)
			c.realizedProfit += pos.UnrealizedPnL
			c.mu.Unlock()
		}
	}

	// drop local state for positions the venue no longer reports
	c.mu.Lock()
	for side := range c.positions {
		if !live[side] {
			delete(c.positions, side)
		}
	}
	c.mu.Unlock()
	return nil
}

// rollDaily resets the daily PnL baseline at the first cycle of each day
func (c *Controller) rollDaily(equity float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if c.dayStart.IsZero() || now.YearDay() != c.dayStart.YearDay() || now.Year() != c.dayStart.Year() {
		c.dayStart = now
		c.dayStartEquity = equity
	}
	if c.dayStartEquity > 0 {
		c.dailyPnL = equity - c.dayStartEquity
	}
}

// Status returns the current controller view for the report and API
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	ladder, counters := 0, 0
	for _, ord := range c.tracked {
		if ord.Counter {
			counters++
		} else {
			ladder++
		}
	}

	s := Status{
		Symbol:         c.cfg.Symbol,
		Paused:         c.paused,
		PauseReason:    c.pauseReason,
		Halted:         c.halted,
		Price:          c.lastPrice,
		Capital:        c.cfg.Capital,
		LadderOrders:   ladder,
		CounterOrders:  counters,
		Fills:          c.totalFills,
		CounterFills:   c.counterFills,
		RealizedProfit: c.realizedProfit,
		DailyPnL:       c.dailyPnL,
		UpdatedAt:      time.Now(),
	}
	if c.lastSnap != nil {
		s.Regime = c.lastSnap.Regime
	}
	return s
}
