// Package manager runs the whole bot: it rebalances capital across pairs
// on a schedule, keeps one grid controller alive per selected pair, and
// owns graceful shutdown of the lot.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"gridpilot/allocator"
	"gridpilot/config"
	"gridpilot/grid"
	"gridpilot/logger"
	"gridpilot/market"
	"gridpilot/pool"
	"gridpilot/risk"
	"gridpilot/store"
	"gridpilot/trader"
)

const shutdownTimeout = 15 * time.Second

// handle is one running controller plus its lifecycle state
type handle struct {
	ctrl   *grid.Controller
	cancel context.CancelFunc

	mu          sync.Mutex
	corrBlocked bool
	corrReason  string
}

func (h *handle) setCorrState(blocked bool, reason string) {
	h.mu.Lock()
	h.corrBlocked = blocked
	h.corrReason = reason
	h.mu.Unlock()
}

func (h *handle) corrState() (bool, string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.corrBlocked {
		return false, h.corrReason
	}
	return true, "ok"
}

// Manager owns the controllers and the rebalance/report loops
type Manager struct {
	cfg      *config.Config
	exch     trader.Exchange
	provider market.Provider
	analyzer *market.Analyzer
	alloc    *allocator.Allocator
	riskMgr  *risk.Manager
	cat      *pool.Catalogue
	st       *store.Store

	mu          sync.Mutex
	controllers map[string]*handle
	lastSnap    *allocator.Snapshot
	wg          sync.WaitGroup
}

// New wires a manager from its dependencies. Store may be nil.
func New(cfg *config.Config, exch trader.Exchange, provider market.Provider, analyzer *market.Analyzer,
	alloc *allocator.Allocator, riskMgr *risk.Manager, cat *pool.Catalogue, st *store.Store) *Manager {
	return &Manager{
		cfg:         cfg,
		exch:        exch,
		provider:    provider,
		analyzer:    analyzer,
		alloc:       alloc,
		riskMgr:     riskMgr,
		cat:         cat,
		st:          st,
		controllers: make(map[string]*handle),
	}
}

// Run blocks until ctx is cancelled. The first rebalance happens
// immediately, then on ReallocInterval; the status report on
// ReportInterval.
func (m *Manager) Run(ctx context.Context) error {
	logger.Infof("[Manager] starting, realloc=%v report=%v", m.cfg.ReallocInterval, m.cfg.ReportInterval)

	if err := m.rebalance(ctx); err != nil {
		logger.Warnf("[Manager] initial rebalance failed: %v", err)
	}

	realloc := time.NewTicker(m.cfg.ReallocInterval)
	defer realloc.Stop()
	report := time.NewTicker(m.cfg.ReportInterval)
	defer report.Stop()
	// supervision heartbeat follows the controller cycle cadence
	heartbeat := time.NewTicker(m.cfg.LadderInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-realloc.C:
			if err := m.rebalance(ctx); err != nil {
				logger.Warnf("[Manager] rebalance failed: %v", err)
			}
		case <-heartbeat.C:
			m.heartbeat()
		case <-report.C:
			logger.Infof("📊 [Manager] status report:\n%s", grid.Report(m.Statuses()))
			m.recordEquity(ctx)
		}
	}
}

// rebalance recomputes the allocation and reconciles the controller set:
// dropped pairs are stopped, surviving pairs get their new capital, new
// pairs get a fresh controller.
func (m *Manager) rebalance(ctx context.Context) error {
	equity, err := m.exch.GetEquity(ctx)
	if err != nil {
		return err
	}

	candidates := m.candidates(ctx)
	snap := m.alloc.Rebalance(equity, candidates)
	if snap == nil {
		logger.Warnf("[Manager] no viable allocation, keeping current controllers")
		return nil
	}

	if m.st != nil {
		rec := &store.AllocationRecord{
			Timestamp:      snap.Timestamp,
			TotalCapital:   snap.TotalCapital,
			WorkingCapital: snap.WorkingCapital,
			Tier:           string(snap.Tier),
			UsedFallback:   snap.UsedFallback,
			Allocations:    snap.Allocations,
		}
		if err := m.st.Allocation().Save(rec); err != nil {
			logger.Warnf("[Manager] failed to persist allocation: %v", err)
		}
	}

	m.mu.Lock()
	m.lastSnap = snap

	for symbol, h := range m.controllers {
		if _, keep := snap.Allocations[symbol]; !keep {
			logger.Infof("[Manager] %s dropped by rebalance, stopping controller", symbol)
			h.cancel()
			delete(m.controllers, symbol)
		}
	}

	for symbol, capital := range snap.Allocations {
		if h, ok := m.controllers[symbol]; ok {
			h.ctrl.SetCapital(capital)
			continue
		}
		m.startController(ctx, symbol, capital)
	}
	m.mu.Unlock()

	m.updateCorrelationGates(ctx, snap.Pairs)
	m.recordEquity(ctx)
	m.heartbeat()
	return nil
}

// heartbeat writes the supervision row external tooling watches
func (m *Manager) heartbeat() {
	if m.st == nil {
		return
	}
	tripped := m.riskMgr.KillSwitchTripped()
	status := "running"
	if tripped {
		status = "halted"
	}
	m.mu.Lock()
	active := len(m.controllers)
	m.mu.Unlock()

	if err := m.st.Instance().Heartbeat(status, tripped, active); err != nil {
		logger.Warnf("[Manager] failed to record heartbeat: %v", err)
	}
}

// startController launches one controller goroutine. Caller holds m.mu.
func (m *Manager) startController(ctx context.Context, symbol string, capital float64) {
	if err := m.exch.SetLeverage(ctx, symbol, m.cfg.Leverage); err != nil {
		logger.Warnf("[Manager] %s failed to set leverage: %v", symbol, err)
	}

	ctrl := grid.NewController(grid.Config{
		Symbol:        symbol,
		Capital:       capital,
		LevelsPerSide: m.cfg.LevelsPerSide,
		BaseSpacing:   m.cfg.BaseGridSpacing,
		MinOrderUSD:   m.cfg.MinOrderUSD,
		Leverage:      m.cfg.Leverage,
		CCIFloor:      m.cfg.CCIFloor,
	}, m.exch, m.analyzer, m.provider, m.riskMgr, m.st)

	h := &handle{ctrl: ctrl}
	ctrl.SetCorrelationGate(h.corrState)

	cctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	m.controllers[symbol] = h

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctrl.Run(cctx, m.cfg.LadderInterval)
	}()

	logger.Infof("✅ [Manager] %s controller started with %.2f USDT", symbol, capital)
}

// updateCorrelationGates recomputes pairwise return correlation across the
// held pairs. The best-ranked pair is never blocked; a later pair is
// blocked while its returns move too closely with any accepted one.
func (m *Manager) updateCorrelationGates(ctx context.Context, pairs []string) {
	closesBySymbol := make(map[string][]float64, len(pairs))
	for _, symbol := range pairs {
		klines, err := m.provider.Klines(ctx, symbol, "1h", 30)
		if err != nil {
			logger.Warnf("[Manager] %s correlation klines unavailable: %v", symbol, err)
			continue
		}
		closes := make([]float64, len(klines))
		for i, k := range klines {
			closes[i] = k.Close
		}
		closesBySymbol[symbol] = closes
	}

	var accepted []string
	for _, symbol := range pairs {
		m.mu.Lock()
		h, ok := m.controllers[symbol]
		m.mu.Unlock()
		if !ok {
			continue
		}

		blocked := false
		reason := ""
		for _, other := range accepted {
			if m.riskMgr.CorrelationOK(closesBySymbol[symbol], closesBySymbol[other]) {
				continue
			}
			blocked = true
			reason = "returns too correlated with " + other
			break
		}
		h.setCorrState(blocked, reason)
		if !blocked {
			accepted = append(accepted, symbol)
		} else {
			logger.Infof("[Manager] %s gated: %s", symbol, reason)
		}
	}
}

// candidates returns the tradeable universe, honoring SYMBOLS override
func (m *Manager) candidates(ctx context.Context) []allocator.PairMetrics {
	all := m.cat.Candidates(ctx)
	if len(m.cfg.SymbolsOverride) == 0 {
		return all
	}

	want := make(map[string]bool, len(m.cfg.SymbolsOverride))
	for _, s := range m.cfg.SymbolsOverride {
		want[s] = true
	}
	var out []allocator.PairMetrics
	for _, c := range all {
		if want[c.Symbol] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		logger.Warnf("[Manager] SYMBOLS override matched no catalogue candidates")
	}
	return out
}

// recordEquity persists one equity curve point
func (m *Manager) recordEquity(ctx context.Context) {
	if m.st == nil {
		return
	}
	equity, err := m.exch.GetEquity(ctx)
	if err != nil {
		logger.Warnf("[Manager] failed to read equity: %v", err)
		return
	}
	balance, err := m.exch.GetBalance(ctx)
	if err != nil {
		logger.Warnf("[Manager] failed to read balance: %v", err)
		return
	}
	positions, err := m.exch.GetPositions(ctx, "")
	if err != nil {
		logger.Warnf("[Manager] failed to read positions: %v", err)
	}

	unrealized := 0.0
	for _, p := range positions {
		unrealized += p.UnrealizedPnL
	}
	dd, _ := m.riskMgr.CheckGlobalDrawdown(equity)

	point := &store.EquityPoint{
		TotalEquity:   equity,
		Balance:       balance,
		UnrealizedPnL: unrealized,
		PositionCount: len(positions),
		DrawdownPct:   dd,
	}
	if err := m.st.Equity().Save(point); err != nil {
		logger.Warnf("[Manager] failed to persist equity point: %v", err)
	}
}

// shutdown stops every controller and waits, bounded
func (m *Manager) shutdown() {
	m.mu.Lock()
	for _, h := range m.controllers {
		h.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Infof("[Manager] all controllers drained")
	case <-time.After(shutdownTimeout):
		logger.Warnf("[Manager] shutdown timed out after %v", shutdownTimeout)
	}
}

// Statuses returns controller views sorted by symbol
func (m *Manager) Statuses() []grid.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]grid.Status, 0, len(m.controllers))
	for _, h := range m.controllers {
		out = append(out, h.ctrl.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// LatestAllocation returns the snapshot from the last successful rebalance
func (m *Manager) LatestAllocation() *allocator.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSnap
}

// KillSwitchTripped reports the global kill switch state
func (m *Manager) KillSwitchTripped() bool {
	return m.riskMgr.KillSwitchTripped()
}

// ResetKillSwitch rebaselines drawdown tracking at current equity and
// re-enables trading. Called from the API, never automatically.
func (m *Manager) ResetKillSwitch(ctx context.Context) error {
	equity, err := m.exch.GetEquity(ctx)
	if err != nil {
		return err
	}
	m.riskMgr.ResetKillSwitch(equity)
	return nil
}
