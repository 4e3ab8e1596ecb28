package grid

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"gridpilot/logger"
)

// Run drives the controller until ctx is cancelled. The first cycle runs
// immediately so a fresh controller does not sit idle for a full interval.
// A failed cycle stretches the wait with exponential backoff instead of
// hammering a struggling venue; the first success snaps back to the normal
// interval. On cancellation the resting ladder is withdrawn; counter
// orders stay so open exposure can still close itself.
func (c *Controller) Run(ctx context.Context, interval time.Duration) {
	logger.Infof("[Grid] %s controller started, interval=%v", c.cfg.Symbol, interval)

	b := &backoff.Backoff{
		Min:    2 * interval,
		Max:    10 * interval,
		Factor: 2,
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-timer.C:
			if err := c.RunCycle(ctx); err != nil {
				d := b.Duration()
				logger.Warnf("[Grid] %s cycle failed: %v, backing off %v", c.cfg.Symbol, err, d)
				timer.Reset(d)
				continue
			}
			b.Reset()
			timer.Reset(interval)
		}
	}
}

// shutdown withdraws the ladder with a bounded timeout, detached from the
// already-cancelled run context
func (c *Controller) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.cancelLadderOrders(ctx); err != nil {
		logger.Warnf("[Grid] %s failed to withdraw ladder on shutdown: %v", c.cfg.Symbol, err)
	}
	logger.Infof("[Grid] %s controller stopped", c.cfg.Symbol)
}
