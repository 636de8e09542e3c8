package gatekeeper

import (
	"context"
	"time"
)

// StartSweeper runs [Engine.SweepExpired] every Config.Session.SweepInterval
// until [Engine.Close]. It is a no-op when the interval is zero or the
// sweeper is already running.
func (e *Engine) StartSweeper() {
	interval := e.config.Session.SweepInterval
	if interval <= 0 || e.isClosed() {
		return
	}

	e.sweeperOnce.Do(func() {
		e.sweeperWG.Add(1)
		go func() {
			defer e.sweeperWG.Done()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					e.sweepOnce(interval)
				case <-e.closed:
					return
				}
			}
		}()
	})
}

func (e *Engine) sweepOnce(budget time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	// SweepExpired logs failures; the next tick retries.
	_, _ = e.SweepExpired(ctx)
}
