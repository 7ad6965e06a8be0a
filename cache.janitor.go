package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunJanitor periodically evicts unused entries until ctx is done.
func (c *QueryCache) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("cache janitor started", zap.Duration("cache.interval", interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache janitor stopped")
			return nil
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("cache janitor evicted entries", zap.Int("cache.evicted", n))
			}
		}
	}
}
