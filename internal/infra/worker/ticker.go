package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runEvery calls tick once immediately and then on every interval until ctx
// is cancelled. A tick that overruns the interval delays the next one.
func runEvery(ctx context.Context, logger *zap.Logger, name string, interval time.Duration, tick func(context.Context)) {
	logger.Info("worker started", zap.String("worker", name), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped", zap.String("worker", name))
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}
