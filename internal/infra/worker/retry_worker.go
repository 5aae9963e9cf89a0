package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/usecase"
)

type retryBatch interface {
	Execute(ctx context.Context) (*usecase.RetrySummary, error)
}

// RetryWorker re-sends failed emails in periodic batches.
type RetryWorker struct {
	retry    retryBatch
	interval time.Duration
	logger   *zap.Logger
}

func NewRetryWorker(retry retryBatch, interval time.Duration, logger *zap.Logger) *RetryWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryWorker{retry: retry, interval: interval, logger: logger}
}

func (w *RetryWorker) Start(ctx context.Context) {
	runEvery(ctx, w.logger, "retry", w.interval, w.runOnce)
}

func (w *RetryWorker) runOnce(ctx context.Context) {
	summary, err := w.retry.Execute(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("retry batch aborted", zap.Error(err))
		}
		return
	}
	if summary.Candidates > 0 {
		w.logger.Debug("retry tick done", zap.Int("candidates", summary.Candidates))
	}
}
