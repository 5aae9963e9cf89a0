package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/usecase"
)

type scoreRefresher interface {
	ExecuteAll(ctx context.Context) (*usecase.RefreshSummary, error)
}

// ScoreRefreshWorker periodically recomputes every active lead's score so
// that engagement decays even when no new events arrive.
type ScoreRefreshWorker struct {
	scores   scoreRefresher
	interval time.Duration
	logger   *zap.Logger
}

func NewScoreRefreshWorker(scores scoreRefresher, interval time.Duration, logger *zap.Logger) *ScoreRefreshWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreRefreshWorker{scores: scores, interval: interval, logger: logger}
}

func (w *ScoreRefreshWorker) Start(ctx context.Context) {
	runEvery(ctx, w.logger, "score_refresh", w.interval, w.runOnce)
}

func (w *ScoreRefreshWorker) runOnce(ctx context.Context) {
	start := time.Now()
	summary, err := w.scores.ExecuteAll(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.Error("score refresh aborted", zap.Error(err))
	}
	if summary == nil {
		return
	}
	w.logger.Info("score refresh finished",
		zap.Int("processed", summary.Processed),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(start)),
	)
}
