package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xavierca1/leadforge/internal/entity"
	"github.com/xavierca1/leadforge/internal/infra/queue"
	"github.com/xavierca1/leadforge/internal/usecase"
)

const scheduleBatchSize = 20

// ScheduledCampaignWorker hands due scheduled campaigns to the run queue.
// A claim is released when publishing fails so the next tick picks the
// campaign up again.
type ScheduledCampaignWorker struct {
	campaigns entity.CampaignRepositoryInterface
	queue     usecase.CampaignQueue
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewScheduledCampaignWorker(
	campaigns entity.CampaignRepositoryInterface,
	q usecase.CampaignQueue,
	interval time.Duration,
	logger *zap.Logger,
) *ScheduledCampaignWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduledCampaignWorker{
		campaigns: campaigns,
		queue:     q,
		interval:  interval,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (w *ScheduledCampaignWorker) Start(ctx context.Context) {
	runEvery(ctx, w.logger, "scheduled_campaigns", w.interval, func(ctx context.Context) { w.runOnce(ctx) })
}

func (w *ScheduledCampaignWorker) runOnce(ctx context.Context) int {
	now := w.now()
	ids, err := w.campaigns.ClaimDue(ctx, now, scheduleBatchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("could not claim due campaigns", zap.Error(err))
		}
		return 0
	}

	published := 0
	for _, id := range ids {
		payload := queue.CampaignRunPayload{CampaignID: id, Origin: queue.OriginScheduler, RequestedAt: now}
		if err := w.queue.PublishCampaignRun(ctx, payload); err != nil {
			w.logger.Error("could not enqueue scheduled campaign", zap.String("campaign_id", id), zap.Error(err))
			if rerr := w.campaigns.ReleaseClaim(context.WithoutCancel(ctx), id); rerr != nil {
				w.logger.Error("could not release campaign claim", zap.String("campaign_id", id), zap.Error(rerr))
			}
			continue
		}
		published++
		w.logger.Info("scheduled campaign enqueued", zap.String("campaign_id", id))
	}
	return published
}
