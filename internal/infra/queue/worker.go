package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// CampaignRunner executes one campaign run job.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID string) error
}

// ErrSkip marks a job that must be acknowledged without running,
// e.g. a campaign that already completed.
var ErrSkip = errors.New("campaign run skipped")

type consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

type Worker struct {
	Channel consumer
	Runner  CampaignRunner
	logger  *zap.Logger
}

func NewWorker(ch consumer, runner CampaignRunner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{Channel: ch, Runner: runner, logger: logger}
}

// Start consumes queueName until ctx is cancelled or the channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	w.logger.Info("campaign worker waiting for jobs", zap.String("queue", queueName))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("campaign worker stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.handle(ctx, d)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	w.process(ctx, d.Body, d)
}

func (w *Worker) process(ctx context.Context, body []byte, ack acknowledger) {
	var payload CampaignRunPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.CampaignID == "" {
		w.logger.Error("malformed campaign run job", zap.ByteString("body", body), zap.Error(err))
		nack(w.logger, ack)
		return
	}

	log := w.logger.With(zap.String("campaign_id", payload.CampaignID), zap.String("origin", payload.Origin))
	log.Info("campaign run job received")

	err := w.Runner.Run(ctx, payload.CampaignID)
	if ctx.Err() != nil {
		// shutting down mid-run: leave the delivery unacked so the broker
		// redelivers it and the next run resumes the campaign
		log.Warn("campaign run interrupted by shutdown", zap.Error(err))
		return
	}
	switch {
	case err == nil:
		ackOne(log, ack)
	case errors.Is(err, ErrSkip):
		log.Info("campaign run job skipped", zap.Error(err))
		ackOne(log, ack)
	default:
		log.Error("campaign run job failed", zap.Error(err))
		nack(log, ack)
	}
}

// A failed ack or nack means the channel is gone and the broker will
// redeliver the job.
func ackOne(log *zap.Logger, ack acknowledger) {
	if err := ack.Ack(false); err != nil {
		log.Error("could not ack campaign run job", zap.Error(err))
	}
}

func nack(log *zap.Logger, ack acknowledger) {
	if err := ack.Nack(false, false); err != nil {
		log.Error("could not nack campaign run job", zap.Error(err))
	}
}
