package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// CampaignRunPayload asks a worker to run (or resume) one campaign.
type CampaignRunPayload struct {
	CampaignID  string    `json:"campaign_id"`
	Origin      string    `json:"origin"`
	RequestedAt time.Time `json:"requested_at"`
}

const (
	OriginAPI       = "api"
	OriginScheduler = "scheduler"
)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch publisher
}

func NewProducer(ch publisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishCampaignRun(ctx context.Context, payload CampaignRunPayload) error {
	if payload.RequestedAt.IsZero() {
		payload.RequestedAt = time.Now().UTC()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding campaign run payload: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    payload.CampaignID,
			Timestamp:    payload.RequestedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing campaign run: %w", err)
	}
	return nil
}
