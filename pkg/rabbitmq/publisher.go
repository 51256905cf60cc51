package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"sync"
	"time"
	"worker-pipeline/config"
	"worker-pipeline/dto"
)

type Publisher interface {
	PublishJobFinished(ctx context.Context, event dto.JobFinishedEvent) error
}

type publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

// NewPublisher declares the exchange and returns a publisher bound to one channel.
// amqp channels are not safe for concurrent use, so publishes are serialized.
func NewPublisher(ctx context.Context, conn *amqp.Connection, cfg *config.RabbitMQ) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(cfg.ExchangeName, cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("exchange", cfg.ExchangeName).Msg("failed to declare exchange")
		_ = ch.Close()
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("exchange", cfg.ExchangeName).
		Str("kind", cfg.Kind).
		Msg("job event publisher ready")

	return &publisher{
		ch:       ch,
		exchange: cfg.ExchangeName,
	}, nil
}

func (p *publisher) PublishJobFinished(ctx context.Context, event dto.JobFinishedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx, p.exchange, event.RoutingKey(), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.JobId.String(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.RoutingKey(), err)
	}

	return nil
}

type noopPublisher struct{}

// NewNoopPublisher is used when no broker is configured.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) PublishJobFinished(context.Context, dto.JobFinishedEvent) error {
	return nil
}
