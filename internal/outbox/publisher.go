// Package outbox relays committed outbox rows to RabbitMQ. Delivery is at
// least once: a row is marked published in the same transaction that
// claimed it, after the broker confirmed the message.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticketing/internal/adapters/crdb"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/observability"
)

const defaultBatchSize = 50

type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ClaimUnpublished(ctx context.Context, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store     Store
	broker    Broker
	clock     clock.Clock
	logger    observability.Logger
	interval  time.Duration
	batchSize int
}

func NewPublisher(store Store, broker Broker, clk clock.Clock, logger observability.Logger, interval time.Duration) *Publisher {
	return &Publisher{
		store:     store,
		broker:    broker,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		batchSize: defaultBatchSize,
	}
}

func (p *Publisher) Run(ctx context.Context) {
	p.logger.WithField("interval", p.interval.String()).Info("outbox publisher started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain in batches until a short batch says we caught up.
			for {
				n, err := p.PublishBatch(ctx)
				if err != nil {
					p.logger.WithError(err).Error("outbox batch failed")
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// PublishBatch claims up to one batch of unpublished rows and publishes
// them in order. A broker failure stops the batch; rows already confirmed
// are still marked.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	published := 0
	err := p.store.WithTx(ctx, func(ctx context.Context) error {
		published = 0
		records, err := p.store.ClaimUnpublished(ctx, p.batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Type:        rec.EventType,
				Timestamp:   rec.CreatedAt,
				Body:        rec.Payload,
				Headers: amqp.Table{
					"aggregate_type": rec.AggregateType,
					"aggregate_id":   rec.AggregateID.String(),
				},
			}
			if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
				observability.RabbitPublishFailures.Inc()
				p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish failed, will retry")
				return nil
			}
			now := p.clock.Now()
			if err := p.store.MarkPublished(ctx, rec.ID, now); err != nil {
				return err
			}
			observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if published > 0 {
		p.logger.WithField("count", published).Debug("outbox batch published")
	}
	return published, nil
}
