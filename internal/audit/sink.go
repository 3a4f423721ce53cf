// Package audit turns domain events from the exchange into audit log
// entries.
package audit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	mongoadapter "github.com/robertarktes/event-ticketing/internal/adapters/mongo"
	"github.com/robertarktes/event-ticketing/internal/clock"
	"github.com/robertarktes/event-ticketing/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
)

type Recorder interface {
	Record(ctx context.Context, entry mongoadapter.AuditLog) (bool, error)
}

type Sink struct {
	recorder Recorder
	clock    clock.Clock
	logger   observability.Logger
}

func NewSink(recorder Recorder, clk clock.Clock, logger observability.Logger) *Sink {
	return &Sink{recorder: recorder, clock: clk, logger: logger}
}

// Run handles deliveries until the channel closes or ctx is done.
func (s *Sink) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				s.logger.Warn("delivery channel closed")
				return
			}
			s.Handle(ctx, d)
		}
	}
}

// Handle records one delivery and acks it. Malformed messages are rejected
// without requeue; store failures are requeued.
func (s *Sink) Handle(ctx context.Context, d amqp.Delivery) {
	log := s.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	entry, err := s.entry(d)
	if err != nil {
		log.WithError(err).Warn("dropping malformed message")
		_ = d.Reject(false)
		return
	}

	stored, err := s.recorder.Record(ctx, entry)
	if err != nil {
		log.WithError(err).Error("audit record failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	if !stored {
		log.Debug("duplicate delivery ignored")
	}
	_ = d.Ack(false)
}

func (s *Sink) entry(d amqp.Delivery) (mongoadapter.AuditLog, error) {
	var data bson.M
	if err := json.Unmarshal(d.Body, &data); err != nil {
		return mongoadapter.AuditLog{}, err
	}
	id := d.MessageId
	if id == "" {
		id = d.RoutingKey + ":" + string(d.Body)
	}
	occurred := d.Timestamp
	now := s.clock.Now()
	if occurred.IsZero() {
		occurred = now
	}
	return mongoadapter.AuditLog{
		ID:            id,
		Action:        d.RoutingKey,
		AggregateType: headerString(d.Headers, "aggregate_type"),
		AggregateID:   headerString(d.Headers, "aggregate_id"),
		OccurredAt:    occurred.UTC(),
		RecordedAt:    now.UTC().Truncate(time.Millisecond),
		Data:          data,
	}, nil
}

func headerString(h amqp.Table, key string) string {
	if v, ok := h[key].(string); ok {
		return v
	}
	return ""
}
