package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const ExchangeName = "tickets.events"

type Publisher struct {
	ch *amqp.Channel
}

// NewPublisher declares the topic exchange and puts the channel in confirm
// mode, so Publish returns only once the broker has taken the message.
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	msg.DeliveryMode = amqp.Persistent
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, ExchangeName, key, false, false, msg)
	if err != nil {
		return errors.Wrapf(err, "publish %s", key)
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm %s", key)
	}
	if !ok {
		return errors.Newf("broker nacked %s", key)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
