package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"rmqmeta/internal/config"
)

// Publisher sends bodies to the configured exchange with publisher confirms.
type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// DialPublisher connects and declares the exchange.
func DialPublisher(cfg *config.Config) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL())
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	rmq := cfg.RabbitMQ
	if err := ch.ExchangeDeclare(rmq.ExchangeName, rmq.ExchangeType, rmq.ExchangeDurable, rmq.AutoDelete, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", rmq.ExchangeName, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: rmq.ExchangeName}, nil
}

// Publish sends body with routingKey and waits for the broker confirm. The
// generated message id is returned.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) (string, error) {
	id := uuid.NewString()
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		AppId:        "rmqmeta",
		Body:         body,
	})
	if err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", fmt.Errorf("await confirm: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("broker rejected message %s", id)
	}
	return id, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	_ = p.ch.Close()
	return p.conn.Close()
}
