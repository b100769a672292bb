package transport

import (
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
)

// declarer is the subset of *amqp.Channel used to declare topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Close() error
}

var errNoQueues = errors.New("no queue could be declared and bound")

// declareTopology declares the exchange and binds every route. A failed
// declaration closes the broker channel, so each route gets its own channel
// and a failing route is logged and skipped. The routes that were bound are
// returned.
func declareTopology(open func() (declarer, error), cfg *config.Config, logger *slog.Logger) ([]config.Route, error) {
	rmq := cfg.RabbitMQ
	ch, err := open()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(rmq.ExchangeName, rmq.ExchangeType, rmq.ExchangeDurable, rmq.AutoDelete, false, false, nil)
	_ = ch.Close()
	if err != nil {
		return nil, fmt.Errorf("declare exchange %q: %w", rmq.ExchangeName, err)
	}

	bound := make([]config.Route, 0, len(cfg.Routes))
	for _, route := range cfg.Routes {
		if err := bindRoute(open, rmq, route); err != nil {
			logging.WarnWithContext(logger, "queue skipped", "queue_bind_failed",
				logging.String("queue", route.Queue),
				logging.String(logging.FieldRoutingKey, route.RoutingKey),
				logging.Error(err),
				logging.String(logging.FieldImpact, "messages for this routing key are not consumed"),
			)
			continue
		}
		logger.Debug("queue bound",
			logging.String("queue", route.Queue),
			logging.String(logging.FieldRoutingKey, route.RoutingKey),
			logging.String(logging.FieldExchange, rmq.ExchangeName),
		)
		bound = append(bound, route)
	}
	if len(bound) == 0 {
		return nil, errNoQueues
	}
	return bound, nil
}

func bindRoute(open func() (declarer, error), rmq config.RabbitMQ, route config.Route) error {
	ch, err := open()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(route.Queue, rmq.QueueDurable, rmq.AutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(route.Queue, route.RoutingKey, rmq.ExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}
