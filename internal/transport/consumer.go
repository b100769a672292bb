package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"rmqmeta/internal/config"
	"rmqmeta/internal/logging"
	"rmqmeta/internal/pipeline"
)

// Processor runs one message to a terminal state.
type Processor interface {
	Process(ctx context.Context, msg pipeline.Message) (*pipeline.Outcome, error)
}

// ConsumerOption customizes a Consumer.
type ConsumerOption func(*Consumer)

// WithQueueState is called whenever a queue gains or loses its consumer.
func WithQueueState(fn func(queue string, up bool)) ConsumerOption {
	return func(c *Consumer) { c.onQueueState = fn }
}

// Consumer feeds broker deliveries to a Processor.
type Consumer struct {
	cfg          *config.Config
	processor    Processor
	logger       *slog.Logger
	onQueueState func(queue string, up bool)

	mu        sync.Mutex
	connected bool
	queues    []string
	processed int64
}

// Status is a point-in-time view of the consumer.
type Status struct {
	Connected bool
	Queues    []string
	Processed int64
}

// NewConsumer constructs a consumer for cfg's exchange and routes.
func NewConsumer(cfg *config.Config, processor Processor, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		cfg:       cfg,
		processor: processor,
		logger:    logging.NewComponentLogger(logger, "transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status reports connection state and bound queues.
func (c *Consumer) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{Connected: c.connected, Queues: append([]string(nil), c.queues...), Processed: c.processed}
}

// Run consumes until ctx is cancelled. Broker failures end the current
// session; a new session starts after the configured reconnect delay.
func (c *Consumer) Run(ctx context.Context) error {
	wait := time.Duration(c.cfg.RabbitMQ.ReconnectSeconds) * time.Second
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		logging.WarnWithContext(c.logger, "broker session ended", "broker_disconnected",
			logging.Error(err),
			logging.Duration("retry_in", wait),
			logging.String(logging.FieldErrorHint, "check that RabbitMQ is reachable at "+c.cfg.RabbitMQ.Host),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Consumer) session(ctx context.Context) error {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName("rmqmeta-" + c.cfg.RabbitMQ.ExchangeName)
	conn, err := amqp.DialConfig(c.cfg.AMQPURL(), amqp.Config{
		Heartbeat:  time.Duration(c.cfg.RabbitMQ.HeartbeatSeconds) * time.Second,
		Properties: props,
	})
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	routes, err := declareTopology(func() (declarer, error) { return conn.Channel() }, c.cfg, c.logger)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close()
	if err := ch.Qos(c.cfg.RabbitMQ.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	cancelled := ch.NotifyCancel(make(chan string, len(routes)))

	done := make(chan struct{})
	defer close(done)
	deliveries := make(chan amqp.Delivery)
	lost := make(chan string, len(routes))
	queues := make([]string, 0, len(routes))
	for _, route := range routes {
		tag := c.cfg.RabbitMQ.ConsumerTag + "-" + route.Queue
		src, err := ch.Consume(route.Queue, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", route.Queue, err)
		}
		go func(queue string) {
			if forward(src, deliveries, done) {
				lost <- queue
			}
		}(route.Queue)
		queues = append(queues, route.Queue)
	}
	c.setConnected(true, queues)
	defer c.setConnected(false, queues)

	c.logger.Info("consuming",
		logging.String(logging.FieldExchange, c.cfg.RabbitMQ.ExchangeName),
		logging.Strings("queues", queues),
		logging.Int("prefetch", c.cfg.RabbitMQ.Prefetch),
	)

	return c.consume(ctx, sessionEvents{
		deliveries: deliveries,
		connClosed: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chanClosed: chanClosed,
		cancelled:  cancelled,
		lost:       lost,
	})
}

// sessionEvents are the signals one broker session waits on. Any of them
// other than a delivery ends the session.
type sessionEvents struct {
	deliveries <-chan amqp.Delivery
	connClosed <-chan *amqp.Error
	chanClosed <-chan *amqp.Error
	cancelled  <-chan string
	lost       <-chan string
}

func (c *Consumer) consume(ctx context.Context, ev sessionEvents) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr, ok := <-ev.connClosed:
			return closeError("broker connection", amqpErr, ok)
		case amqpErr, ok := <-ev.chanClosed:
			return closeError("consume channel", amqpErr, ok)
		case tag := <-ev.cancelled:
			return fmt.Errorf("broker cancelled consumer %q", tag)
		case queue := <-ev.lost:
			return fmt.Errorf("delivery stream for %s ended", queue)
		case d := <-ev.deliveries:
			c.handle(ctx, d)
		}
	}
}

func closeError(what string, amqpErr *amqp.Error, ok bool) error {
	if !ok || amqpErr == nil {
		return fmt.Errorf("%s closed", what)
	}
	return fmt.Errorf("%s closed: %w", what, amqpErr)
}

// forward copies deliveries until done is closed. It reports true when src
// ended first, which means the broker dropped the consumer.
func forward(src <-chan amqp.Delivery, dst chan<- amqp.Delivery, done <-chan struct{}) bool {
	for d := range src {
		select {
		case dst <- d:
		case <-done:
			return false
		}
	}
	return true
}

// handle processes one delivery. Processing is not cancelled by shutdown;
// the message always reaches a terminal state before the next one is read.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	exchange := d.Exchange
	if exchange == "" {
		exchange = c.cfg.RabbitMQ.ExchangeName
	}
	msg := pipeline.Message{
		ID:          messageID(d),
		Exchange:    exchange,
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	}
	logger := c.logger.With(
		logging.String(logging.FieldMessageID, msg.ID),
		logging.String(logging.FieldRoutingKey, msg.RoutingKey),
	)

	out, err := c.processor.Process(context.WithoutCancel(ctx), msg)
	if err != nil {
		logging.ErrorWithContext(logger, "message returned to queue", "message_requeued",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the broker will redeliver this message"),
		)
		if nerr := d.Nack(false, true); nerr != nil {
			logging.WarnWithContext(logger, "nack failed", "nack_failed", logging.Error(nerr))
		}
		return
	}
	if aerr := d.Ack(false); aerr != nil {
		logging.WarnWithContext(logger, "ack failed", "ack_failed",
			logging.Error(aerr),
			logging.String(logging.FieldImpact, "the broker may redeliver this message"),
		)
	}
	c.mu.Lock()
	c.processed++
	c.mu.Unlock()
	if out != nil {
		logger.Debug("message acknowledged", logging.String(logging.FieldStage, string(out.State)))
	}
}

func (c *Consumer) setConnected(up bool, queues []string) {
	c.mu.Lock()
	c.connected = up
	if up {
		c.queues = append([]string(nil), queues...)
	} else {
		c.queues = nil
	}
	c.mu.Unlock()
	if c.onQueueState != nil {
		for _, q := range queues {
			c.onQueueState(q, up)
		}
	}
}

func messageID(d amqp.Delivery) string {
	if d.MessageId != "" {
		return d.MessageId
	}
	return uuid.NewString()
}
