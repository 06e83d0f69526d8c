package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection and topology configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	ExchangeName string
	QueueName    string
	RoutingKey   string

	// Dead-letter topology. Messages that exceed DeliveryLimit deliveries on
	// the live queue are moved by the broker to DeadLetterQueue; the
	// application never keeps its own attempt counter.
	DeadLetterExchange string
	DeadLetterQueue    string
	DeliveryLimit      int

	// VisibilityTimeout bounds how long a delivered message may stay
	// unacknowledged before the broker considers the consumer dead and
	// redelivers. Must exceed the worst-case analysis time with margin.
	VisibilityTimeout time.Duration

	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
}

// Client represents a RabbitMQ client bound to the ingest queue topology.
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool
}

// NewClient creates a new RabbitMQ client and declares the ingest topology.
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger,
		closeChan:   make(chan *amqp.Error),
		isConnected: false,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic.
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < c.config.RetryAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.config.RetryAttempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup queue topology: %w", err)
	}

	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
		slog.String("dead_letter_queue", c.config.DeadLetterQueue),
		slog.Int("delivery_limit", c.config.DeliveryLimit),
	)

	return nil
}

// setup declares the live queue, the dead-letter exchange/queue, and the
// bindings between them. The live queue is a quorum queue so the broker
// tracks x-delivery-count and enforces the delivery limit itself.
func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.config.ExchangeName, // name
		"direct",              // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	err = c.channel.ExchangeDeclare(
		c.config.DeadLetterExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare dead-letter queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.DeadLetterQueue,
		c.config.RoutingKey,
		c.config.DeadLetterExchange,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.config.QueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		c.liveQueueArgs(),
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	err = c.channel.QueueBind(
		c.config.QueueName,
		c.config.RoutingKey,
		c.config.ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// liveQueueArgs builds the declaration arguments for the live queue. The
// quorum queue type makes the broker track x-delivery-count and enforce
// the delivery limit; x-consumer-timeout bounds how long a delivery may
// sit unacknowledged with a consumer before the broker closes the channel
// and redelivers, so the configured window actually reaches the broker
// instead of falling back to its default.
func (c *Client) liveQueueArgs() amqp.Table {
	args := amqp.Table{
		"x-queue-type":           "quorum",
		"x-delivery-limit":       int32(c.config.DeliveryLimit),
		"x-dead-letter-exchange": c.config.DeadLetterExchange,
	}
	if c.config.VisibilityTimeout > 0 {
		args["x-consumer-timeout"] = c.config.VisibilityTimeout.Milliseconds()
	}
	return args
}

// Publish publishes a message to the live queue.
func (c *Client) Publish(ctx context.Context, body []byte, contentType string) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.ExchangeName,
		c.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.Int("body_size", len(body)),
		slog.String("content_type", contentType),
	)

	return nil
}

// Consume starts consuming messages from the live queue with manual acks.
func (c *Client) Consume(consumerTag string, prefetchCount int) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	if err := c.channel.Qos(prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	messages, err := c.channel.Consume(
		c.config.QueueName,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", prefetchCount),
	)

	return messages, nil
}

// CancelConsumer detaches a consumer from the live queue. Unacked messages
// return to the queue; this is the global pause primitive.
func (c *Client) CancelConsumer(consumerTag string) error {
	if err := c.channel.Cancel(consumerTag, false); err != nil {
		return fmt.Errorf("failed to cancel consumer %s: %w", consumerTag, err)
	}

	c.logger.Info("Consumer canceled",
		slog.String("consumer_tag", consumerTag),
	)
	return nil
}

// Ack acknowledges a delivery, removing it from the queue permanently.
func (c *Client) Ack(deliveryTag uint64) error {
	return c.channel.Ack(deliveryTag, false)
}

// Nack rejects a delivery. With requeue the broker redelivers it and
// advances its delivery counter; without requeue it dead-letters immediately.
func (c *Client) Nack(deliveryTag uint64, requeue bool) error {
	return c.channel.Nack(deliveryTag, false, requeue)
}

// DeadLetterCount returns the number of messages currently parked in the
// dead-letter queue.
func (c *Client) DeadLetterCount() (int, error) {
	q, err := c.channel.QueueDeclarePassive(
		c.config.DeadLetterQueue,
		true, false, false, false, nil,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect dead-letter queue: %w", err)
	}
	return q.Messages, nil
}

// PeekDeadLetters fetches up to max dead-lettered message bodies without
// removing them. Each message is fetched and nacked back with requeue.
func (c *Client) PeekDeadLetters(max int) ([][]byte, error) {
	var bodies [][]byte
	var tags []uint64

	for i := 0; i < max; i++ {
		msg, ok, err := c.channel.Get(c.config.DeadLetterQueue, false)
		if err != nil {
			return nil, fmt.Errorf("failed to get dead-lettered message: %w", err)
		}
		if !ok {
			break
		}
		bodies = append(bodies, msg.Body)
		tags = append(tags, msg.DeliveryTag)
	}

	// Return everything we looked at. Requeued messages keep their place at
	// the head of the queue.
	for _, tag := range tags {
		if err := c.channel.Nack(tag, false, true); err != nil {
			return bodies, fmt.Errorf("failed to requeue peeked message: %w", err)
		}
	}

	return bodies, nil
}

// DrainDeadLetters removes and discards every message currently in the
// dead-letter queue. Returns the number removed.
func (c *Client) DrainDeadLetters() (int, error) {
	removed := 0
	for {
		msg, ok, err := c.channel.Get(c.config.DeadLetterQueue, false)
		if err != nil {
			return removed, fmt.Errorf("failed to drain dead-letter queue: %w", err)
		}
		if !ok {
			return removed, nil
		}
		if err := c.channel.Ack(msg.DeliveryTag, false); err != nil {
			return removed, fmt.Errorf("failed to ack drained message: %w", err)
		}
		removed++
	}
}

// RedriveDeadLetters moves every dead-lettered message back to the live
// queue. This is an explicit operator action, never automatic; republishing
// resets the broker's delivery counter for each message.
func (c *Client) RedriveDeadLetters(ctx context.Context) (int, error) {
	moved := 0
	for {
		msg, ok, err := c.channel.Get(c.config.DeadLetterQueue, false)
		if err != nil {
			return moved, fmt.Errorf("failed to get dead-lettered message: %w", err)
		}
		if !ok {
			return moved, nil
		}

		if err := c.Publish(ctx, msg.Body, msg.ContentType); err != nil {
			// Put the message back so it is not lost.
			if nackErr := c.channel.Nack(msg.DeliveryTag, false, true); nackErr != nil {
				c.logger.Error("Failed to requeue message after redrive failure",
					slog.Any("error", nackErr),
				)
			}
			return moved, fmt.Errorf("failed to republish dead-lettered message: %w", err)
		}

		if err := c.channel.Ack(msg.DeliveryTag, false); err != nil {
			return moved, fmt.Errorf("failed to ack redriven message: %w", err)
		}
		moved++
	}
}

// Close closes the RabbitMQ connection.
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status.
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
