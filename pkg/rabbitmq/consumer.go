package rabbitmq

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer handles the connection and consumption of messages from RabbitMQ.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	log     zerolog.Logger
}

// NewConsumer creates a new RabbitMQ consumer.
func NewConsumer(amqpURL string, log zerolog.Logger) (*Consumer, error) {
	conn, channel, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn, channel: channel, log: log}, nil
}

// MessageHandler processes a single message. It returns true to ack the message
// and false to nack and requeue it.
type MessageHandler func(body []byte) bool

// Consume binds queueName to exchange with routingKey and dispatches deliveries to
// handler until ctx is cancelled or the channel closes.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName, routingKey string, handler MessageHandler) error {
	if err := declareTopicExchange(c.channel, exchange); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	if err := c.channel.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack (manual acknowledgment)
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.log.Debug().Str("routing_key", d.RoutingKey).Str("queue", q.Name).Msg("received message")
			if handler(d.Body) {
				_ = d.Ack(false)
			} else {
				_ = d.Nack(false, true)
			}
		}
	}
}

// Close gracefully closes the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
