package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const maxReconnectBackoff = 30 * time.Second

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Consumer reads the event queue and hands each message to a handler,
// reconnecting with backoff whenever the broker goes away.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handle   HandlerFunc
	logger   *slog.Logger
}

func NewConsumer(url, queue string, handle HandlerFunc, logger *slog.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, prefetch: 50, handle: handle, logger: logger}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("consumer: broker dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxReconnectBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer: loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		c.logger.Warn("consumer: set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.deliver(ctx, d)
		}
	}
}

// deliver acks handled messages and drops the rest without requeueing, so a
// poison message cannot spin the consumer.
func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
	env, err := Unmarshal(d.Body)
	if err == nil {
		err = c.handle(ctx, env)
	}
	if err != nil {
		c.logger.Error("consumer: handle message failed", "error", err, "message_id", d.MessageId)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
