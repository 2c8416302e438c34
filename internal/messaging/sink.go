package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// Sink delivers an encoded event to a broker.
type Sink interface {
	Send(ctx context.Context, key string, body []byte) error
	Close() error
}

type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes persistent messages to a durable queue on the default
// exchange. The connection is opened once and reused.
type AMQPSink struct {
	conn    *amqp.Connection
	channel amqpChannel
	queue   string
}

func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	sink, err := newAMQPSink(ch, queue)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(ch amqpChannel, queue string) (*AMQPSink, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	return &AMQPSink{channel: ch, queue: queue}, nil
}

func (s *AMQPSink) Send(ctx context.Context, key string, body []byte) error {
	return s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    key,
		Body:         body,
	})
}

func (s *AMQPSink) Close() error {
	err := s.channel.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes to one topic, keyed so a table's events share a partition.
type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (s *KafkaSink) Send(ctx context.Context, key string, body []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink only logs. It backs the "none" driver.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(_ context.Context, key string, body []byte) error {
	s.Logger.Debug("event relayed", "key", key, "bytes", len(body))
	return nil
}

func (LogSink) Close() error { return nil }

// NewSink picks the sink for driver: "amqp", "kafka" or "none".
func NewSink(driver, amqpURL, queue string, brokers []string, topic string, logger *slog.Logger) (Sink, error) {
	switch driver {
	case "amqp":
		return NewAMQPSink(amqpURL, queue)
	case "kafka":
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka driver needs at least one broker")
		}
		return NewKafkaSink(brokers, topic), nil
	case "", "none":
		return LogSink{Logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown messaging driver %q", driver)
}
