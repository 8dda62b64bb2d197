package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes CloudEvents to Kafka topics.
type Producer struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewProducer creates a producer for the given brokers. The topic is chosen per message.
func NewProducer(brokers []string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.Hash{},
			RequiredAcks:           kafkago.RequireOne,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		logger: logger,
	}
}

// PublishEvent writes ce to topic, keyed by its subject when present.
func (p *Producer) PublishEvent(ctx context.Context, topic string, ce CloudEvent) error {
	value, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal cloud event: %w", err)
	}
	key := ce.Subject
	if key == "" {
		key = ce.ID
	}

	if err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", ce.Type, topic, err)
	}

	p.logger.Debug("event published",
		zap.String("topic", topic),
		zap.String("type", ce.Type),
		zap.String("id", ce.ID),
	)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ErrMalformedMessage marks a message that can never be handled. Consume drops
// and commits it instead of retrying.
var ErrMalformedMessage = errors.New("malformed message")

// MessageHandler processes one Kafka message.
type MessageHandler func(ctx context.Context, msg kafkago.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads a single topic as part of a consumer group.
type Consumer struct {
	reader  messageReader
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

// NewConsumer creates a group consumer for topic.
func NewConsumer(brokers []string, groupID, topic string, logger *zap.Logger) *Consumer {
	return newConsumer(kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	}), logger, defaultBackOff)
}

func newConsumer(r messageReader, logger *zap.Logger, bo func() backoff.BackOff) *Consumer {
	return &Consumer{reader: r, logger: logger, backoff: bo}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Consume blocks, handing each message to handler, until ctx is cancelled or
// the reader is closed. A message is committed only once handler succeeds or
// reports ErrMalformedMessage. Any other handler error is retried with backoff
// and the offset stays uncommitted, so the message is redelivered after a restart.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	for {
		msg, err := c.fetch(ctx)
		if err != nil {
			return err
		}
		if err := c.handle(ctx, handler, msg); err != nil {
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("failed to commit offset",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
		}
	}
}

// fetch waits for the next message, backing off while the broker is unreachable.
func (c *Consumer) fetch(ctx context.Context) (kafkago.Message, error) {
	var msg kafkago.Message
	err := backoff.RetryNotify(func() error {
		m, err := c.reader.FetchMessage(ctx)
		switch {
		case err == nil:
			msg = m
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case errors.Is(err, io.EOF):
			return backoff.Permanent(fmt.Errorf("reader closed: %w", err))
		default:
			return err
		}
	}, backoff.WithContext(c.backoff(), ctx), func(err error, wait time.Duration) {
		c.logger.Warn("failed to fetch message, retrying",
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	return msg, err
}

// handle runs handler until it succeeds or the message is found malformed.
// It returns an error only when the message must stay uncommitted.
func (c *Consumer) handle(ctx context.Context, handler MessageHandler, msg kafkago.Message) error {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	}

	err := backoff.RetryNotify(func() error {
		err := handler(ctx, msg)
		if errors.Is(err, ErrMalformedMessage) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(c.backoff(), ctx), func(err error, wait time.Duration) {
		c.logger.Warn("message handler failed, retrying",
			append(fields, zap.Duration("retry_in", wait), zap.Error(err))...)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformedMessage):
		c.logger.Error("dropping malformed message", append(fields, zap.Error(err))...)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("handler gave up on offset %d: %w", msg.Offset, err)
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
