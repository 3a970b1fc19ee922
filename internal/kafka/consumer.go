package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-booking/internal/logger"
)

const defaultFetchBackoff = time.Second

type Consumer struct {
	reader  messageReader
	topic   string
	logger  *logger.Logger
	backoff time.Duration
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler processes one message. A returned error is logged and the message is still committed.
type Handler func(ctx context.Context, key string, value []byte) error

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, topic: topic, logger: log, backoff: defaultFetchBackoff}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handler Handler) {
	topic := c.topic
	c.logger.LogKafka("CONSUME", topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				c.logger.LogKafka("CONSUME", topic, "consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message from %s: %v", topic, err))
			select {
			case <-ctx.Done():
				c.logger.LogKafka("CONSUME", topic, "consumer stopped")
				return
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := handler(ctx, string(msg.Key), msg.Value); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Handler failed for %s key=%s: %v", topic, string(msg.Key), err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit offset on %s: %v", topic, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
