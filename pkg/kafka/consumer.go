// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON; the consumer
// delivers messages in batches and commits them once the handler succeeds.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
)

// Message is one consumed record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
}

// BatchHandler processes messages in order. Returning nil commits all of them;
// an error leaves them uncommitted and the same batch is handed over again.
type BatchHandler func(ctx context.Context, msgs []Message) error

// Consumer reads messages from one or more topics of a consumer group.
type Consumer struct {
	reader     *kafka.Reader
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewConsumer creates a group Consumer for topics.
func NewConsumer(cfg config.KafkaConfig, topics ...string) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	}
	if len(topics) == 1 {
		rc.Topic = topics[0]
	} else {
		rc.GroupTopics = topics
	}
	return &Consumer{
		reader:     kafka.NewReader(rc),
		logger:     slog.Default().With("component", "kafka-consumer", "topics", topics),
		retryDelay: time.Second,
	}
}

// StartBatch collects up to size messages, waiting at most wait after the
// first one arrives, and hands them to handler. It returns when ctx is
// cancelled.
func (c *Consumer) StartBatch(ctx context.Context, size int, wait time.Duration, handler BatchHandler) error {
	if size <= 0 {
		size = 1
	}
	c.logger.Info("consumer started", "batch_size", size, "wait", wait)
	for {
		raw, err := c.fetchBatch(ctx, size, wait)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch messages", "error", err)
			continue
		}
		msgs := make([]Message, len(raw))
		for i, m := range raw {
			msgs[i] = fromKafka(m)
		}

		for {
			err := handler(ctx, msgs)
			if err == nil {
				break
			}
			c.logger.Error("failed to process batch",
				"messages", len(msgs),
				"first_offset", raw[0].Offset,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryDelay):
			}
		}

		if err := c.reader.CommitMessages(ctx, raw...); err != nil {
			c.logger.Error("failed to commit messages", "messages", len(raw), "error", err)
		}
	}
}

func (c *Consumer) fetchBatch(ctx context.Context, size int, wait time.Duration) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}
	if size == 1 {
		return batch, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for len(batch) < size {
		m, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return batch, nil
		}
		batch = append(batch, m)
	}
	return batch, nil
}

func fromKafka(m kafka.Message) Message {
	msg := Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       m.Key,
		Value:     m.Value,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
