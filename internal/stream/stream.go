// Package stream wraps the Kafka clients used by the pipeline stages.
// Producers publish keyed messages with a correlation_id header; consumers
// run with auto-commit disabled and commit synchronously after each
// message's side effects are durable.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer publishes messages to any pipeline topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for the given bootstrap servers. The topic
// is chosen per message so one producer serves all pipeline topics.
func NewProducer(bootstrapServers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(bootstrapServers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           10 * time.Millisecond,
		},
	}
}

// Publish writes one keyed message. A non-empty correlationID is attached as
// a correlation_id header for end-to-end tracing.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, correlationID string) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	}
	if correlationID != "" {
		msg.Headers = []kafka.Header{{Key: "correlation_id", Value: []byte(correlationID)}}
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer. Callers bound the flush
// with a context deadline at shutdown.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads one topic within a consumer group with manual commits.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a group consumer for one topic. CommitInterval zero
// makes CommitMessages synchronous, which is the commit discipline all
// pipeline stages rely on.
func NewConsumer(bootstrapServers []string, groupID, topic string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        bootstrapServers,
			GroupID:        groupID,
			Topic:          topic,
			StartOffset:    kafka.FirstOffset,
			CommitInterval: 0,
			MinBytes:       1,
			MaxBytes:       10 << 20,
			MaxWait:        time.Second,
		}),
	}
}

// Fetch blocks until a message is available or the context is cancelled.
// The message's offset is not committed until Commit is called.
func (c *Consumer) Fetch(ctx context.Context) (kafka.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit synchronously commits the message's offset.
func (c *Consumer) Commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
