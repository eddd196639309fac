package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	sourceKafka = "kafka"

	DefaultKafkaTopic   = "realtime-events"
	DefaultKafkaGroupID = "realtime-relay"
)

// KafkaTransport writes envelopes to a topic keyed by post or conversation
// id, so events about one document land on one partition in order
type KafkaTransport struct {
	writer *kafka.Writer
}

// NewKafkaTransport creates a writer for topic on brokers
func NewKafkaTransport(brokers []string, topic string) *KafkaTransport {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &KafkaTransport{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// NewKafkaPublisher is a Notifier publishing on Kafka. Close the returned
// transport on shutdown.
func NewKafkaPublisher(brokers []string, topic string) (*Publisher, *KafkaTransport) {
	transport := NewKafkaTransport(brokers, topic)
	return NewPublisher(transport), transport
}

func (t *KafkaTransport) Name() string { return sourceKafka }

func (t *KafkaTransport) Publish(ctx context.Context, key string, payload []byte) error {
	err := t.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", t.writer.Topic, err)
	}
	return nil
}

// Close flushes pending writes
func (t *KafkaTransport) Close() error {
	return t.writer.Close()
}

// KafkaConsumer replays envelopes from a topic on a notifier. Offsets are
// committed per consumer group, so each realtime instance needs its own group.
type KafkaConsumer struct {
	reader   *kafka.Reader
	notifier notify.Notifier
}

// NewKafkaConsumer creates a group reader for topic
func NewKafkaConsumer(brokers []string, topic, groupID string, notifier notify.Notifier) *KafkaConsumer {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	if groupID == "" {
		groupID = DefaultKafkaGroupID
	}
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			Topic:       topic,
			GroupID:     groupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		notifier: notifier,
	}
}

func (c *KafkaConsumer) Name() string { return sourceKafka }

// Run reads and dispatches until ctx is cancelled. Realtime events are not
// retried, so a message that fails to dispatch is still committed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	cfg := c.reader.Config()
	logger.Log.Info("Consuming realtime events",
		zap.String("source", sourceKafka),
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID))

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka read %s: %w", cfg.Topic, err)
		}
		_ = consume(ctx, sourceKafka, c.notifier, msg.Value)
	}
}
