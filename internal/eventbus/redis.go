package eventbus

import (
	"context"
	"fmt"

	"github.com/Bhogyaan/threads/backend/internal/cache"
	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"go.uber.org/zap"
)

const sourceRedis = "redis"

// RedisTransport publishes envelopes on a Redis pub/sub channel
type RedisTransport struct {
	client  *cache.RedisClient
	channel string
}

// NewRedisTransport creates a transport; an empty channel uses DefaultChannel
func NewRedisTransport(client *cache.RedisClient, channel string) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisTransport{client: client, channel: channel}
}

// NewRedisPublisher is a Notifier publishing on Redis
func NewRedisPublisher(client *cache.RedisClient, channel string) *Publisher {
	return NewPublisher(NewRedisTransport(client, channel))
}

func (t *RedisTransport) Name() string { return sourceRedis }

// Publish ignores key; pub/sub delivers in publish order per channel
func (t *RedisTransport) Publish(ctx context.Context, _ string, payload []byte) error {
	if err := t.client.Publish(ctx, t.channel, payload); err != nil {
		return fmt.Errorf("redis publish %s: %w", t.channel, err)
	}
	return nil
}

// RedisSubscriber replays envelopes from a Redis channel on a notifier
type RedisSubscriber struct {
	client   *cache.RedisClient
	channel  string
	notifier notify.Notifier
}

// NewRedisSubscriber creates a subscriber; an empty channel uses DefaultChannel
func NewRedisSubscriber(client *cache.RedisClient, channel string, notifier notify.Notifier) *RedisSubscriber {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSubscriber{client: client, channel: channel, notifier: notifier}
}

func (s *RedisSubscriber) Name() string { return sourceRedis }

// Run subscribes and dispatches until ctx is cancelled
func (s *RedisSubscriber) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed so publishes are not missed
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", s.channel, err)
	}
	logger.Log.Info("Subscribed to realtime events", zap.String("source", sourceRedis), zap.String("channel", s.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			_ = consume(ctx, sourceRedis, s.notifier, []byte(msg.Payload))
		}
	}
}
