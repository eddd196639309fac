package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sourcePostgres = "postgres"

	// Postgres rejects NOTIFY payloads of 8000 bytes or more
	maxNotifyPayload = 7999

	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PGTransport publishes envelopes with pg_notify on the shared database
type PGTransport struct {
	db      *gorm.DB
	channel string
}

// NewPGTransport creates a transport; an empty channel uses DefaultChannel
func NewPGTransport(db *gorm.DB, channel string) *PGTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGTransport{db: db, channel: channel}
}

// NewPGPublisher is a Notifier publishing with pg_notify
func NewPGPublisher(db *gorm.DB, channel string) *Publisher {
	return NewPublisher(NewPGTransport(db, channel))
}

func (t *PGTransport) Name() string { return sourcePostgres }

func (t *PGTransport) Publish(ctx context.Context, _ string, payload []byte) error {
	if len(payload) > maxNotifyPayload {
		return fmt.Errorf("pg_notify payload of %d bytes exceeds %d", len(payload), maxNotifyPayload)
	}
	if err := t.db.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", t.channel, string(payload)).Error; err != nil {
		return fmt.Errorf("pg_notify %s: %w", t.channel, err)
	}
	return nil
}

// PGListener replays envelopes received with LISTEN on a notifier
type PGListener struct {
	dsn      string
	channel  string
	notifier notify.Notifier
}

// NewPGListener creates a listener; an empty channel uses DefaultChannel
func NewPGListener(dsn, channel string, notifier notify.Notifier) *PGListener {
	if channel == "" {
		channel = DefaultChannel
	}
	return &PGListener{dsn: dsn, channel: channel, notifier: notifier}
}

func (l *PGListener) Name() string { return sourcePostgres }

// Run listens and dispatches until ctx is cancelled. The connection is
// re-established by lib/pq; notifications sent while it is down are lost.
func (l *PGListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Log.Warn("Postgres listener connection lost", zap.String("channel", l.channel), zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Log.Info("Postgres listener reconnected", zap.String("channel", l.channel))
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	logger.Log.Info("Listening for realtime events", zap.String("source", sourcePostgres), zap.String("channel", l.channel))

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-listener.Notify:
			if !ok {
				return nil
			}
			// nil after a reconnect
			if n == nil {
				continue
			}
			_ = consume(ctx, sourcePostgres, l.notifier, []byte(n.Extra))
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					logger.Log.Debug("Postgres listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}
