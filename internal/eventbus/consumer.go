package eventbus

import (
	"context"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"github.com/Bhogyaan/threads/backend/internal/notify"
	"github.com/Bhogyaan/threads/backend/internal/telemetry"
	"go.uber.org/zap"
)

// Source is a long-running consumer feeding envelopes into a notifier.
// Run blocks until ctx is cancelled or the source fails for good.
type Source interface {
	Name() string
	Run(ctx context.Context) error
}

// consume decodes one raw envelope and replays it on n. Bad envelopes are
// logged and counted, and never stop the source.
func consume(ctx context.Context, source string, n notify.Notifier, raw []byte) error {
	env, err := Decode(raw)
	if err != nil {
		metrics.RecordBridgeEvent(source, err)
		logger.Log.Warn("Dropping undecodable realtime event",
			zap.String("source", source),
			zap.Int("bytes", len(raw)),
			zap.Error(err))
		return err
	}

	_, span := telemetry.GetRealtimeEvents().TraceBridgeEvent(env.Context(ctx), source, env.Type)
	defer span.End()

	err = Dispatch(n, env)
	metrics.RecordBridgeEvent(source, err)
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Log.Warn("Dropping realtime event",
			zap.String("source", source),
			zap.String("event_id", env.ID),
			logger.WithEventType(env.Type),
			zap.Error(err))
		return err
	}
	return nil
}
