package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/logger"
	"github.com/Bhogyaan/threads/backend/internal/metrics"
	"go.uber.org/zap"
)

const (
	presenceSinkTimeout = 5 * time.Second
	presenceQueueSize   = 1024
)

// PresenceSink records online/offline transitions outside the process.
// The user table and the Redis mirror both implement it.
type PresenceSink interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
}

type presenceUpdate struct {
	userID string
	online bool
	at     time.Time
}

// presenceFanout feeds each sink from its own queue so transitions for a
// user reach a sink in the order they happened
type presenceFanout struct {
	queues []chan presenceUpdate
	wg     sync.WaitGroup
	once   sync.Once
}

func (p *presenceFanout) add(sink PresenceSink) {
	if sink == nil {
		return
	}
	queue := make(chan presenceUpdate, presenceQueueSize)
	p.queues = append(p.queues, queue)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for update := range queue {
			ctx, cancel := context.WithTimeout(context.Background(), presenceSinkTimeout)
			err := sink.SetPresence(ctx, update.userID, update.online, update.at)
			cancel()
			if err != nil {
				logger.Log.Warn("Failed to record presence",
					logger.WithUserID(update.userID),
					zap.Bool("online", update.online),
					zap.Error(err),
				)
			}
		}
	}()
}

// push never blocks the caller; a full queue drops the update
func (p *presenceFanout) push(userID string, online bool) {
	update := presenceUpdate{userID: userID, online: online, at: time.Now().UTC()}
	for _, queue := range p.queues {
		select {
		case queue <- update:
		default:
			logger.Log.Warn("Presence queue full, dropping update",
				logger.WithUserID(userID),
				zap.Bool("online", online),
			)
		}
	}
}

// wait stops the workers once their queues drain. Called once, after the
// hub loop has exited.
func (p *presenceFanout) wait() {
	p.once.Do(func() {
		for _, queue := range p.queues {
			close(queue)
		}
	})
	p.wg.Wait()
}

// broadcastPresence sends the full online list to every open connection.
// Called from the hub loop after a bind or a successful unbind.
func (h *Hub) broadcastPresence() {
	online := h.registry.OnlineUsers()
	h.broadcastMessage(NewMessage(MessageTypeGetOnlineUsers, OnlineUsersPayload{UserIDs: online}))
	metrics.RecordPresenceBroadcast()
}
