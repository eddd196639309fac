package cache

import (
	"context"
	"time"
)

// OnlineUsersKey is the Redis set mirroring the realtime registry
const OnlineUsersKey = "presence:online"

// PresenceMirror keeps the online user set in Redis so other services can
// read presence without talking to the websocket server
type PresenceMirror struct {
	redis *RedisClient
	key   string
}

// NewPresenceMirror creates a mirror on the default key
func NewPresenceMirror(redis *RedisClient) *PresenceMirror {
	return &PresenceMirror{redis: redis, key: OnlineUsersKey}
}

// SetPresence adds or removes the user from the online set
func (m *PresenceMirror) SetPresence(ctx context.Context, userID string, online bool, _ time.Time) error {
	if online {
		return m.redis.SAdd(ctx, m.key, userID)
	}
	return m.redis.SRem(ctx, m.key, userID)
}

// Online returns the mirrored set
func (m *PresenceMirror) Online(ctx context.Context) ([]string, error) {
	return m.redis.SMembers(ctx, m.key)
}

// IsOnline reports whether the user is in the mirrored set
func (m *PresenceMirror) IsOnline(ctx context.Context, userID string) (bool, error) {
	return m.redis.SIsMember(ctx, m.key, userID)
}

// Reset clears the set, called at startup since no connection survives a restart
func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.redis.Del(ctx, m.key)
}
