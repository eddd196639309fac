package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to REDIS_HOST or skips the test
func newTestRedis(t *testing.T) *RedisClient {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set, skipping Redis tests")
	}

	rc, err := NewRedisClient(host, os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestPresenceMirror(t *testing.T) {
	rc := newTestRedis(t)
	ctx := context.Background()

	mirror := &PresenceMirror{redis: rc, key: "presence:online:test"}
	require.NoError(t, mirror.Reset(ctx))
	t.Cleanup(func() { _ = mirror.Reset(context.Background()) })

	require.NoError(t, mirror.SetPresence(ctx, "u1", true, time.Now()))
	require.NoError(t, mirror.SetPresence(ctx, "u2", true, time.Now()))

	online, err := mirror.Online(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, online)

	require.NoError(t, mirror.SetPresence(ctx, "u1", false, time.Now()))

	ok, err := mirror.IsOnline(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = mirror.IsOnline(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCloseNilClient(t *testing.T) {
	var rc *RedisClient
	assert.NoError(t, rc.Close())
}
