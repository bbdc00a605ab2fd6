package lock

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockerExclusive(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	key := "test:" + time.Now().Format(time.RFC3339Nano)

	unlock, err := l.Lock(context.Background(), key, time.Second)
	require.NoError(t, err)

	_, err = l.Lock(context.Background(), key, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	unlock()
	unlock2, err := l.Lock(context.Background(), key, time.Second)
	require.NoError(t, err)
	unlock2()
}

func TestRedisLockerReleaseRequiresToken(t *testing.T) {
	client := newTestRedis(t)
	l := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	key := "test-token:" + time.Now().Format(time.RFC3339Nano)

	token, ok, err := l.TryLock(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Release(context.Background(), key, "someone-else"))
	_, ok, err = l.TryLock(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(context.Background(), key, token))
}
