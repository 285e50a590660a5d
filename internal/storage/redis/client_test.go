package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewWithClient(rdb), mr
}

func TestClient_IncrementWindow(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	count, ttl, err := client.IncrementWindow(ctx, "203.0.113.7", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(20 * time.Second)

	count, ttl, err = client.IncrementWindow(ctx, "203.0.113.7", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 40*time.Second, ttl, "窗口内的请求不应延长过期时间")

	assert.True(t, mr.Exists("portfolio:ratelimit:203.0.113.7"))
}

func TestClient_IncrementWindowResets(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := client.IncrementWindow(ctx, "10.0.0.1", time.Minute)
		require.NoError(t, err)
	}

	mr.FastForward(time.Minute + time.Second)

	count, _, err := client.IncrementWindow(ctx, "10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClient_KeysAreIsolated(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	_, _, err := client.IncrementWindow(ctx, "a", time.Minute)
	require.NoError(t, err)

	count, _, err := client.IncrementWindow(ctx, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestClient_PingAfterServerClose(t *testing.T) {
	client, mr := newTestClient(t)

	require.NoError(t, client.Ping(context.Background()))
	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}
