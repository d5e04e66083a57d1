package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// redisURL spins up a Redis container and returns its URL.
func redisURL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return "redis://" + host + ":" + port.Port()
}

func newCache(t *testing.T, url, namespace string) *cache.RedisCache {
	t.Helper()
	rc, err := cache.NewRedisCache(url, namespace)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

// setupRedis returns a RedisCache under the default namespace.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	return newCache(t, redisURL(t), "jobtracker")
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := cache.NewRedisCache("not a url", "jobtracker")
	assert.Error(t, err)
}

func TestRedisCache_StoresUnderNamespace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := redisURL(t)
	ctx := context.Background()
	prod := newCache(t, url, "jobtracker")
	staging := newCache(t, url, "jobtracker-staging:")

	require.NoError(t, prod.Set(ctx, cache.JobKey(7), []byte("prod"), time.Minute))

	_, found, err := staging.Get(ctx, cache.JobKey(7))
	require.NoError(t, err)
	assert.False(t, found, "namespaces must not share keys")

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	raw := redis.NewClient(opts)
	t.Cleanup(func() { _ = raw.Close() })

	val, err := raw.Get(ctx, "jobtracker:job:7").Result()
	require.NoError(t, err)
	assert.Equal(t, "prod", val)

	require.NoError(t, staging.Set(ctx, cache.JobKey(7), []byte("staging"), time.Minute))
	val, err = raw.Get(ctx, "jobtracker-staging:job:7").Result()
	require.NoError(t, err)
	assert.Equal(t, "staging", val)

	bare := newCache(t, url, "")
	require.NoError(t, bare.Set(ctx, "plain", []byte("x"), time.Minute))
	assert.Equal(t, int64(1), raw.Exists(ctx, "plain").Val())
}

func TestRedisCache_HeaderRoundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, rc.Ping(ctx))

	key := cache.HeaderKey("nightly-import")
	_, found, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, rc.Set(ctx, key, []byte(`{"id":7}`), time.Minute))

	val, found, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"id":7}`, string(val))
}

func TestRedisCache_FinishedJobInvalidation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	key := cache.JobKey(42)
	require.NoError(t, rc.Set(ctx, key, []byte("snapshot"), time.Minute))
	require.NoError(t, rc.Delete(ctx, key))

	_, found, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is not an error.
	assert.NoError(t, rc.Delete(ctx, cache.JobKey(43)))
}

func TestRedisCache_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, cache.JobKey(1), []byte("x"), time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, found, err := rc.Get(ctx, cache.JobKey(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_IncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("10.0.0.1:" + uuid.NewString()[:8])

	for want := int64(1); want <= 3; want++ {
		got, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	short := cache.RateLimitKey("10.0.0.2:" + uuid.NewString()[:8])
	_, err := rc.IncrWithExpiry(ctx, short, time.Second)
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)

	got, err := rc.IncrWithExpiry(ctx, short, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "counter restarts after the window expires")
}

func TestRedisCache_IncrWithExpiryKeepsWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("10.0.0.3:" + uuid.NewString()[:8])

	_, err := rc.IncrWithExpiry(ctx, key, 1500*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(time.Second)

	// A later hit must not push the window out.
	got, err := rc.IncrWithExpiry(ctx, key, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	time.Sleep(time.Second)

	got, err = rc.IncrWithExpiry(ctx, key, 1500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "header:nightly-import", cache.HeaderKey("nightly-import"))
	assert.Equal(t, "job:42", cache.JobKey(42))
	assert.Equal(t, "ratelimit:10.0.0.1", cache.RateLimitKey("10.0.0.1"))

	keys := map[string]bool{
		cache.HeaderKey("1"):    true,
		cache.JobKey(1):         true,
		cache.RateLimitKey("1"): true,
	}
	assert.Len(t, keys, 3, "all keys should be unique")
}
