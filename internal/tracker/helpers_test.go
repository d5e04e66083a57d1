package tracker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/store/storetest"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock advances one second per reading so every event gets a distinct time.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *stepClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

type fixture struct {
	tr    *tracker.Tracker
	store *storetest.MemoryStore
	clock *stepClock
}

func newFixture(t *testing.T, opts ...tracker.Option) *fixture {
	t.Helper()
	st := storetest.New()
	clock := &stepClock{t: epoch}
	opts = append([]tracker.Option{tracker.WithClock(clock.Now)}, opts...)
	return &fixture{tr: tracker.New(st, opts...), store: st, clock: clock}
}

func (f *fixture) start(t *testing.T, name string, parent *models.Job) *models.Job {
	t.Helper()
	ctx := context.Background()
	h, err := f.tr.Registry.EnsureHeader(ctx, name)
	require.NoError(t, err)
	p := tracker.StartParams{HeaderID: h.ID}
	if parent != nil {
		p.ParentID = &parent.ID
	}
	job, err := f.tr.Lifecycle.Start(ctx, p)
	require.NoError(t, err)
	return job
}

func (f *fixture) log(t *testing.T, jobID int64, kind, msg string) *models.LogEntry {
	t.Helper()
	e, err := f.tr.Logs.Append(context.Background(), tracker.AppendParams{JobID: jobID, Kind: kind, Message: msg})
	require.NoError(t, err)
	return e
}

func ptr[T any](v T) *T {
	return &v
}

// memCache is an in-process cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(ctx context.Context) error { return c.err }

func (c *memCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	return 0, nil
}
