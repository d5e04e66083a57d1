package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// snapshotCache stores immutable or terminal rows in Redis. A nil cache
// disables it. Cache failures never fail the caller.
type snapshotCache struct {
	c   cache.Cache
	ttl time.Duration
}

func (s *snapshotCache) get(ctx context.Context, key string, dst any) bool {
	if s == nil || s.c == nil {
		return false
	}
	raw, found, err := s.c.Get(ctx, key)
	if err != nil {
		slog.Debug("cache get failed", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

func (s *snapshotCache) put(ctx context.Context, key string, v any) {
	if s == nil || s.c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.c.Set(ctx, key, raw, s.ttl); err != nil {
		slog.Debug("cache set failed", "key", key, "error", err)
	}
}

func (s *snapshotCache) forget(ctx context.Context, key string) {
	if s == nil || s.c == nil {
		return
	}
	if err := s.c.Delete(ctx, key); err != nil {
		slog.Warn("cache delete failed", "key", key, "error", err)
	}
}

// putJob caches finished jobs only; running jobs change on every finish.
func (s *snapshotCache) putJob(ctx context.Context, job *models.Job) {
	if job != nil && job.Finished {
		s.put(ctx, cache.JobKey(job.ID), job)
	}
}

func (s *snapshotCache) getJob(ctx context.Context, id int64) (*models.Job, bool) {
	var job models.Job
	if !s.get(ctx, cache.JobKey(id), &job) || !job.Finished {
		return nil, false
	}
	return &job, true
}
