// Package reaper force-fails jobs that stopped reporting.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

type StaleLister interface {
	ListStaleJobs(ctx context.Context, inactiveSince time.Time, limit int) ([]int64, error)
}

// Expirer fails a job only while it is still running.
type Expirer interface {
	Expire(ctx context.Context, jobID int64) (*models.Job, error)
}

type Reaper struct {
	cron       *cron.Cron
	jobs       StaleLister
	lifecycle  Expirer
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

type Option func(*Reaper)

func WithClock(now func() time.Time) Option {
	return func(r *Reaper) { r.now = now }
}

func New(jobs StaleLister, lc Expirer, staleAfter time.Duration, batchSize int, opts ...Option) *Reaper {
	if batchSize <= 0 {
		batchSize = 100
	}
	r := &Reaper{
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs:       jobs,
		lifecycle:  lc,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start schedules Sweep with a standard cron expression or a descriptor such
// as "@every 5m".
func (r *Reaper) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return fmt.Errorf("schedule reaper %q: %w", schedule, err)
	}
	r.cron.Start()
	slog.Info("reaper started", "schedule", schedule, "stale_after", r.staleAfter.String())
	return nil
}

// Stop waits for a running sweep to return.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	slog.Info("reaper stopped")
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := r.Sweep(ctx); err != nil {
		slog.Error("reaper sweep failed", "error", err)
	}
}

// Sweep fails running jobs whose latest log entry, or start time when they
// have none, is older than the stale threshold. Jobs that finish between
// the listing and the update keep their outcome. It returns the number of
// jobs failed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.staleAfter)
	ids, err := r.jobs.ListStaleJobs(ctx, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	failed := 0
	var errs []error
	for _, id := range ids {
		if _, err := r.lifecycle.Expire(ctx, id); err != nil {
			// Deleted or finished since it was listed.
			if errors.Is(err, tracker.ErrNotFound) || errors.Is(err, tracker.ErrAlreadyFinished) {
				continue
			}
			errs = append(errs, fmt.Errorf("expire job %d: %w", id, err))
			continue
		}
		failed++
	}
	if failed > 0 {
		slog.Warn("reaper force-failed stale jobs", "count", failed, "cutoff", cutoff)
	}
	return failed, errors.Join(errs...)
}
