package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/cache"
	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const (
	maxJobSlugLen = 200
	maxSourceLen  = 20
)

// Lifecycle moves jobs from running to a terminal state.
type Lifecycle struct {
	store  store.Store
	cache  *snapshotCache
	strict bool
	now    func() time.Time
}

type StartParams struct {
	HeaderID int64
	ParentID *int64
	Slug     string
	Source   string
	Args     json.RawMessage
}

// Start records a new running job. The parent, when given, must already exist.
func (l *Lifecycle) Start(ctx context.Context, p StartParams) (*models.Job, error) {
	if p.HeaderID <= 0 {
		return nil, invalid("header id is required")
	}
	slug := strings.TrimSpace(p.Slug)
	if len(slug) > maxJobSlugLen {
		return nil, invalid("job slug longer than %d bytes", maxJobSlugLen)
	}
	if slug != "" {
		// A numeric slug could never be resolved by slug.
		if ident, _ := ParseIdentifier(slug); ident.numeric {
			return nil, invalid("job slug %q must not be a number", slug)
		}
	}
	if len(p.Source) > maxSourceLen {
		return nil, invalid("source longer than %d bytes", maxSourceLen)
	}
	if len(p.Args) > 0 && !json.Valid(p.Args) {
		return nil, invalid("args must be valid JSON")
	}

	job := &models.Job{
		HeaderID:  p.HeaderID,
		ParentID:  p.ParentID,
		StartTime: l.now(),
		Source:    p.Source,
		Arguments: p.Args,
	}
	if slug != "" {
		job.Slug = &slug
	}

	create := func(ctx context.Context, s store.Store) error {
		if p.ParentID != nil {
			if _, err := s.GetJob(ctx, *p.ParentID); err != nil {
				return translate(fmt.Sprintf("get parent job %d", *p.ParentID), err)
			}
		}
		if err := s.CreateJob(ctx, job); err != nil {
			return translate("create job", err)
		}
		return nil
	}

	var err error
	if l.strict && p.ParentID != nil {
		err = l.store.WithJobLock(ctx, *p.ParentID, create)
	} else {
		err = create(ctx, l.store)
	}
	if err != nil {
		return nil, translate("start job", err)
	}

	slog.Info("job started", "job_id", job.ID, "header_id", job.HeaderID, "parent_id", job.ParentID)
	return job, nil
}

// Finish marks a job finished. The job succeeds only when success was
// requested and every direct child has finished successfully. Grandchildren
// are not consulted. A job can be finished at most once.
func (l *Lifecycle) Finish(ctx context.Context, jobID int64, requestedSuccess bool) (*models.FinishResult, error) {
	var result *models.FinishResult
	finish := func(ctx context.Context, s store.Store) error {
		job, err := s.GetJob(ctx, jobID)
		if err != nil {
			return translate(fmt.Sprintf("get job %d", jobID), err)
		}
		if job.Finished {
			return fmt.Errorf("finish job %d: %w", jobID, ErrAlreadyFinished)
		}

		children, err := s.ListChildren(ctx, jobID)
		if err != nil {
			return translate("list children", err)
		}
		summary := summarizeChildren(children)
		final := requestedSuccess && (summary == nil || summary.Successful == summary.Total)

		finished, err := s.FinishJob(ctx, jobID, final, l.now())
		if err != nil {
			return translate(fmt.Sprintf("finish job %d", jobID), err)
		}
		l.cache.putJob(ctx, finished)

		result = &models.FinishResult{
			JobID:     jobID,
			Succeeded: final,
			Message:   finishMessage(requestedSuccess, final, summary),
			Children:  summary,
		}
		return nil
	}

	var err error
	if l.strict {
		err = l.store.WithJobLock(ctx, jobID, finish)
	} else {
		err = finish(ctx, l.store)
	}
	if err != nil {
		return nil, translate(fmt.Sprintf("finish job %d", jobID), err)
	}

	slog.Info("job finished", "job_id", jobID, "succeeded", result.Succeeded, "requested_success", requestedSuccess)
	return result, nil
}

// ForceFail terminates a job as failed regardless of its state. The end time
// is the event time of its last log entry, or now when it has none.
func (l *Lifecycle) ForceFail(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := l.store.ForceFailJob(ctx, jobID, l.now())
	if err != nil {
		return nil, translate(fmt.Sprintf("force fail job %d", jobID), err)
	}
	l.cache.forget(ctx, cache.JobKey(jobID))
	l.cache.putJob(ctx, job)

	slog.Warn("job force-failed", "job_id", jobID, "end_time", job.EndTime)
	return job, nil
}

// Expire fails a job that is still running, with the same end time rule as
// ForceFail. A job that finished in the meantime is left untouched and
// ErrAlreadyFinished is returned.
func (l *Lifecycle) Expire(ctx context.Context, jobID int64) (*models.Job, error) {
	job, err := l.store.ExpireJob(ctx, jobID, l.now())
	if err != nil {
		return nil, translate(fmt.Sprintf("expire job %d", jobID), err)
	}
	l.cache.putJob(ctx, job)

	slog.Warn("job expired", "job_id", jobID, "end_time", job.EndTime)
	return job, nil
}

func summarizeChildren(children []*models.Job) *models.ChildSummary {
	if len(children) == 0 {
		return nil
	}
	s := &models.ChildSummary{Total: len(children)}
	for _, c := range children {
		switch {
		case !c.Finished:
			s.Running++
		case c.Succeeded:
			s.Successful++
		default:
			s.Failed++
		}
	}
	return s
}

func finishMessage(requested, final bool, children *models.ChildSummary) string {
	switch {
	case final:
		return "job finished successfully"
	case !requested:
		return "job finished as failed"
	default:
		return fmt.Sprintf("job marked failed: %d of %d children failed and %d still running",
			children.Failed, children.Total, children.Running)
	}
}
