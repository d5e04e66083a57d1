package handler

import (
	"context"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// The interfaces below are satisfied by the tracker services. Handlers depend
// on the narrowest one they need.

type JobResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.Job, error)
}

type ChildLister interface {
	JobResolver
	Children(ctx context.Context, id int64) ([]*models.Job, error)
}

type HeaderRegistry interface {
	EnsureHeader(ctx context.Context, name string) (*models.FunctionHeader, error)
}

type JobLifecycle interface {
	Start(ctx context.Context, p tracker.StartParams) (*models.Job, error)
	Finish(ctx context.Context, jobID int64, requestedSuccess bool) (*models.FinishResult, error)
	ForceFail(ctx context.Context, jobID int64) (*models.Job, error)
}

type LogAppender interface {
	Append(ctx context.Context, p tracker.AppendParams) (*models.LogEntry, error)
	AppendBatch(ctx context.Context, jobID int64, batch []tracker.AppendParams) ([]*models.LogEntry, error)
	Validate(batch []tracker.AppendParams) error
}

type LogTailer interface {
	Tail(ctx context.Context, p tracker.TailParams) ([]*models.LogEntry, error)
}

type ProgressTracker interface {
	Upsert(ctx context.Context, p tracker.UpsertProgressParams) (*models.ProgressMetric, error)
	Latest(ctx context.Context, jobID int64, progressID string) (*models.ProgressMetric, error)
	List(ctx context.Context, jobID int64) ([]*models.ProgressMetric, error)
}

type JobCatalog interface {
	Search(ctx context.Context, p tracker.SearchParams) (*tracker.SearchResult, error)
	Sources(ctx context.Context) ([]string, error)
	Headers(ctx context.Context, search string) ([]*models.FunctionHeader, error)
	RunsSummary(ctx context.Context, slug, period string, interval int, args map[string]string) (*models.RunsSummary, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
