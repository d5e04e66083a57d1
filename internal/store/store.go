package store

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrAlreadyFinished is returned when a terminal update targets a job that
// is already finished.
var ErrAlreadyFinished = errors.New("job already finished")

// ErrUnavailable marks failures of the backing database that are worth retrying.
var ErrUnavailable = errors.New("store unavailable")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetHeaderBySlug(ctx context.Context, slug string) (*models.FunctionHeader, error)
	CreateHeader(ctx context.Context, h *models.FunctionHeader) error
	ListHeaders(ctx context.Context, search string, limit int) ([]*models.FunctionHeader, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetJobBySlug(ctx context.Context, slug string) (*models.Job, error)
	ListChildren(ctx context.Context, parentID int64) ([]*models.Job, error)
	ListChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error)
	FinishJob(ctx context.Context, id int64, succeeded bool, endTime time.Time) (*models.Job, error)
	ForceFailJob(ctx context.Context, id int64, now time.Time) (*models.Job, error)
	// ExpireJob fails a job like ForceFailJob but only while it is still
	// running; a finished job yields ErrAlreadyFinished.
	ExpireJob(ctx context.Context, id int64, now time.Time) (*models.Job, error)
	SearchJobs(ctx context.Context, filter JobFilter) ([]*models.Job, *models.StatusSummary, error)
	ListSources(ctx context.Context) ([]string, error)
	RunsSummary(ctx context.Context, filter RunsFilter) (*models.RunsSummary, error)
	ListStaleJobs(ctx context.Context, inactiveSince time.Time, limit int) ([]int64, error)

	AppendLog(ctx context.Context, entry *models.LogEntry) error
	AppendLogs(ctx context.Context, entries []*models.LogEntry) error
	TailLogs(ctx context.Context, jobIDs []int64, since *time.Time) ([]*models.LogEntry, error)

	UpsertProgress(ctx context.Context, m *models.ProgressMetric) (*models.ProgressMetric, error)
	GetProgress(ctx context.Context, jobID int64, progressID string) (*models.ProgressMetric, error)
	LatestProgress(ctx context.Context, jobID int64) (*models.ProgressMetric, error)
	ListProgress(ctx context.Context, jobIDs []int64) ([]*models.ProgressMetric, error)

	// Snapshot runs fn against a read-only view that does not observe writes
	// committed after it started.
	Snapshot(ctx context.Context, fn func(ctx context.Context, s Store) error) error
	// WithJobLock runs fn while holding an exclusive lock keyed by jobID.
	WithJobLock(ctx context.Context, jobID int64, fn func(ctx context.Context, s Store) error) error
}

// JobFilter selects jobs for SearchJobs. Zero values mean "no constraint".
type JobFilter struct {
	Query    string
	Source   string
	From     time.Time
	To       time.Time
	RootOnly bool
	Status   string
	Page     int
	Limit    int
}

// Normalize clamps pagination to sane bounds.
func (f *JobFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}
}

// RunsFilter selects the runs aggregated by RunsSummary.
type RunsFilter struct {
	HeaderID int64
	Since    time.Time
	// Args restricts runs to those whose top-level argument key equals value.
	Args map[string]string
}
