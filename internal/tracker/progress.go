package tracker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const (
	maxProgressIDLen = 100
	maxTitleLen      = 200
)

// ProgressService merges progress reports into one metric per job and id.
type ProgressService struct {
	store     store.Store
	hierarchy *Hierarchy
	now       func() time.Time
}

type UpsertProgressParams struct {
	JobID       int64
	ProgressID  string
	Title       string
	Description string
	Value       float64
	Max         *float64
	Duration    *float64
}

// Upsert creates the metric or merges the report into it in one atomic step.
// Omitting Max keeps a previously reported max.
func (s *ProgressService) Upsert(ctx context.Context, p UpsertProgressParams) (*models.ProgressMetric, error) {
	progressID := strings.TrimSpace(p.ProgressID)
	switch {
	case p.JobID <= 0:
		return nil, invalid("job id is required")
	case progressID == "":
		return nil, invalid("progress id is required")
	case len(progressID) > maxProgressIDLen:
		return nil, invalid("progress id longer than %d bytes", maxProgressIDLen)
	case !finite(p.Value):
		return nil, invalid("progress value must be a finite number")
	case p.Max != nil && !finite(*p.Max):
		return nil, invalid("progress max must be a finite number")
	case p.Duration != nil && !finite(*p.Duration):
		return nil, invalid("progress duration must be a finite number")
	}

	m := &models.ProgressMetric{
		JobID:        p.JobID,
		ProgressID:   progressID,
		Title:        truncate(p.Title, maxTitleLen),
		Description:  p.Description,
		CurrentValue: p.Value,
		MaxValue:     p.Max,
		Duration:     p.Duration,
		LastUpdated:  s.now(),
		Completed:    models.IsComplete(p.Value, p.Max),
	}
	out, err := s.store.UpsertProgress(ctx, m)
	if err != nil {
		return nil, translate(fmt.Sprintf("upsert progress %q for job %d", progressID, p.JobID), err)
	}
	return out, nil
}

// Latest returns the named metric, or the most recently updated one when
// progressID is empty.
func (s *ProgressService) Latest(ctx context.Context, jobID int64, progressID string) (*models.ProgressMetric, error) {
	var (
		m   *models.ProgressMetric
		err error
	)
	if progressID == "" {
		m, err = s.store.LatestProgress(ctx, jobID)
	} else {
		m, err = s.store.GetProgress(ctx, jobID, progressID)
	}
	if err != nil {
		return nil, translate(fmt.Sprintf("get progress for job %d", jobID), err)
	}
	return m, nil
}

// List returns every metric of a job, most recently updated first.
func (s *ProgressService) List(ctx context.Context, jobID int64) ([]*models.ProgressMetric, error) {
	if _, err := s.hierarchy.Get(ctx, jobID); err != nil {
		return nil, err
	}
	metrics, err := s.store.ListProgress(ctx, []int64{jobID})
	if err != nil {
		return nil, translate("list progress", err)
	}
	return metrics, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
