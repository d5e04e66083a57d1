package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// LogService appends log entries and serves incremental tails.
type LogService struct {
	store     store.Store
	hierarchy *Hierarchy
	now       func() time.Time
}

type AppendParams struct {
	JobID     int64
	Kind      string
	Message   string
	Traceback *string
	// EventTime defaults to the ingestion time. Callers may backdate entries.
	EventTime *time.Time
}

type TailParams struct {
	JobID int64
	// Since is an exclusive cursor; nil returns everything.
	Since *time.Time
	// Descendants widens the tail to every transitive child of JobID.
	Descendants bool
}

// checkEntry validates the fields of p that do not depend on the job.
func checkEntry(p AppendParams) (models.LogKind, error) {
	kind, err := models.ParseLogKind(p.Kind)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if kind == models.LogProgress && strings.TrimSpace(p.Message) == "" {
		return "", invalid("PROGRESS entries must carry a progress id as message")
	}
	return kind, nil
}

// Validate checks a batch without a job, so callers can reject it before
// creating the job it will be attached to.
func (s *LogService) Validate(batch []AppendParams) error {
	for i, p := range batch {
		if _, err := checkEntry(p); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

func (s *LogService) build(p AppendParams) (*models.LogEntry, error) {
	if p.JobID <= 0 {
		return nil, invalid("job id is required")
	}
	kind, err := checkEntry(p)
	if err != nil {
		return nil, err
	}
	// Stored with microsecond precision; return what a later read will see.
	eventTime := s.now()
	if p.EventTime != nil {
		eventTime = p.EventTime.UTC()
	}
	eventTime = eventTime.Truncate(time.Microsecond)
	return &models.LogEntry{
		JobID:     p.JobID,
		EventTime: eventTime,
		Kind:      kind,
		Message:   p.Message,
		Traceback: p.Traceback,
	}, nil
}

// Append validates and stores one entry.
func (s *LogService) Append(ctx context.Context, p AppendParams) (*models.LogEntry, error) {
	entry, err := s.build(p)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendLog(ctx, entry); err != nil {
		return nil, translate(fmt.Sprintf("append log to job %d", p.JobID), err)
	}
	return entry, nil
}

// AppendBatch stores a buffered batch for one job atomically. Nothing is
// written if any entry is invalid.
func (s *LogService) AppendBatch(ctx context.Context, jobID int64, batch []AppendParams) ([]*models.LogEntry, error) {
	entries := make([]*models.LogEntry, 0, len(batch))
	for i, p := range batch {
		p.JobID = jobID
		entry, err := s.build(p)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	if err := s.store.AppendLogs(ctx, entries); err != nil {
		return nil, translate(fmt.Sprintf("append logs to job %d", jobID), err)
	}
	return entries, nil
}

// Tail returns entries with an event time strictly after p.Since, oldest
// first. PROGRESS entries carry the current state of the metric they name.
//
// Entries appended with an event time at or before a cursor the caller has
// already moved past are not returned by later tails.
func (s *LogService) Tail(ctx context.Context, p TailParams) ([]*models.LogEntry, error) {
	ids := []int64{p.JobID}
	if p.Descendants {
		var err error
		if ids, err = s.hierarchy.Descendants(ctx, p.JobID); err != nil {
			return nil, err
		}
	} else if _, err := s.hierarchy.Get(ctx, p.JobID); err != nil {
		return nil, err
	}

	entries, err := s.store.TailLogs(ctx, ids, p.Since)
	if err != nil {
		return nil, translate("tail logs", err)
	}
	if err := s.renderProgress(ctx, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

type progressKey struct {
	jobID      int64
	progressID string
}

func (s *LogService) renderProgress(ctx context.Context, entries []*models.LogEntry) error {
	seen := map[int64]bool{}
	var jobIDs []int64
	for _, e := range entries {
		if e.Kind == models.LogProgress && !seen[e.JobID] {
			seen[e.JobID] = true
			jobIDs = append(jobIDs, e.JobID)
		}
	}
	if len(jobIDs) == 0 {
		return nil
	}

	metrics, err := s.store.ListProgress(ctx, jobIDs)
	if err != nil {
		return translate("load progress for tail", err)
	}
	index := make(map[progressKey]*models.ProgressMetric, len(metrics))
	for _, m := range metrics {
		index[progressKey{m.JobID, m.ProgressID}] = m
	}
	for _, e := range entries {
		if e.Kind != models.LogProgress {
			continue
		}
		if m, ok := index[progressKey{e.JobID, e.Message}]; ok {
			e.Progress = m.Snapshot()
		}
	}
	return nil
}

// NextCursor returns the cursor to pass as Since on the following tail.
func NextCursor(entries []*models.LogEntry, since *time.Time) *time.Time {
	if len(entries) == 0 {
		return since
	}
	last := entries[len(entries)-1].EventTime
	return &last
}
