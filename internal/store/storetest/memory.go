// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// MemoryStore mirrors the semantics of store.PostgresStore closely enough for
// unit tests: unique slugs, referential checks, ordered tails and the
// progress merge rules.
type MemoryStore struct {
	mu       sync.Mutex
	headers  []*models.FunctionHeader
	jobs     map[int64]*models.Job
	logs     []*models.LogEntry
	progress []*models.ProgressMetric
	nextID   int64

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	// failWith, when set, is returned by every call.
	failWith error
	// ChildQueries counts ListChildIDs calls.
	ChildQueries int
}

func New() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[int64]*models.Job),
		locks: make(map[int64]*sync.Mutex),
	}
}

// FailWith makes every subsequent call return err. Pass nil to recover.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}

// --- Headers ---

func (m *MemoryStore) GetHeaderBySlug(ctx context.Context, slug string) (*models.FunctionHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, h := range m.headers {
		if h.Slug == slug {
			c := *h
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) CreateHeader(ctx context.Context, h *models.FunctionHeader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.headers {
		if existing.Slug == h.Slug {
			return store.ErrDuplicateKey
		}
	}
	h.ID = m.id()
	c := *h
	m.headers = append(m.headers, &c)
	return nil
}

func (m *MemoryStore) ListHeaders(ctx context.Context, search string, limit int) ([]*models.FunctionHeader, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(search)
	out := []*models.FunctionHeader{}
	for _, h := range m.headers {
		if q == "" || strings.Contains(strings.ToLower(h.Name), q) || strings.Contains(h.Slug, q) {
			c := *h
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Jobs ---

func (m *MemoryStore) view(j *models.Job) *models.Job {
	c := *j
	for _, h := range m.headers {
		if h.ID == j.HeaderID {
			c.HeaderName = h.Name
			c.HeaderSlug = h.Slug
		}
	}
	return &c
}

func (m *MemoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	found := false
	for _, h := range m.headers {
		if h.ID == job.HeaderID {
			found = true
		}
	}
	if !found {
		return store.ErrNotFound
	}
	if job.ParentID != nil {
		if _, ok := m.jobs[*job.ParentID]; !ok {
			return store.ErrNotFound
		}
	}
	if job.Slug != nil {
		for _, j := range m.jobs {
			if j.Slug != nil && *j.Slug == *job.Slug {
				return store.ErrDuplicateKey
			}
		}
	}
	job.ID = m.id()
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.view(j), nil
}

func (m *MemoryStore) GetJobBySlug(ctx context.Context, slug string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, j := range m.jobs {
		if j.Slug != nil && *j.Slug == slug {
			return m.view(j), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) sortedJobs() []*models.Job {
	out := make([]*models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (m *MemoryStore) ListChildren(ctx context.Context, parentID int64) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []*models.Job{}
	for _, j := range m.sortedJobs() {
		if j.ParentID != nil && *j.ParentID == parentID {
			out = append(out, m.view(j))
		}
	}
	return out, nil
}

func (m *MemoryStore) ListChildIDs(ctx context.Context, parentIDs []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.ChildQueries++
	set := make(map[int64]bool, len(parentIDs))
	for _, id := range parentIDs {
		set[id] = true
	}
	out := []int64{}
	for _, j := range m.sortedJobs() {
		if j.ParentID != nil && set[*j.ParentID] {
			out = append(out, j.ID)
		}
	}
	return out, nil
}

func (m *MemoryStore) FinishJob(ctx context.Context, id int64, succeeded bool, endTime time.Time) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Finished {
		return nil, store.ErrAlreadyFinished
	}
	end := endTime
	j.EndTime = &end
	j.Finished = true
	j.Succeeded = succeeded
	return m.view(j), nil
}

func (m *MemoryStore) ForceFailJob(ctx context.Context, id int64, now time.Time) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failJob(id, now, false)
}

func (m *MemoryStore) ExpireJob(ctx context.Context, id int64, now time.Time) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failJob(id, now, true)
}

func (m *MemoryStore) failJob(id int64, now time.Time, runningOnly bool) (*models.Job, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if runningOnly && j.Finished {
		return nil, store.ErrAlreadyFinished
	}
	end := now
	if last, ok := m.lastLogTime(id); ok {
		end = last
	}
	j.EndTime = &end
	j.Finished = true
	j.Succeeded = false
	return m.view(j), nil
}

func (m *MemoryStore) lastLogTime(jobID int64) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range m.logs {
		if e.JobID == jobID && (!found || e.EventTime.After(last)) {
			last = e.EventTime
			found = true
		}
	}
	return last, found
}

func (m *MemoryStore) SearchJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, *models.StatusSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, nil, m.failWith
	}
	filter.Normalize()
	q := strings.ToLower(filter.Query)

	var matched []*models.Job
	summary := &models.StatusSummary{}
	for _, j := range m.sortedJobs() {
		v := m.view(j)
		if q != "" {
			slug := ""
			if v.Slug != nil {
				slug = strings.ToLower(*v.Slug)
			}
			if !strings.Contains(strings.ToLower(v.HeaderName), q) && !strings.Contains(v.HeaderSlug, q) && !strings.Contains(slug, q) {
				continue
			}
		}
		if filter.Source != "" && v.Source != filter.Source {
			continue
		}
		if !filter.From.IsZero() && v.StartTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && v.StartTime.After(filter.To) {
			continue
		}
		if filter.RootOnly && v.ParentID != nil {
			continue
		}
		summary.Total++
		switch v.Status() {
		case models.JobStatusRunning:
			summary.Running++
		case models.JobStatusSucceeded:
			summary.Succeeded++
		default:
			summary.Failed++
		}
		if filter.Status != "" && v.Status() != filter.Status {
			continue
		}
		matched = append(matched, v)
	}

	sort.SliceStable(matched, func(i, k int) bool {
		if matched[i].StartTime.Equal(matched[k].StartTime) {
			return matched[i].ID > matched[k].ID
		}
		return matched[i].StartTime.After(matched[k].StartTime)
	})

	start := (filter.Page - 1) * filter.Limit
	out := []*models.Job{}
	if start < len(matched) {
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		out = matched[start:end]
	}
	return out, summary, nil
}

func (m *MemoryStore) ListSources(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	set := map[string]bool{}
	for _, j := range m.jobs {
		if j.Source != "" {
			set[j.Source] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) RunsSummary(ctx context.Context, filter store.RunsFilter) (*models.RunsSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	summary := &models.RunsSummary{HeaderID: filter.HeaderID}
	var total float64
	finished := 0
	for _, j := range m.jobs {
		if j.HeaderID != filter.HeaderID || j.StartTime.Before(filter.Since) {
			continue
		}
		if !argsMatch(j.Arguments, filter.Args) {
			continue
		}
		summary.Count++
		if !j.Finished {
			summary.Pending++
			continue
		}
		finished++
		total += j.EndTime.Sub(j.StartTime).Seconds()
	}
	if finished > 0 {
		avg := total / float64(finished)
		summary.AvgDurationSecs = &avg
	}
	return summary, nil
}

func (m *MemoryStore) ListStaleJobs(ctx context.Context, inactiveSince time.Time, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []int64{}
	for _, j := range m.sortedJobs() {
		if j.Finished {
			continue
		}
		active := j.StartTime
		if last, ok := m.lastLogTime(j.ID); ok && last.After(active) {
			active = last
		}
		if active.Before(inactiveSince) {
			out = append(out, j.ID)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// argsMatch mirrors Postgres' args ->> key = value comparison.
func argsMatch(raw json.RawMessage, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return false
	}
	for k, v := range want {
		got, ok := args[k]
		if !ok {
			return false
		}
		text, isString := got.(string)
		if !isString {
			b, _ := json.Marshal(got)
			text = string(b)
		}
		if text != v {
			return false
		}
	}
	return true
}

// --- Logs ---

func (m *MemoryStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	return m.AppendLogs(ctx, []*models.LogEntry{entry})
}

func (m *MemoryStore) AppendLogs(ctx context.Context, entries []*models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, e := range entries {
		if _, ok := m.jobs[e.JobID]; !ok {
			return store.ErrNotFound
		}
	}
	for _, e := range entries {
		e.ID = m.id()
		c := *e
		m.logs = append(m.logs, &c)
	}
	return nil
}

func (m *MemoryStore) TailLogs(ctx context.Context, jobIDs []int64, since *time.Time) ([]*models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	set := make(map[int64]bool, len(jobIDs))
	for _, id := range jobIDs {
		set[id] = true
	}
	out := []*models.LogEntry{}
	for _, e := range m.logs {
		if !set[e.JobID] {
			continue
		}
		if since != nil && !e.EventTime.After(*since) {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].EventTime.Equal(out[k].EventTime) {
			return out[i].ID < out[k].ID
		}
		return out[i].EventTime.Before(out[k].EventTime)
	})
	return out, nil
}

// --- Progress ---

func (m *MemoryStore) UpsertProgress(ctx context.Context, pm *models.ProgressMetric) (*models.ProgressMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if _, ok := m.jobs[pm.JobID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range m.progress {
		if existing.JobID != pm.JobID || existing.ProgressID != pm.ProgressID {
			continue
		}
		if pm.Title != "" {
			existing.Title = pm.Title
		}
		if pm.Description != "" {
			existing.Description = pm.Description
		}
		existing.CurrentValue = pm.CurrentValue
		if pm.MaxValue != nil {
			max := *pm.MaxValue
			existing.MaxValue = &max
		}
		if pm.Duration != nil {
			d := *pm.Duration
			existing.Duration = &d
		}
		existing.LastUpdated = pm.LastUpdated
		existing.Completed = models.IsComplete(existing.CurrentValue, existing.MaxValue)
		c := *existing
		return &c, nil
	}
	c := *pm
	c.ID = m.id()
	c.Completed = models.IsComplete(c.CurrentValue, c.MaxValue)
	m.progress = append(m.progress, &c)
	out := c
	return &out, nil
}

func (m *MemoryStore) GetProgress(ctx context.Context, jobID int64, progressID string) (*models.ProgressMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, pm := range m.progress {
		if pm.JobID == jobID && pm.ProgressID == progressID {
			c := *pm
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryStore) LatestProgress(ctx context.Context, jobID int64) (*models.ProgressMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var latest *models.ProgressMetric
	for _, pm := range m.progress {
		if pm.JobID != jobID {
			continue
		}
		if latest == nil || !pm.LastUpdated.Before(latest.LastUpdated) {
			latest = pm
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (m *MemoryStore) ListProgress(ctx context.Context, jobIDs []int64) ([]*models.ProgressMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	set := make(map[int64]bool, len(jobIDs))
	for _, id := range jobIDs {
		set[id] = true
	}
	out := []*models.ProgressMetric{}
	for _, pm := range m.progress {
		if set[pm.JobID] {
			c := *pm
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, k int) bool {
		if out[i].JobID != out[k].JobID {
			return out[i].JobID < out[k].JobID
		}
		return out[i].LastUpdated.After(out[k].LastUpdated)
	})
	return out, nil
}

// --- Transactions ---

// Snapshot runs fn directly; the memory store has no isolation levels.
func (m *MemoryStore) Snapshot(ctx context.Context, fn func(ctx context.Context, s store.Store) error) error {
	return fn(ctx, m)
}

func (m *MemoryStore) WithJobLock(ctx context.Context, jobID int64, fn func(ctx context.Context, s store.Store) error) error {
	m.locksMu.Lock()
	l, ok := m.locks[jobID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[jobID] = l
	}
	m.locksMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx, m)
}

var _ store.Store = (*MemoryStore)(nil)
