package tracker

import (
	"context"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/store"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const headerSearchLimit = 10

// Catalog answers read-only queries across many jobs.
type Catalog struct {
	store    store.Store
	registry *Registry
	now      func() time.Time
}

type SearchParams struct {
	Query    string
	Source   string
	From     time.Time
	To       time.Time
	RootOnly bool
	Status   string
	Page     int
	Limit    int
}

type SearchResult struct {
	Jobs    []*models.Job
	Summary *models.StatusSummary
	// Total counts jobs matching every filter including Status.
	Total int
	Page  int
	Limit int
}

var validStatuses = map[string]bool{
	"":                        true,
	models.JobStatusRunning:   true,
	models.JobStatusSucceeded: true,
	models.JobStatusFailed:    true,
}

// Search lists jobs newest first with a per-status summary of the filter.
func (c *Catalog) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	if !validStatuses[p.Status] {
		return nil, invalid("status must be one of running, succeeded, failed; got %q", p.Status)
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return nil, invalid("to must not be before from")
	}

	filter := store.JobFilter{
		Query:    p.Query,
		Source:   p.Source,
		From:     p.From,
		To:       p.To,
		RootOnly: p.RootOnly,
		Status:   p.Status,
		Page:     p.Page,
		Limit:    p.Limit,
	}
	filter.Normalize()

	jobs, summary, err := c.store.SearchJobs(ctx, filter)
	if err != nil {
		return nil, translate("search jobs", err)
	}

	total := summary.Total
	switch p.Status {
	case models.JobStatusRunning:
		total = summary.Running
	case models.JobStatusSucceeded:
		total = summary.Succeeded
	case models.JobStatusFailed:
		total = summary.Failed
	}

	return &SearchResult{Jobs: jobs, Summary: summary, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// Sources lists the distinct non-empty job sources.
func (c *Catalog) Sources(ctx context.Context) ([]string, error) {
	sources, err := c.store.ListSources(ctx)
	if err != nil {
		return nil, translate("list sources", err)
	}
	return sources, nil
}

// Headers returns up to ten headers whose name or slug contains search.
func (c *Catalog) Headers(ctx context.Context, search string) ([]*models.FunctionHeader, error) {
	headers, err := c.store.ListHeaders(ctx, search, headerSearchLimit)
	if err != nil {
		return nil, translate("list headers", err)
	}
	return headers, nil
}

// RunsSummary aggregates runs of the header over the last interval periods.
// period is one of hour, day, week, month or year.
func (c *Catalog) RunsSummary(ctx context.Context, slug, period string, interval int, args map[string]string) (*models.RunsSummary, error) {
	if interval <= 0 {
		interval = 1
	}
	now := c.now()
	var since time.Time
	switch period {
	case "hour":
		since = now.Add(-time.Duration(interval) * time.Hour)
	case "day", "":
		since = now.AddDate(0, 0, -interval)
	case "week":
		since = now.AddDate(0, 0, -7*interval)
	case "month":
		since = now.AddDate(0, -interval, 0)
	case "year":
		since = now.AddDate(-interval, 0, 0)
	default:
		return nil, invalid("period must be one of hour, day, week, month, year; got %q", period)
	}

	header, err := c.registry.ResolveHeaderBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	summary, err := c.store.RunsSummary(ctx, store.RunsFilter{HeaderID: header.ID, Since: since, Args: args})
	if err != nil {
		return nil, translate("runs summary", err)
	}
	return summary, nil
}
