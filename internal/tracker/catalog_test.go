package tracker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_SummaryCoversWholeFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok := f.start(t, "Nightly Export", nil)
	bad := f.start(t, "Nightly Export", nil)
	f.start(t, "Nightly Export", nil)
	child := f.start(t, "Nightly Export", ok)
	f.start(t, "Cleanup", nil)

	_, err := f.tr.Lifecycle.Finish(ctx, child.ID, true)
	require.NoError(t, err)
	_, err = f.tr.Lifecycle.Finish(ctx, ok.ID, true)
	require.NoError(t, err)
	_, err = f.tr.Lifecycle.Finish(ctx, bad.ID, false)
	require.NoError(t, err)

	res, err := f.tr.Catalog.Search(ctx, tracker.SearchParams{Query: "nightly", RootOnly: true})
	require.NoError(t, err)
	assert.Equal(t, &models.StatusSummary{Total: 3, Running: 1, Succeeded: 1, Failed: 1}, res.Summary)
	assert.Equal(t, 3, res.Total)
	require.Len(t, res.Jobs, 3)
	assert.True(t, res.Jobs[0].StartTime.After(res.Jobs[2].StartTime), "newest first")

	failed, err := f.tr.Catalog.Search(ctx, tracker.SearchParams{Query: "nightly", RootOnly: true, Status: "failed"})
	require.NoError(t, err)
	require.Len(t, failed.Jobs, 1)
	assert.Equal(t, bad.ID, failed.Jobs[0].ID)
	assert.Equal(t, 1, failed.Total)
	assert.Equal(t, 3, failed.Summary.Total)
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 15; i++ {
		f.start(t, "Batch", nil)
	}

	res, err := f.tr.Catalog.Search(context.Background(), tracker.SearchParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 2, res.Page)
	assert.Len(t, res.Jobs, 5)
	assert.Equal(t, 15, res.Total)
}

func TestSearch_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tr.Catalog.Search(ctx, tracker.SearchParams{Status: "paused"})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	_, err = f.tr.Catalog.Search(ctx, tracker.SearchParams{From: epoch, To: epoch.Add(-time.Hour)})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
}

func TestSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.tr.Registry.EnsureHeader(ctx, "Sync")
	require.NoError(t, err)
	for _, src := range []string{"cron", "api", "cron", ""} {
		_, err := f.tr.Lifecycle.Start(ctx, tracker.StartParams{HeaderID: h.ID, Source: src})
		require.NoError(t, err)
	}

	sources, err := f.tr.Catalog.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "cron"}, sources)
}

func TestHeaders_Search(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, name := range []string{"Send Emails", "Send Invoices", "Rebuild Index"} {
		_, err := f.tr.Registry.EnsureHeader(ctx, name)
		require.NoError(t, err)
	}

	got, err := f.tr.Catalog.Headers(ctx, "send")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "send-emails", got[0].Slug)

	all, err := f.tr.Catalog.Headers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRunsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.tr.Registry.EnsureHeader(ctx, "Report")
	require.NoError(t, err)

	start := func(region string) *models.Job {
		args, _ := json.Marshal(map[string]any{"region": region, "retries": 2})
		job, err := f.tr.Lifecycle.Start(ctx, tracker.StartParams{HeaderID: h.ID, Args: args})
		require.NoError(t, err)
		return job
	}
	eu := start("eu")
	us := start("us")
	start("eu")

	_, err = f.tr.Lifecycle.Finish(ctx, eu.ID, true)
	require.NoError(t, err)
	_, err = f.tr.Lifecycle.Finish(ctx, us.ID, true)
	require.NoError(t, err)

	all, err := f.tr.Catalog.RunsSummary(ctx, "report", "day", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Count)
	assert.Equal(t, 1, all.Pending)
	require.NotNil(t, all.AvgDurationSecs)

	euOnly, err := f.tr.Catalog.RunsSummary(ctx, "report", "week", 1, map[string]string{"region": "eu", "retries": "2"})
	require.NoError(t, err)
	assert.Equal(t, 2, euOnly.Count)
	assert.Equal(t, 1, euOnly.Pending)
	require.NotNil(t, euOnly.AvgDurationSecs)
	assert.Greater(t, *euOnly.AvgDurationSecs, 0.0)

	_, err = f.tr.Catalog.RunsSummary(ctx, "report", "fortnight", 1, nil)
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	_, err = f.tr.Catalog.RunsSummary(ctx, "missing", "day", 1, nil)
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}
