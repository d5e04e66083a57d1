package tracker_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.start(t, "Logger", nil)

	e, err := f.tr.Logs.Append(ctx, tracker.AppendParams{JobID: job.ID, Kind: "info", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.LogInfo, e.Kind)
	assert.False(t, e.EventTime.IsZero())

	_, err = f.tr.Logs.Append(ctx, tracker.AppendParams{JobID: job.ID, Kind: "DEBUG", Message: "nope"})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	_, err = f.tr.Logs.Append(ctx, tracker.AppendParams{JobID: job.ID, Kind: "PROGRESS", Message: " "})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)

	_, err = f.tr.Logs.Append(ctx, tracker.AppendParams{JobID: 12345, Kind: "INFO", Message: "orphan"})
	assert.ErrorIs(t, err, tracker.ErrNotFound)

	entries, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected entries are never stored")
}

func TestValidate_ChecksBatchWithoutJob(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.tr.Logs.Validate([]tracker.AppendParams{
		{Kind: "INFO", Message: "a"},
		{Kind: "progress", Message: "rows"},
	}))
	assert.NoError(t, f.tr.Logs.Validate(nil))

	err := f.tr.Logs.Validate([]tracker.AppendParams{
		{Kind: "INFO", Message: "a"},
		{Kind: "PROGRESS", Message: ""},
	})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "entry 1")

	err = f.tr.Logs.Validate([]tracker.AppendParams{{Kind: "TRACE", Message: "x"}})
	assert.ErrorIs(t, err, tracker.ErrInvalidArgument)
}

func TestAppendBatch_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.start(t, "Batcher", nil)

	_, err := f.tr.Logs.AppendBatch(ctx, job.ID, []tracker.AppendParams{
		{Kind: "INFO", Message: "a"},
		{Kind: "BOGUS", Message: "b"},
	})
	require.ErrorIs(t, err, tracker.ErrInvalidArgument)

	entries, err := f.tr.Logs.AppendBatch(ctx, job.ID, []tracker.AppendParams{
		{Kind: "INFO", Message: "a"},
		{Kind: "SUCCESS", Message: "b"},
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	tail, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	assert.Len(t, tail, 2)
}

func TestTail_CursorIsExclusiveAndOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.start(t, "Tailer", nil)

	e1 := f.log(t, job.ID, "INFO", "one")
	e2 := f.log(t, job.ID, "WARNING", "two")
	e3 := f.log(t, job.ID, "ERROR", "three")

	all, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{e1.ID, e2.ID, e3.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})

	rest, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID, Since: &e1.EventTime})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, e2.ID, rest[0].ID)

	none, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID, Since: &e3.EventTime})
	require.NoError(t, err)
	assert.Empty(t, none)
}

// An entry backdated before a cursor the poller already moved past is never
// delivered to that poller.
func TestTail_BackdatedEntryIsSkippedByCursor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.start(t, "Backdated", nil)

	f.log(t, job.ID, "INFO", "first")
	first, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	cursor := tracker.NextCursor(first, nil)
	require.NotNil(t, cursor)

	backdated := cursor.Add(-time.Minute)
	late, err := f.tr.Logs.Append(ctx, tracker.AppendParams{JobID: job.ID, Kind: "INFO", Message: "late", EventTime: &backdated})
	require.NoError(t, err)

	next, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID, Since: cursor})
	require.NoError(t, err)
	assert.Empty(t, next, "backdated entry is behind the cursor")

	full, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, late.ID, full[0].ID, "a fresh tail orders it first")
}

// For any interleaving of appends and tails with non-decreasing event times,
// the union of tail results is exactly the appended sequence without gaps or
// duplicates.
func TestTail_RandomInterleavingsDeliverEverythingOnce(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			root := f.start(t, "Root", nil)
			child := f.start(t, "Child", root)
			jobs := []int64{root.ID, child.ID}

			rng := rand.New(rand.NewSource(seed))
			var appended, delivered []int64
			var cursor *time.Time
			for step := 0; step < 60; step++ {
				if rng.Intn(3) > 0 {
					e := f.log(t, jobs[rng.Intn(len(jobs))], "INFO", fmt.Sprintf("step %d", step))
					appended = append(appended, e.ID)
					continue
				}
				got, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: root.ID, Since: cursor, Descendants: true})
				require.NoError(t, err)
				for _, e := range got {
					delivered = append(delivered, e.ID)
				}
				cursor = tracker.NextCursor(got, cursor)
			}
			got, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: root.ID, Since: cursor, Descendants: true})
			require.NoError(t, err)
			for _, e := range got {
				delivered = append(delivered, e.ID)
			}

			assert.Equal(t, appended, delivered)
		})
	}
}

func TestTail_DescendantsScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.start(t, "Root", nil)
	child := f.start(t, "Child", root)
	other := f.start(t, "Other", nil)

	f.log(t, root.ID, "INFO", "root")
	f.log(t, child.ID, "INFO", "child")
	f.log(t, other.ID, "INFO", "other")

	only, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: root.ID})
	require.NoError(t, err)
	assert.Len(t, only, 1)

	tree, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: root.ID, Descendants: true})
	require.NoError(t, err)
	require.Len(t, tree, 2)
	assert.Equal(t, "root", tree[0].Message)
	assert.Equal(t, "child", tree[1].Message)

	_, err = f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: 999})
	assert.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestTail_RendersCurrentProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.start(t, "Loader", nil)

	_, err := f.tr.Progress.Upsert(ctx, tracker.UpsertProgressParams{
		JobID: job.ID, ProgressID: "rows", Title: "Rows", Value: 10, Max: ptr(100.0),
	})
	require.NoError(t, err)
	f.log(t, job.ID, "PROGRESS", "rows")
	f.log(t, job.ID, "PROGRESS", "unknown-metric")

	_, err = f.tr.Progress.Upsert(ctx, tracker.UpsertProgressParams{JobID: job.ID, ProgressID: "rows", Value: 100})
	require.NoError(t, err)

	entries, err := f.tr.Logs.Tail(ctx, tracker.TailParams{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NotNil(t, entries[0].Progress)
	assert.Equal(t, 100.0, entries[0].Progress.Current, "rendered at read time, not at append time")
	assert.True(t, entries[0].Progress.Completed)
	assert.Equal(t, "Rows", entries[0].Progress.Title)
	assert.Nil(t, entries[1].Progress)
	assert.Equal(t, "unknown-metric", entries[1].Message)
}

func TestNextCursor(t *testing.T) {
	since := epoch
	assert.Equal(t, &since, tracker.NextCursor(nil, &since))
	assert.Nil(t, tracker.NextCursor(nil, nil))

	later := epoch.Add(time.Hour)
	got := tracker.NextCursor([]*models.LogEntry{{EventTime: epoch}, {EventTime: later}}, &since)
	require.NotNil(t, got)
	assert.True(t, got.Equal(later))
}
