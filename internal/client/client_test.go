package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func apiServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", 5*time.Second)
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeErr(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": "nope"}})
}

// --- tests ---

func TestGetJob_EscapesRef(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/nightly%2Frun", r.URL.EscapedPath())
		writeData(w, http.StatusOK, models.Job{ID: 7, HeaderName: "Nightly"})
	})

	job, err := c.GetJob(context.Background(), "nightly/run")
	require.NoError(t, err)
	assert.Equal(t, int64(7), job.ID)
}

func TestTail_PassesCursor(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/jobs/3/logs", r.URL.Path)
		assert.Equal(t, "false", q.Get("descendants"))
		if q.Get("since") == "" {
			writeData(w, http.StatusOK, TailPage{
				Entries: []*models.LogEntry{{ID: 1, Message: "hi"}},
				Cursor:  "2024-03-01T12:00:00Z",
			})
			return
		}
		assert.Equal(t, "2024-03-01T12:00:00Z", q.Get("since"))
		writeData(w, http.StatusOK, TailPage{Entries: []*models.LogEntry{}})
	})

	page, err := c.Tail(context.Background(), "3", "", false)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)

	next, err := c.Tail(context.Background(), "3", page.Cursor, false)
	require.NoError(t, err)
	assert.Empty(t, next.Entries)
	assert.Equal(t, page.Cursor, next.Cursor, "cursor is kept when nothing new arrived")
}

func TestFinish_SendsSuccessFlag(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["success"])
		writeData(w, http.StatusOK, models.FinishResult{JobID: 3, Message: "job marked failed"})
	})

	res, err := c.Finish(context.Background(), "3", false)
	require.NoError(t, err)
	assert.Equal(t, "job marked failed", res.Message)
}

func TestProgress_Query(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rows", r.URL.Query().Get("progress_id"))
		writeData(w, http.StatusOK, map[string]any{"progress_id": "rows", "current_value": 5, "percentage": 50})
	})

	p, err := c.Progress(context.Background(), "3", "rows")
	require.NoError(t, err)
	assert.Equal(t, "rows", p.ProgressID)
	require.NotNil(t, p.Percentage)
	assert.Equal(t, 50.0, *p.Percentage)
}

func TestErrors_Classified(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusConflict, ErrConflict},
		{http.StatusBadRequest, ErrAPI},
		{http.StatusServiceUnavailable, ErrAPI},
	}
	for _, tc := range cases {
		c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeErr(w, tc.status, "X")
		})
		_, err := c.GetJob(context.Background(), "1")
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestErrors_NonJSONErrorBody(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.GetJob(context.Background(), "1")
	assert.ErrorIs(t, err, ErrAPI)
}

func TestErrors_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := New(url, time.Second).Health(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestErrors_Timeout(t *testing.T) {
	c := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeData(w, http.StatusOK, nil)
	})
	c.client.Timeout = 20 * time.Millisecond

	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClassifyError_ContextCanceled(t *testing.T) {
	err := classifyError(context.Canceled)
	assert.True(t, errors.Is(err, ErrTimeout))
}
