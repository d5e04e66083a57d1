package handler

import (
	"net/http"

	"github.com/kiranshivaraju/jobtracker/internal/api/response"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const maxBatchEntries = 1000

// NewAppendLogHandler returns an http.HandlerFunc for POST /api/v1/jobs/{ref}/logs.
func NewAppendLogHandler(jobs JobResolver, logs LogAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		var req logRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := req.params()
		if err != nil {
			badRequest(w, "event_time must be a valid RFC3339 timestamp")
			return
		}
		p.JobID = job.ID

		entry, err := logs.Append(r.Context(), p)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.Created(w, entry)
	}
}

// NewAppendLogBatchHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/{ref}/logs/batch. The batch is stored all or nothing.
func NewAppendLogBatchHandler(jobs JobResolver, logs LogAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		var req struct {
			Entries []logRequest `json:"entries"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Entries) == 0 {
			badRequest(w, "entries must not be empty")
			return
		}
		if len(req.Entries) > maxBatchEntries {
			badRequest(w, "too many entries in one batch")
			return
		}

		batch := make([]tracker.AppendParams, 0, len(req.Entries))
		for _, e := range req.Entries {
			p, err := e.params()
			if err != nil {
				badRequest(w, "event_time must be a valid RFC3339 timestamp")
				return
			}
			batch = append(batch, p)
		}

		entries, err := logs.AppendBatch(r.Context(), job.ID, batch)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.Created(w, entries)
	}
}

type tailResponse struct {
	Entries []*models.LogEntry `json:"entries"`
	// Cursor is passed back as since to fetch the next page.
	Cursor string `json:"cursor,omitempty"`
}

// NewTailLogsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{ref}/logs.
// Logs of every descendant are included unless descendants=false.
func NewTailLogsHandler(jobs JobResolver, logs LogTailer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		q := r.URL.Query()
		since, err := parseTime(q.Get("since"))
		if err != nil {
			badRequest(w, "since must be a valid RFC3339 timestamp")
			return
		}
		descendants, err := parseBool(q.Get("descendants"), true)
		if err != nil {
			badRequest(w, "descendants must be a boolean")
			return
		}

		entries, err := logs.Tail(r.Context(), tracker.TailParams{JobID: job.ID, Since: since, Descendants: descendants})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, tailResponse{
			Entries: entries,
			Cursor:  formatCursor(tracker.NextCursor(entries, since)),
		})
	}
}
