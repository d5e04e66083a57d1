package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/api/response"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

type logRequest struct {
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	Traceback *string `json:"traceback"`
	EventTime string  `json:"event_time"`
}

func (l logRequest) params() (tracker.AppendParams, error) {
	eventTime, err := parseTime(l.EventTime)
	if err != nil {
		return tracker.AppendParams{}, err
	}
	return tracker.AppendParams{
		Kind:      l.Kind,
		Message:   l.Message,
		Traceback: l.Traceback,
		EventTime: eventTime,
	}, nil
}

type startJobResponse struct {
	*models.Job
	Logs []*models.LogEntry `json:"logs,omitempty"`
}

// NewStartJobHandler returns an http.HandlerFunc for POST /api/v1/jobs. The
// header is created on first use when given by name. Initial log entries in
// the request are validated up front and appended after the job is created.
func NewStartJobHandler(reg HeaderRegistry, jobs JobResolver, lc JobLifecycle, logs LogAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Header   string          `json:"header"`
			HeaderID int64           `json:"header_id"`
			Parent   jobRef          `json:"parent"`
			Slug     string          `json:"slug"`
			Source   string          `json:"source"`
			Args     json.RawMessage `json:"args"`
			Logs     []logRequest    `json:"logs"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		initial := make([]tracker.AppendParams, 0, len(req.Logs))
		for _, l := range req.Logs {
			p, err := l.params()
			if err != nil {
				badRequest(w, "event_time must be a valid RFC3339 timestamp")
				return
			}
			initial = append(initial, p)
		}
		// Nothing is written, header included, unless every initial entry is valid.
		if err := logs.Validate(initial); err != nil {
			WriteError(w, r, err)
			return
		}

		headerID := req.HeaderID
		switch {
		case strings.TrimSpace(req.Header) != "":
			h, err := reg.EnsureHeader(r.Context(), req.Header)
			if err != nil {
				WriteError(w, r, err)
				return
			}
			headerID = h.ID
		case headerID <= 0:
			badRequest(w, "header or header_id is required")
			return
		}

		p := tracker.StartParams{HeaderID: headerID, Slug: req.Slug, Source: req.Source, Args: req.Args}
		if req.Parent != "" {
			parent, err := jobs.ResolveToken(r.Context(), string(req.Parent))
			if err != nil {
				WriteError(w, r, err)
				return
			}
			p.ParentID = &parent.ID
		}

		job, err := lc.Start(r.Context(), p)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		resp := startJobResponse{Job: job}
		if len(initial) > 0 {
			if resp.Logs, err = logs.AppendBatch(r.Context(), job.ID, initial); err != nil {
				WriteError(w, r, err)
				return
			}
		}
		response.Created(w, resp)
	}
}

// NewSearchJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewSearchJobsHandler(c JobCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p := tracker.SearchParams{
			Query:  q.Get("q"),
			Source: q.Get("source"),
			Status: q.Get("status"),
		}

		var err error
		if p.RootOnly, err = parseBool(q.Get("root_only"), false); err != nil {
			badRequest(w, "root_only must be a boolean")
			return
		}
		if p.Page, err = parseInt(q.Get("page"), 1); err != nil {
			badRequest(w, "page must be an integer")
			return
		}
		if p.Limit, err = parseInt(q.Get("limit"), 10); err != nil {
			badRequest(w, "limit must be an integer")
			return
		}
		for _, bound := range []struct {
			name string
			dst  *time.Time
		}{{"from", &p.From}, {"to", &p.To}} {
			t, err := parseTime(q.Get(bound.name))
			if err != nil {
				badRequest(w, bound.name+" must be a valid RFC3339 timestamp")
				return
			}
			if t != nil {
				*bound.dst = *t
			}
		}

		res, err := c.Search(r.Context(), p)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.Collection(w, searchResponse{Jobs: res.Jobs, Summary: res.Summary}, response.Page(res.Page, res.Limit, res.Total))
	}
}

type searchResponse struct {
	Jobs    []*models.Job         `json:"jobs"`
	Summary *models.StatusSummary `json:"summary"`
}

// NewListSourcesHandler returns an http.HandlerFunc for GET /api/v1/jobs/sources.
func NewListSourcesHandler(c JobCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := c.Sources(r.Context())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, sources)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{ref}.
func NewGetJobHandler(jobs JobResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		response.JSON(w, job)
	}
}

// NewChildrenHandler returns an http.HandlerFunc for GET /api/v1/jobs/{ref}/children.
func NewChildrenHandler(jobs ChildLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		children, err := jobs.Children(r.Context(), job.ID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, children)
	}
}

// NewFinishJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{ref}/finish.
// The body must state the requested outcome as {"success": bool}.
func NewFinishJobHandler(jobs JobResolver, lc JobLifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}

		var req struct {
			Success *bool `json:"success"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Success == nil {
			badRequest(w, "success is required")
			return
		}

		result, err := lc.Finish(r.Context(), job.ID, *req.Success)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewForceFailHandler returns an http.HandlerFunc for POST /api/v1/jobs/{ref}/force-fail.
func NewForceFailHandler(jobs JobResolver, lc JobLifecycle) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		failed, err := lc.ForceFail(r.Context(), job.ID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, failed)
	}
}
