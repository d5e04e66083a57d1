package handler

import (
	"net/http"

	"github.com/kiranshivaraju/jobtracker/internal/api/response"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// progressView adds the derived percentage to a metric.
type progressView struct {
	*models.ProgressMetric
	Percentage *float64 `json:"percentage,omitempty"`
}

func viewProgress(m *models.ProgressMetric) progressView {
	return progressView{ProgressMetric: m, Percentage: m.Percentage()}
}

// NewUpsertProgressHandler returns an http.HandlerFunc for POST /api/v1/jobs/{ref}/progress.
func NewUpsertProgressHandler(jobs JobResolver, progress ProgressTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		var req struct {
			ProgressID  string   `json:"progress_id"`
			Title       string   `json:"title"`
			Description string   `json:"description"`
			Value       *float64 `json:"value"`
			Max         *float64 `json:"max"`
			Duration    *float64 `json:"duration"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Value == nil {
			badRequest(w, "value is required")
			return
		}

		m, err := progress.Upsert(r.Context(), tracker.UpsertProgressParams{
			JobID:       job.ID,
			ProgressID:  req.ProgressID,
			Title:       req.Title,
			Description: req.Description,
			Value:       *req.Value,
			Max:         req.Max,
			Duration:    req.Duration,
		})
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, viewProgress(m))
	}
}

// NewLatestProgressHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{ref}/progress. Without progress_id the most recently
// updated metric is returned.
func NewLatestProgressHandler(jobs JobResolver, progress ProgressTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		m, err := progress.Latest(r.Context(), job.ID, r.URL.Query().Get("progress_id"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, viewProgress(m))
	}
}

// NewListProgressHandler returns an http.HandlerFunc for GET /api/v1/jobs/{ref}/progress/all.
func NewListProgressHandler(jobs JobResolver, progress ProgressTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := resolveJob(w, r, jobs)
		if !ok {
			return
		}
		metrics, err := progress.List(r.Context(), job.ID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		views := make([]progressView, 0, len(metrics))
		for _, m := range metrics {
			views = append(views, viewProgress(m))
		}
		response.JSON(w, views)
	}
}
