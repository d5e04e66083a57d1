package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/jobtracker/internal/api/response"
)

// NewEnsureHeaderHandler returns an http.HandlerFunc for PUT /api/v1/headers/{name}.
func NewEnsureHeaderHandler(reg HeaderRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, err := reg.EnsureHeader(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, h)
	}
}

// NewListHeadersHandler returns an http.HandlerFunc for GET /api/v1/headers.
func NewListHeadersHandler(c JobCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		headers, err := c.Headers(r.Context(), r.URL.Query().Get("search"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, headers)
	}
}

// NewRunsSummaryHandler returns an http.HandlerFunc for
// GET /api/v1/headers/{slug}/runs-summary.
func NewRunsSummaryHandler(c JobCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		interval, err := parseInt(q.Get("interval"), 1)
		if err != nil {
			badRequest(w, "interval must be an integer")
			return
		}
		args, err := parseArgs(q.Get("args"))
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		summary, err := c.RunsSummary(r.Context(), chi.URLParam(r, "slug"), q.Get("period"), interval, args)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		response.JSON(w, summary)
	}
}
