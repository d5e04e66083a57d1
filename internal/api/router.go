package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/jobtracker/internal/api/middleware"
	"github.com/kiranshivaraju/jobtracker/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	EnsureHeader http.HandlerFunc
	ListHeaders  http.HandlerFunc
	RunsSummary  http.HandlerFunc

	StartJob    http.HandlerFunc
	SearchJobs  http.HandlerFunc
	ListSources http.HandlerFunc
	GetJob      http.HandlerFunc
	Children    http.HandlerFunc
	FinishJob   http.HandlerFunc
	ForceFail   http.HandlerFunc

	AppendLog      http.HandlerFunc
	AppendLogBatch http.HandlerFunc
	TailLogs       http.HandlerFunc
	StreamLogs     http.HandlerFunc

	UpsertProgress http.HandlerFunc
	LatestProgress http.HandlerFunc
	ListProgress   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/headers", orNotImplemented(deps.ListHeaders))
		r.Put("/api/v1/headers/{name}", orNotImplemented(deps.EnsureHeader))
		r.Get("/api/v1/headers/{slug}/runs-summary", orNotImplemented(deps.RunsSummary))

		r.Post("/api/v1/jobs", orNotImplemented(deps.StartJob))
		r.Get("/api/v1/jobs", orNotImplemented(deps.SearchJobs))
		r.Get("/api/v1/jobs/sources", orNotImplemented(deps.ListSources))

		r.Route("/api/v1/jobs/{ref}", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.GetJob))
			r.Get("/children", orNotImplemented(deps.Children))
			r.Post("/finish", orNotImplemented(deps.FinishJob))
			r.Post("/force-fail", orNotImplemented(deps.ForceFail))

			r.Post("/logs", orNotImplemented(deps.AppendLog))
			r.Post("/logs/batch", orNotImplemented(deps.AppendLogBatch))
			r.Get("/logs", orNotImplemented(deps.TailLogs))
			r.Get("/logs/stream", orNotImplemented(deps.StreamLogs))

			r.Post("/progress", orNotImplemented(deps.UpsertProgress))
			r.Get("/progress", orNotImplemented(deps.LatestProgress))
			r.Get("/progress/all", orNotImplemented(deps.ListProgress))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
