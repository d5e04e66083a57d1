package handler

import (
	"net/http"

	"github.com/kiranshivaraju/jobtracker/internal/api/response"
)

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health. A
// degraded cache is reported but does not fail the check; the tracker runs
// without it.
func NewHealthHandler(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if cache == nil {
			checks["cache"] = "disabled"
		} else if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] != "ok" {
			response.Error(w, response.CodeDegraded,
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
