package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/jobtracker/internal/api/response"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
)

// WriteError maps tracker errors onto the JSON error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		response.Error(w, response.CodeNotFound, err.Error(), nil)
	case errors.Is(err, tracker.ErrAlreadyFinished):
		response.Error(w, response.CodeAlreadyFinished, err.Error(), nil)
	case errors.Is(err, tracker.ErrConflict):
		response.Error(w, response.CodeConflict, err.Error(), nil)
	case errors.Is(err, tracker.ErrInvalidArgument):
		response.Invalid(w, err.Error())
	case errors.Is(err, tracker.ErrStoreUnavailable):
		slog.Warn("store unavailable", "error", err, "path", r.URL.Path)
		response.Error(w, response.CodeStoreUnavailable,
			"The job store is temporarily unavailable", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful can be written.
	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		response.Error(w, response.CodeInternal,
			"An unexpected error occurred", nil)
	}
}

func badRequest(w http.ResponseWriter, message string) {
	response.Invalid(w, message)
}
