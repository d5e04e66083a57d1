package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/jobtracker/internal/api/response"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR carrying the
// request id, and logs it with the route and job reference being served.
// Nothing is written if the handler had already started its response or
// taken over the connection. http.ErrAbortHandler is passed through.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &startedWriter{ResponseWriter: w}
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			id, _ := GetRequestID(r)
			attrs := []any{
				"error", rec,
				"stack", string(debug.Stack()),
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, "route", pattern)
				}
				if ref := rctx.URLParam("ref"); ref != "" {
					attrs = append(attrs, "job_ref", ref)
				}
			}
			slog.Error("panic recovered", attrs...)

			if tw.started {
				return
			}
			var details map[string]string
			if id != "" {
				details = map[string]string{"request_id": id}
			}
			response.Error(w, response.CodeInternal, "An unexpected error occurred", details)
		}()
		next.ServeHTTP(tw, r)
	})
}

// startedWriter notes whether the response has begun.
type startedWriter struct {
	http.ResponseWriter
	started bool
}

func (s *startedWriter) WriteHeader(code int) {
	s.started = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *startedWriter) Write(b []byte) (int, error) {
	s.started = true
	return s.ResponseWriter.Write(b)
}

func (s *startedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.started = true
	return h.Hijack()
}
