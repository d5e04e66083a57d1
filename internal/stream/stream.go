// Package stream serves live log tails over WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/jobtracker/internal/api/handler"
	"github.com/kiranshivaraju/jobtracker/internal/api/response"
	"github.com/kiranshivaraju/jobtracker/internal/tracker"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const (
	FrameLog      = "log"
	FrameFinished = "finished"
	FrameError    = "error"

	writeWait = 10 * time.Second
)

// Frame is one WebSocket message.
type Frame struct {
	Type  string           `json:"type"`
	Entry *models.LogEntry `json:"entry,omitempty"`
	Job   *models.Job      `json:"job,omitempty"`
	Error string           `json:"error,omitempty"`
}

type Jobs interface {
	ResolveToken(ctx context.Context, token string) (*models.Job, error)
	Get(ctx context.Context, id int64) (*models.Job, error)
}

type Tailer interface {
	Tail(ctx context.Context, p tracker.TailParams) ([]*models.LogEntry, error)
}

// Handler upgrades GET /api/v1/jobs/{ref}/logs/stream and pushes new log
// entries until the job finishes or the client goes away.
type Handler struct {
	jobs     Jobs
	logs     Tailer
	poll     time.Duration
	upgrader websocket.Upgrader
}

func NewHandler(jobs Jobs, logs Tailer, allowedOrigins []string, poll time.Duration) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	if poll <= 0 {
		poll = time.Second
	}

	return &Handler{
		jobs: jobs,
		logs: logs,
		poll: poll,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser clients (CLI, curl)
				}
				if allowed[origin] {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				host := u.Hostname()
				return host == "localhost" || host == "127.0.0.1" || host == "::1"
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.ResolveToken(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	q := r.URL.Query()
	var since *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			response.Invalid(w, "since must be a valid RFC3339 timestamp")
			return
		}
		t = t.UTC()
		since = &t
	}
	descendants := true
	if raw := q.Get("descendants"); raw != "" {
		if descendants, err = strconv.ParseBool(raw); err != nil {
			response.Invalid(w, "descendants must be a boolean")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err, "job_id", job.ID)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go readPump(conn, cancel)

	s := &session{conn: conn, jobs: h.jobs, logs: h.logs, poll: h.poll}
	if err := s.run(ctx, job.ID, since, descendants); err != nil {
		slog.Debug("log stream ended", "job_id", job.ID, "error", err)
	}
}

// readPump discards client messages and cancels the session when the
// connection closes.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type session struct {
	conn *websocket.Conn
	jobs Jobs
	logs Tailer
	poll time.Duration
}

// run polls the tail with the last delivered event time as cursor. The job
// state is read before each tail, so once a finished job yields an empty
// tail every entry written before the finish has been delivered.
func (s *session) run(ctx context.Context, jobID int64, since *time.Time, descendants bool) error {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		job, err := s.jobs.Get(ctx, jobID)
		if err != nil {
			return s.fail(err)
		}
		entries, err := s.logs.Tail(ctx, tracker.TailParams{JobID: jobID, Since: since, Descendants: descendants})
		if err != nil {
			return s.fail(err)
		}
		for _, e := range entries {
			if err := s.write(Frame{Type: FrameLog, Entry: e}); err != nil {
				return err
			}
		}
		since = tracker.NextCursor(entries, since)

		if job.Finished && len(entries) == 0 {
			if err := s.write(Frame{Type: FrameFinished, Job: job}); err != nil {
				return err
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			return s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *session) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) fail(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.write(Frame{Type: FrameError, Error: err.Error()})
	return err
}
