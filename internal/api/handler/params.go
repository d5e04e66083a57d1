package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

const maxBodyBytes = 1 << 20

// resolveJob loads the job named by the {ref} path parameter, writing the
// error response itself when that fails.
func resolveJob(w http.ResponseWriter, r *http.Request, jobs JobResolver) (*models.Job, bool) {
	job, err := jobs.ResolveToken(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	return job, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		badRequest(w, "Invalid JSON body")
		return false
	}
	return true
}

// jobRef is a job reference in a request body: either a number or a string.
type jobRef string

func (j *jobRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*j = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*j = jobRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("job reference must be a number or string")
	}
	*j = jobRef(n.String())
	return nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func parseBool(raw string, def bool) (bool, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseBool(raw)
}

func parseInt(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// parseArgs reads a JSON object of top-level argument filters. Non-string
// values compare against their JSON text.
func parseArgs(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("args must be a JSON object: %w", err)
	}
	out := make(map[string]string, len(obj))
	for key, value := range obj {
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			out[key] = s
			continue
		}
		out[key] = string(bytes.TrimSpace(value))
	}
	return out, nil
}

func formatCursor(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
