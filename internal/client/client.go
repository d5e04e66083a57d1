// Package client is the HTTP client for the jobtracker API used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobtracker/pkg/models"
)

// Sentinel errors for API client failures.
var (
	ErrUnreachable = errors.New("jobtracker unreachable")
	ErrTimeout     = errors.New("jobtracker request timeout")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAPI         = errors.New("jobtracker api error")
)

// TailPage is one page of a log tail. Cursor is passed back as since.
type TailPage struct {
	Entries []*models.LogEntry `json:"entries"`
	Cursor  string             `json:"cursor"`
}

// Progress is a metric with its derived percentage.
type Progress struct {
	models.ProgressMetric
	Percentage *float64 `json:"percentage"`
}

// HTTPClient talks to the jobtracker API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

func (c *HTTPClient) GetJob(ctx context.Context, ref string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, jobPath(ref, ""), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *HTTPClient) Children(ctx context.Context, ref string) ([]*models.Job, error) {
	var jobs []*models.Job
	if err := c.do(ctx, http.MethodGet, jobPath(ref, "/children"), nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Tail fetches entries after since. An empty since fetches from the start.
func (c *HTTPClient) Tail(ctx context.Context, ref, since string, descendants bool) (*TailPage, error) {
	q := url.Values{"descendants": {strconv.FormatBool(descendants)}}
	if since != "" {
		q.Set("since", since)
	}
	var page TailPage
	if err := c.do(ctx, http.MethodGet, jobPath(ref, "/logs")+"?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if page.Cursor == "" {
		page.Cursor = since
	}
	return &page, nil
}

// Progress returns the named metric, or the latest one when progressID is empty.
func (c *HTTPClient) Progress(ctx context.Context, ref, progressID string) (*Progress, error) {
	path := jobPath(ref, "/progress")
	if progressID != "" {
		path += "?" + url.Values{"progress_id": {progressID}}.Encode()
	}
	var p Progress
	if err := c.do(ctx, http.MethodGet, path, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) AllProgress(ctx context.Context, ref string) ([]*Progress, error) {
	var out []*Progress
	if err := c.do(ctx, http.MethodGet, jobPath(ref, "/progress/all"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) Finish(ctx context.Context, ref string, success bool) (*models.FinishResult, error) {
	var res models.FinishResult
	body := map[string]bool{"success": success}
	if err := c.do(ctx, http.MethodPost, jobPath(ref, "/finish"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) ForceFail(ctx context.Context, ref string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, jobPath(ref, "/force-fail"), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobPath(ref, suffix string) string {
	return "/api/v1/jobs/" + url.PathEscape(ref) + suffix
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: status %d", ErrAPI, resp.StatusCode)
		}
		return fmt.Errorf("decoding response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			msg = env.Error.Code + ": " + env.Error.Message
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, msg)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrConflict, msg)
		default:
			return fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
