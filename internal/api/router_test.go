package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/jobtracker/internal/api"
	mw "github.com/kiranshivaraju/jobtracker/internal/api/middleware"
	"github.com/stretchr/testify/assert"
)

// --- stub cache ---

type stubCache struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *stubCache) Ping(_ context.Context) error                                      { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int64{}
	}
	c.counts[key]++
	return c.counts[key], nil
}

// --- router tests ---

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newTestRouter(limit int) (http.Handler, *stubCache) {
	c := &stubCache{}
	return api.NewRouter(api.Dependencies{
		RateLimit:     mw.NewRateLimit(c, limit),
		HealthHandler: okHandler,
		GetJob:        okHandler,
		ListSources:   okHandler,
	}), c
}

func TestRouter_HealthEndpoint_NotRateLimited(t *testing.T) {
	router, _ := newTestRouter(1)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRouter_UnwiredEndpoints_Return501(t *testing.T) {
	router, _ := newTestRouter(100)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs"},
		{"PUT", "/api/v1/headers/nightly"},
		{"POST", "/api/v1/jobs/1/finish"},
		{"GET", "/api/v1/jobs/1/logs/stream"},
		{"GET", "/api/v1/jobs/1/progress/all"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(ep.method, ep.path, nil))
			assert.Equal(t, http.StatusNotImplemented, w.Code)
		})
	}
}

func TestRouter_SourcesIsNotAJobRef(t *testing.T) {
	var hit string
	router := api.NewRouter(api.Dependencies{
		GetJob:      func(w http.ResponseWriter, _ *http.Request) { hit = "job" },
		ListSources: func(w http.ResponseWriter, _ *http.Request) { hit = "sources" },
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/jobs/sources", nil))
	assert.Equal(t, "sources", hit)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/jobs/nightly-run", nil))
	assert.Equal(t, "job", hit)
}

func TestRouter_RateLimitPerForwardedIP(t *testing.T) {
	router, c := newTestRouter(2)

	send := func(ip string) int {
		req := httptest.NewRequest("GET", "/api/v1/jobs/1", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, send("203.0.113.7"))
	assert.Equal(t, http.StatusOK, send("198.51.100.1"))
	assert.Equal(t, int64(3), c.counts["ratelimit:203.0.113.7"])
}

func TestRouter_EchoesRequestID(t *testing.T) {
	router, _ := newTestRouter(10)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}
