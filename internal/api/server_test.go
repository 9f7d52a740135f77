package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Ping(context.Context) error { return s.err }

func newTestServer(deps Dependencies) *Server {
	cfg := DefaultServerConfig()
	return NewServer(cfg, deps)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(Dependencies{})
	rec := doRequest(s, http.MethodGet, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestReadyEndpoint(t *testing.T) {
	s := newTestServer(Dependencies{DB: &stubPinger{}})
	rec := doRequest(s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(Dependencies{DB: &stubPinger{err: errors.New("connection refused")}})
	rec = doRequest(s, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unavailable")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(Dependencies{})
	rec := doRequest(s, http.MethodGet, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ccopt_")
}

func TestRoutesRegistered(t *testing.T) {
	s := newTestServer(Dependencies{
		Registry:    &stubRegistry{},
		Metrics:     &stubMetricReader{},
		Actions:     &stubActionRecorder{},
		Recommender: &stubRecommender{},
		Trends:      trendStub(),
		Aggregator:  &stubAggregator{},
	})

	paths := map[string]bool{}
	for _, r := range s.Echo().Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /instances",
		"GET /instances/:id",
		"GET /instances/:id/metrics",
		"GET /recommendations",
		"GET /recommendations/:id/llm_explanation",
		"GET /cost_trends/total",
		"GET /cost_trends/total/chart",
		"GET /analytics/summary",
		"GET /actions",
		"POST /actions",
		"POST /actions/:id/verify",
		"GET /ml/metadata",
	} {
		assert.True(t, paths[want], "route %s not registered", want)
	}
}
