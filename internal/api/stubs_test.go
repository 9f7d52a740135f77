package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/model"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// newTestContext builds an echo context the way the server configures
// it, with the request validator installed.
func newTestContext(method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

type stubRecommender struct {
	recs []engine.Recommendation
	err  error
	opts engine.ListOptions
}

func (s *stubRecommender) List(_ context.Context, opts engine.ListOptions) ([]engine.Recommendation, error) {
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.recs, nil
}

type stubExplainer struct {
	explanation string
	err         error
	rec         engine.Recommendation
}

func (s *stubExplainer) ExplainRecommendation(_ context.Context, rec engine.Recommendation) (string, error) {
	s.rec = rec
	if s.err != nil {
		return "", s.err
	}
	return s.explanation, nil
}

type stubTrendSource struct {
	series   engine.TrendSeries
	err      error
	lookback int
}

func (s *stubTrendSource) TotalCostTrend(_ context.Context, lookbackDays int) (engine.TrendSeries, error) {
	s.lookback = lookbackDays
	if s.err != nil {
		return engine.TrendSeries{}, s.err
	}
	return s.series, nil
}

type stubRegistry struct {
	instances []store.Instance
	updates   map[int64]string
	listErr   error
}

func (s *stubRegistry) List(context.Context, engine.Filters) ([]store.Instance, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.instances, nil
}

func (s *stubRegistry) GetByID(_ context.Context, id int64) (*store.Instance, error) {
	for i := range s.instances {
		if s.instances[i].ID == id {
			return &s.instances[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubRegistry) UpdateInstanceType(_ context.Context, id int64, instanceType string) error {
	if s.updates == nil {
		s.updates = map[int64]string{}
	}
	s.updates[id] = instanceType
	return nil
}

type stubMetricReader struct {
	metrics []store.Metric
	since   time.Time
}

func (s *stubMetricReader) ListForInstance(_ context.Context, _ int64, since time.Time) ([]store.Metric, error) {
	s.since = since
	return s.metrics, nil
}

type stubActionRecorder struct {
	actions  []store.RightSizingAction
	created  *store.RightSizingAction
	outcomes []actionOutcome
}

type actionOutcome struct {
	id         int64
	status     string
	errMessage *string
	verifiedAt *time.Time
}

func (s *stubActionRecorder) Create(_ context.Context, action *store.RightSizingAction) error {
	action.ID = int64(len(s.actions) + 1)
	action.RequestedAt = time.Now().UTC()
	s.created = action
	s.actions = append(s.actions, *action)
	return nil
}

func (s *stubActionRecorder) GetByID(_ context.Context, id int64) (*store.RightSizingAction, error) {
	for i := range s.actions {
		if s.actions[i].ID == id {
			return &s.actions[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubActionRecorder) List(_ context.Context, instanceID int64) ([]store.RightSizingAction, error) {
	if instanceID == 0 {
		return s.actions, nil
	}
	out := []store.RightSizingAction{}
	for _, a := range s.actions {
		if a.InstanceID == instanceID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubActionRecorder) SetOutcome(_ context.Context, id int64, status string, errorMessage *string, verifiedAt *time.Time) error {
	s.outcomes = append(s.outcomes, actionOutcome{id: id, status: status, errMessage: errorMessage, verifiedAt: verifiedAt})
	return nil
}

type stubVerifier struct {
	liveType string
	err      error
	queried  []string
}

func (s *stubVerifier) CurrentInstanceType(_ context.Context, cloudInstanceID, _ string) (string, error) {
	s.queried = append(s.queried, cloudInstanceID)
	if s.err != nil {
		return "", s.err
	}
	return s.liveType, nil
}

type stubAggregator struct {
	meta []engine.InstanceMeta
	err  error
}

func (s *stubAggregator) ComputeFeatures(context.Context, int, engine.Filters) (engine.FeatureMatrix, []int, []engine.InstanceMeta, error) {
	if s.err != nil {
		return engine.FeatureMatrix{}, nil, nil, s.err
	}
	return engine.FeatureMatrix{}, nil, s.meta, nil
}

type stubModelSource struct {
	meta model.Metadata
}

func (s *stubModelSource) Meta() model.Metadata { return s.meta }

func strPtr(s string) *string { return &s }

func costPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func testInstance(id int64, cloudID, instanceType, env, region, hourlyCost string) store.Instance {
	return store.Instance{
		ID:              id,
		CloudInstanceID: cloudID,
		CloudProvider:   "aws",
		Region:          strPtr(region),
		InstanceType:    strPtr(instanceType),
		Environment:     strPtr(env),
		HourlyCost:      costPtr(hourlyCost),
	}
}
