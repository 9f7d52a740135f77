package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"
)

type stubScorer struct {
	version string
	probs   []float64
	err     error
}

func (s *stubScorer) ModelVersion() string { return s.version }

func (s *stubScorer) Score(_ context.Context, m FeatureMatrix) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.probs != nil {
		return s.probs, nil
	}
	// Deterministic fallback so idempotence checks hold.
	probs := make([]float64, m.Len())
	for i := range probs {
		probs[i] = 0.5
	}
	return probs, nil
}

type stubAttributor struct {
	reasons [][]string
	err     error
	calls   int
	rows    []int
}

func (a *stubAttributor) TopAttributions(_ context.Context, _ FeatureMatrix, rows []int, _ int) ([][]string, error) {
	a.calls++
	a.rows = rows
	if a.err != nil {
		return nil, a.err
	}
	if a.reasons != nil {
		return a.reasons, nil
	}
	out := make([][]string, len(rows))
	for i := range out {
		out[i] = []string{fmt.Sprintf("attribution-%d", rows[i])}
	}
	return out, nil
}

// recommenderFixture builds a recommender over three instances: two
// downsize candidates at different costs plus one busy keeper.
func recommenderFixture(t *testing.T, scorer Scorer, attributor Attributor) *Recommender {
	t.Helper()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	src := &stubSource{}
	add := func(id int64, itype, env string, cost, cpu, mem float64) {
		s := sampleAt(id, itype, env, now.Add(-time.Hour), cpu, mem)
		s.CloudInstanceID = fmt.Sprintf("i-%04d", id)
		s.HourlyCost = f64(cost)
		src.samples = append(src.samples, s)
	}
	add(1, "m5.large", "dev", 0.10, 10, 10)   // downsize, savings 28.80
	add(2, "c6i.xlarge", "dev", 0.50, 12, 15) // downsize, savings 144.00
	add(3, "m5.large", "prod", 2.00, 80, 70)  // keep, savings 0

	agg := NewAggregator(src, nil).WithClock(fixedClock(now))
	return NewRecommender(agg, scorer, attributor, NewCounters(), nil)
}

func TestListSortedByProjectedSavings(t *testing.T) {
	r := recommenderFixture(t, &stubScorer{version: "v0.1"}, nil)

	recs, err := r.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(recs))
	}

	for i := 1; i < len(recs); i++ {
		if recs[i].ProjectedMonthlySavings > recs[i-1].ProjectedMonthlySavings {
			t.Errorf("not sorted descending at index %d: %v then %v",
				i, recs[i-1].ProjectedMonthlySavings, recs[i].ProjectedMonthlySavings)
		}
	}
	if recs[0].InstanceID != 2 || recs[0].ProjectedMonthlySavings != 144.0 {
		t.Errorf("top entry = instance %d with savings %v, want instance 2 with 144.00",
			recs[0].InstanceID, recs[0].ProjectedMonthlySavings)
	}
	if recs[2].Action != ActionKeep || recs[2].ProjectedMonthlySavings != 0 {
		t.Errorf("keeper must rank last with zero savings, got %+v", recs[2])
	}
	if recs[0].ModelVersion != "v0.1" {
		t.Errorf("model version = %q, want v0.1", recs[0].ModelVersion)
	}
}

func TestListMinSavingsFilter(t *testing.T) {
	r := recommenderFixture(t, &stubScorer{version: "v0.1"}, nil)

	recs, err := r.List(context.Background(), ListOptions{MinSavings: 100})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].InstanceID != 2 {
		t.Fatalf("min_savings=100 must keep only instance 2, got %+v", recs)
	}

	// Every removed entry projected less than the threshold.
	all, _ := r.List(context.Background(), ListOptions{})
	for _, rec := range all {
		if rec.ProjectedMonthlySavings >= 100 {
			found := false
			for _, kept := range recs {
				if kept.InstanceID == rec.InstanceID {
					found = true
				}
			}
			if !found {
				t.Errorf("instance %d with savings %v was wrongly filtered",
					rec.InstanceID, rec.ProjectedMonthlySavings)
			}
		}
	}
}

func TestListIdempotent(t *testing.T) {
	r := recommenderFixture(t, &stubScorer{version: "v0.1"}, nil)

	first, err := r.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("identical inputs over unchanged data must yield identical output")
	}
}

func TestListEmptyWhenNoInstancesMatch(t *testing.T) {
	agg := NewAggregator(&stubSource{}, nil)
	r := NewRecommender(agg, &stubScorer{}, nil, NewCounters(), nil)

	recs, err := r.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("empty instance set must not be an error: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("want empty non-nil slice, got %v", recs)
	}
}

func TestListModelUnavailable(t *testing.T) {
	r := recommenderFixture(t, &stubScorer{err: ErrModelUnavailable}, nil)

	_, err := r.List(context.Background(), ListOptions{})
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("want ErrModelUnavailable, got %v", err)
	}
}

func TestListAttributionOnlyForDownsized(t *testing.T) {
	attr := &stubAttributor{}
	r := recommenderFixture(t, &stubScorer{version: "v0.1"}, attr)

	recs, err := r.List(context.Background(), ListOptions{IncludeAttribution: true})
	if err != nil {
		t.Fatal(err)
	}
	if attr.calls != 1 {
		t.Fatalf("attributor called %d times, want 1", attr.calls)
	}
	if len(attr.rows) != 2 {
		t.Fatalf("attribution requested for %d rows, want the 2 downsize rows", len(attr.rows))
	}
	for _, rec := range recs {
		switch rec.Action {
		case ActionDownsize:
			if len(rec.FeatureAttribution) == 0 {
				t.Errorf("instance %d: downsize entry missing attribution", rec.InstanceID)
			}
		case ActionKeep:
			if len(rec.FeatureAttribution) != 0 {
				t.Errorf("instance %d: keep entry must not carry attribution", rec.InstanceID)
			}
		}
	}
}

func TestListAttributionFailureDegrades(t *testing.T) {
	attr := &stubAttributor{err: errors.New("explainer exploded")}
	r := recommenderFixture(t, &stubScorer{version: "v0.1"}, attr)

	recs, err := r.List(context.Background(), ListOptions{IncludeAttribution: true})
	if err != nil {
		t.Fatalf("attribution failure must not fail the listing: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d recommendations, want 3", len(recs))
	}
	for _, rec := range recs {
		if len(rec.FeatureAttribution) != 0 {
			t.Errorf("attribution must be omitted on failure, got %v", rec.FeatureAttribution)
		}
	}
}

func TestListCountsRequests(t *testing.T) {
	counters := NewCounters()
	agg := NewAggregator(&stubSource{}, nil)
	r := NewRecommender(agg, &stubScorer{}, nil, counters, nil)

	for i := 0; i < 3; i++ {
		if _, err := r.List(context.Background(), ListOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if got := counters.RecommendationRequests(); got != 3 {
		t.Errorf("request counter = %d, want 3", got)
	}
}

func TestEndToEndScenario(t *testing.T) {
	// One dev instance at 0.10/hr with 48 hourly samples pinned at
	// cpu=10, mem=10: downsize with low-cpu, low-mem and non-prod
	// reasons and 28.80 projected monthly savings.
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	src := &stubSource{}
	for i := 0; i < 48; i++ {
		s := sampleAt(1, "m5.large", "dev", now.Add(-time.Duration(i)*time.Hour), 10.0, 10.0)
		s.HourlyCost = f64(0.10)
		src.samples = append(src.samples, s)
	}

	agg := NewAggregator(src, nil).WithClock(fixedClock(now))
	r := NewRecommender(agg, &stubScorer{version: "v0.1", probs: []float64{0.91}}, nil, NewCounters(), nil)

	recs, err := r.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}

	rec := recs[0]
	if rec.Action != ActionDownsize {
		t.Errorf("action = %s, want downsize", rec.Action)
	}
	if math.Abs(rec.ProjectedMonthlySavings-28.80) > 1e-9 {
		t.Errorf("savings = %v, want 28.80", rec.ProjectedMonthlySavings)
	}
	if rec.ConfidenceDownsize != 0.91 {
		t.Errorf("confidence = %v, want 0.91", rec.ConfidenceDownsize)
	}
	wantReasons := []string{
		"Average CPU utilization is low (10.0%)",
		"Average memory utilization is low (10.0%)",
		"Instance is in a non-production environment (dev)",
	}
	if !reflect.DeepEqual(rec.Reasons, wantReasons) {
		t.Errorf("reasons = %v, want %v", rec.Reasons, wantReasons)
	}
}
