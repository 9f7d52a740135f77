package engine

import (
	"context"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

type stubLister struct {
	instances []InstanceInfo
	err       error
}

func (s *stubLister) ListInstanceInfo(_ context.Context) ([]InstanceInfo, error) {
	return s.instances, s.err
}

func seededRand(seed int64) func() *rand.Rand {
	return func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
}

func trendFixture(now time.Time, instances []InstanceInfo, samples []JoinedSample) *TrendSimulator {
	agg := NewAggregator(&stubSource{samples: samples}, nil).WithClock(fixedClock(now))
	return NewTrendSimulator(&stubLister{instances: instances}, agg, nil).
		WithClock(fixedClock(now)).
		WithRandSource(seededRand(42))
}

func TestTotalCostTrendSingleDay(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -10)
	sim := trendFixture(now,
		[]InstanceInfo{{ID: 1, HourlyCost: f64(1.0), CreatedAt: &created}},
		[]JoinedSample{sampleAt(1, "m5.large", "dev", now.Add(-time.Hour), 50, 50)},
	)

	series, err := sim.TotalCostTrend(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Days) != 1 || len(series.BaselineDailyCost) != 1 || len(series.OptimizedDailyCost) != 1 {
		t.Fatalf("lookback_days=1 must yield exactly one day, got %d", len(series.Days))
	}
	if series.Days[0] != "2026-08-30" {
		t.Errorf("day = %s, want 2026-08-30", series.Days[0])
	}
	// Busy instance: optimized equals baseline.
	if series.BaselineDailyCost[0] != series.OptimizedDailyCost[0] {
		t.Errorf("keep instance must cost the same in both series: %v vs %v",
			series.BaselineDailyCost[0], series.OptimizedDailyCost[0])
	}
}

func TestTotalCostTrendExcludesInstancesCreatedLater(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -30)
	sim := trendFixture(now,
		[]InstanceInfo{
			{ID: 1, HourlyCost: f64(1.0), CreatedAt: &old},
			{ID: 2, HourlyCost: f64(1.0), CreatedAt: &now}, // created today
		},
		nil,
	)

	series, err := sim.TotalCostTrend(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Days) != 3 {
		t.Fatalf("got %d days, want 3", len(series.Days))
	}
	// The newest day includes both instances, older days only one; even
	// with smoothing the newest day must cost clearly more.
	if series.BaselineDailyCost[2] < series.BaselineDailyCost[0]*1.5 {
		t.Errorf("instance created today must only contribute to the last day: %v", series.BaselineDailyCost)
	}
}

func TestTotalCostTrendDownsizedInstancesDiscounted(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -30)
	sim := trendFixture(now,
		[]InstanceInfo{{ID: 1, HourlyCost: f64(1.0), CreatedAt: &created}},
		[]JoinedSample{sampleAt(1, "m5.large", "dev", now.Add(-time.Hour), 5, 5)},
	)

	series, err := sim.TotalCostTrend(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range series.Days {
		base := series.BaselineDailyCost[i]
		opt := series.OptimizedDailyCost[i]
		// Both totals share the same smoothing factor per day, so the
		// discount ratio survives the jitter.
		if base == 0 {
			t.Fatalf("day %d: zero baseline", i)
		}
		ratio := opt / base
		if ratio < DownsizeCostFactor-0.01 || ratio > DownsizeCostFactor+0.01 {
			t.Errorf("day %d: optimized/baseline = %v, want ~%v", i, ratio, DownsizeCostFactor)
		}
	}
}

func TestTotalCostTrendDeterministicWithFixedSeed(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -30)
	instances := []InstanceInfo{{ID: 1, HourlyCost: f64(0.5), CreatedAt: &created}}

	a, err := trendFixture(now, instances, nil).TotalCostTrend(context.Background(), 14)
	if err != nil {
		t.Fatal(err)
	}
	b, err := trendFixture(now, instances, nil).TotalCostTrend(context.Background(), 14)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("fixed seed must reproduce the series exactly")
	}
}

func TestTotalCostTrendClampsLookback(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -5)
	sim := trendFixture(now, []InstanceInfo{{ID: 1, HourlyCost: f64(1.0), CreatedAt: &created}}, nil)

	series, err := sim.TotalCostTrend(context.Background(), 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Days) != MaxTrendLookbackDays {
		t.Errorf("lookback clamped to %d, got %d days", MaxTrendLookbackDays, len(series.Days))
	}

	series, err = sim.TotalCostTrend(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Days) != MinTrendLookbackDays {
		t.Errorf("lookback clamped to %d, got %d days", MinTrendLookbackDays, len(series.Days))
	}
}

func TestTotalCostTrendEmptyRegistry(t *testing.T) {
	sim := NewTrendSimulator(&stubLister{}, NewAggregator(&stubSource{}, nil), nil)

	series, err := sim.TotalCostTrend(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(series.Days) != 0 {
		t.Errorf("empty registry must yield an empty series, got %d days", len(series.Days))
	}
}

func TestTotalCostTrendRoundsToCents(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -30)
	sim := trendFixture(now, []InstanceInfo{{ID: 1, HourlyCost: f64(0.0973), CreatedAt: &created}}, nil)

	series, err := sim.TotalCostTrend(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range append(append([]float64{}, series.BaselineDailyCost...), series.OptimizedDailyCost...) {
		if v != round2(v) {
			t.Errorf("value %v not rounded to 2 decimal places", v)
		}
	}
}
