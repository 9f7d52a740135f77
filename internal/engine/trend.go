package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Trend window bounds.
const (
	MinTrendLookbackDays     = 1
	MaxTrendLookbackDays     = 90
	DefaultTrendLookbackDays = 30
)

// TrendSimulator projects baseline vs optimized daily cost over a
// historical window. The optimized series downsizes exactly the
// instances whose current 7-day aggregate satisfies the decision rule,
// independent of the requested trend window.
//
// The daily totals carry bounded pseudo-random smoothing (±3% jitter,
// -2% weekend dampening, ~5% growth ramp oldest to newest). That
// variance is synthetic presentation smoothing, not derived from real
// cost data; API consumers label the series as illustrative.
type TrendSimulator struct {
	instances  InstanceLister
	aggregator *Aggregator
	logger     *slog.Logger
	now        func() time.Time
	newRand    func() *rand.Rand
}

// NewTrendSimulator creates a simulator over the given registry and
// aggregator.
func NewTrendSimulator(instances InstanceLister, aggregator *Aggregator, logger *slog.Logger) *TrendSimulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrendSimulator{
		instances:  instances,
		aggregator: aggregator,
		logger:     logger,
		now:        time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// WithClock overrides the simulator's clock.
func (s *TrendSimulator) WithClock(now func() time.Time) *TrendSimulator {
	s.now = now
	return s
}

// WithRandSource overrides the jitter source. Tests pin a seed here to
// make the smoothing deterministic.
func (s *TrendSimulator) WithRandSource(newRand func() *rand.Rand) *TrendSimulator {
	s.newRand = newRand
	return s
}

// TotalCostTrend produces one (baseline, optimized) cost pair per day,
// oldest first. lookbackDays is clamped to [1, 90].
func (s *TrendSimulator) TotalCostTrend(ctx context.Context, lookbackDays int) (TrendSeries, error) {
	if lookbackDays < MinTrendLookbackDays {
		lookbackDays = MinTrendLookbackDays
	}
	if lookbackDays > MaxTrendLookbackDays {
		lookbackDays = MaxTrendLookbackDays
	}

	instances, err := s.instances.ListInstanceInfo(ctx)
	if err != nil {
		return TrendSeries{}, fmt.Errorf("list instances: %w", err)
	}
	if len(instances) == 0 {
		return TrendSeries{
			Days:               []string{},
			BaselineDailyCost:  []float64{},
			OptimizedDailyCost: []float64{},
		}, nil
	}

	// Current aggregates decide which instances the optimized series
	// downsizes; the 7-day lookback here is fixed policy, decoupled
	// from the requested trend window.
	_, _, meta, err := s.aggregator.ComputeFeatures(ctx, DefaultLookbackDays, Filters{})
	if err != nil {
		return TrendSeries{}, err
	}
	downsized := make(map[int64]bool, len(meta))
	for _, m := range meta {
		downsized[m.InstanceID] = ShouldDownsize(m.AvgCPU, m.AvgMem)
	}

	rng := s.newRand()
	today := s.now().UTC().Truncate(24 * time.Hour)

	// Instances without a recorded creation date get one assigned
	// inside the window so the growth ramp stays plausible.
	created := make(map[int64]time.Time, len(instances))
	for _, inst := range instances {
		if inst.CreatedAt != nil {
			created[inst.ID] = *inst.CreatedAt
		} else {
			created[inst.ID] = today.AddDate(0, 0, -rng.Intn(lookbackDays+1))
		}
	}

	series := TrendSeries{
		Days:               make([]string, 0, lookbackDays),
		BaselineDailyCost:  make([]float64, 0, lookbackDays),
		OptimizedDailyCost: make([]float64, 0, lookbackDays),
	}

	for offset := lookbackDays - 1; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset)
		series.Days = append(series.Days, day.Format("2006-01-02"))

		var baseline, optimized float64
		for _, inst := range instances {
			if created[inst.ID].Truncate(24 * time.Hour).After(day) {
				continue // instance did not exist yet on this day
			}
			if inst.HourlyCost == nil || *inst.HourlyCost <= 0 {
				continue
			}
			daily := *inst.HourlyCost * 24
			baseline += daily
			if downsized[inst.ID] {
				optimized += daily * DownsizeCostFactor
			} else {
				optimized += daily
			}
		}

		factor := smoothingFactor(rng, day, offset, lookbackDays)
		series.BaselineDailyCost = append(series.BaselineDailyCost, round2(baseline*factor))
		series.OptimizedDailyCost = append(series.OptimizedDailyCost, round2(optimized*factor))
	}

	return series, nil
}

// smoothingFactor combines the ±3% jitter, weekend dampening and growth
// ramp for one day. offset counts back from today: lookbackDays-1 is
// the oldest day.
func smoothingFactor(rng *rand.Rand, day time.Time, offset, lookbackDays int) float64 {
	factor := 0.97 + rng.Float64()*0.06

	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		factor *= 0.98
	}

	// 0.975 at the oldest day ramping to ~1.025 at the newest.
	growth := 0.975 + float64(lookbackDays-1-offset)/float64(lookbackDays)*0.05
	return factor * growth
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
