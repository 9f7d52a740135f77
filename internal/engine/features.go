package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// DefaultLookbackDays is the trailing sample window used when a caller
// does not override it.
const DefaultLookbackDays = 7

// Base feature columns, in emission order. family_* columns follow,
// sorted by name.
var baseFeatureColumns = []string{
	"avg_cpu",
	"p95_cpu",
	"avg_mem",
	"p95_mem",
	"avg_net_in_mb",
	"avg_net_out_mb",
	"is_prod",
}

// Aggregator turns raw utilization samples into one feature row per
// instance.
type Aggregator struct {
	source SampleSource
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates an Aggregator reading from the given source.
func NewAggregator(source SampleSource, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the aggregator's clock. Tests use this to pin the
// lookback cutoff.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

type instanceAccumulator struct {
	meta InstanceMeta
	cpu  []float64
	mem  []float64
	// network means are computed over reported values only
	netInSum  float64
	netInN    int
	netOutSum float64
	netOutN   int
}

// ComputeFeatures loads all samples inside the lookback window, groups
// them per instance and returns the feature matrix, the rule-derived
// labels (0 = keep, 1 = downsize) and the per-row metadata.
//
// Instances with zero samples in the window are excluded entirely:
// absence of samples is not zero utilization. When nothing matches the
// filters the result is empty, never an error.
//
// The family_* one-hot columns cover only the families present in the
// currently selected instance set, so the column set varies between
// calls. Downstream scoring reindexes against the persisted training
// schema instead of trusting this shape.
func (a *Aggregator) ComputeFeatures(ctx context.Context, lookbackDays int, f Filters) (FeatureMatrix, []int, []InstanceMeta, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	cutoff := a.now().UTC().AddDate(0, 0, -lookbackDays)

	samples, err := a.source.JoinedSamplesSince(ctx, cutoff, f)
	if err != nil {
		return FeatureMatrix{}, nil, nil, fmt.Errorf("load samples: %w", err)
	}
	if len(samples) == 0 {
		return FeatureMatrix{}, []int{}, []InstanceMeta{}, nil
	}

	groups := make(map[int64]*instanceAccumulator)
	for _, s := range samples {
		acc, ok := groups[s.InstanceID]
		if !ok {
			acc = &instanceAccumulator{meta: InstanceMeta{
				InstanceID:      s.InstanceID,
				CloudInstanceID: s.CloudInstanceID,
				Environment:     s.Environment,
				Region:          s.Region,
				InstanceType:    s.InstanceType,
				HourlyCost:      s.HourlyCost,
			}}
			groups[s.InstanceID] = acc
		}
		if s.CPUPct != nil {
			acc.cpu = append(acc.cpu, *s.CPUPct)
		}
		if s.MemPct != nil {
			acc.mem = append(acc.mem, *s.MemPct)
		}
		if s.NetInBytes != nil {
			acc.netInSum += float64(*s.NetInBytes)
			acc.netInN++
		}
		if s.NetOutBytes != nil {
			acc.netOutSum += float64(*s.NetOutBytes)
			acc.netOutN++
		}
	}

	ids := make([]int64, 0, len(groups))
	familySet := make(map[string]struct{})
	for id, acc := range groups {
		ids = append(ids, id)
		familySet[FamilyLabel(acc.meta.InstanceType)] = struct{}{}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	families := make([]string, 0, len(familySet))
	for fam := range familySet {
		families = append(families, fam)
	}
	sort.Strings(families)

	columns := append([]string{}, baseFeatureColumns...)
	for _, fam := range families {
		columns = append(columns, "family_"+fam)
	}

	matrix := FeatureMatrix{Columns: columns, Rows: make([][]float64, 0, len(ids))}
	labels := make([]int, 0, len(ids))
	meta := make([]InstanceMeta, 0, len(ids))

	for _, id := range ids {
		acc := groups[id]

		avgCPU := mean(acc.cpu)
		avgMem := mean(acc.mem)
		row := make([]float64, len(columns))
		row[0] = avgCPU
		row[1] = quantile(acc.cpu, 0.95)
		row[2] = avgMem
		row[3] = quantile(acc.mem, 0.95)
		if acc.netInN > 0 {
			row[4] = acc.netInSum / float64(acc.netInN) / 1e6
		}
		if acc.netOutN > 0 {
			row[5] = acc.netOutSum / float64(acc.netOutN) / 1e6
		}
		if acc.meta.Environment == "prod" {
			row[6] = 1
		}
		fam := "family_" + FamilyLabel(acc.meta.InstanceType)
		for i := len(baseFeatureColumns); i < len(columns); i++ {
			if columns[i] == fam {
				row[i] = 1
				break
			}
		}

		label := 0
		if ShouldDownsize(avgCPU, avgMem) {
			label = 1
		}

		acc.meta.AvgCPU = avgCPU
		acc.meta.AvgMem = avgMem

		matrix.Rows = append(matrix.Rows, row)
		labels = append(labels, label)
		meta = append(meta, acc.meta)
	}

	a.logger.Debug("aggregated instance features",
		"instances", len(meta),
		"samples", len(samples),
		"lookback_days", lookbackDays,
		"feature_columns", len(columns),
	)

	return matrix, labels, meta, nil
}

// mean returns the arithmetic mean of the reported values, or 0 when
// none were reported.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// quantile computes the q-th quantile with linear interpolation over
// the sorted values, matching the aggregation used at training time.
func quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return values[0]
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
