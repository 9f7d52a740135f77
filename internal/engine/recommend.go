package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Scorer produces the advisory downsize probability for each feature
// row. Implementations fail with ErrModelUnavailable when no trained
// artifact is loaded.
type Scorer interface {
	ModelVersion() string
	Score(ctx context.Context, m FeatureMatrix) ([]float64, error)
}

// Attributor ranks the features that most influenced the classifier for
// the selected rows and renders them as ordered human-readable strings.
type Attributor interface {
	TopAttributions(ctx context.Context, m FeatureMatrix, rows []int, topK int) ([][]string, error)
}

// ListOptions controls one recommendation listing request.
type ListOptions struct {
	Filters
	// MinSavings drops entries projecting less than this monthly
	// amount. Zero keeps everything.
	MinSavings float64
	// IncludeAttribution adds per-feature attribution strings for
	// instances flagged downsize. Attribution is additive: failures
	// degrade to "no attribution" and never fail the listing.
	IncludeAttribution bool
	LookbackDays       int
	AttributionTopK    int
}

// DefaultAttributionTopK is the number of attribution reasons rendered
// per instance.
const DefaultAttributionTopK = 3

// Recommender orchestrates aggregation, scoring and savings projection
// into a ranked recommendation list.
type Recommender struct {
	aggregator *Aggregator
	scorer     Scorer
	attributor Attributor
	counters   *Counters
	logger     *slog.Logger
}

// NewRecommender wires the recommendation pipeline. attributor may be
// nil, in which case attribution is always omitted.
func NewRecommender(aggregator *Aggregator, scorer Scorer, attributor Attributor, counters *Counters, logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recommender{
		aggregator: aggregator,
		scorer:     scorer,
		attributor: attributor,
		counters:   counters,
		logger:     logger,
	}
}

// List computes recommendations for every instance with samples in the
// lookback window, sorted descending by projected monthly savings.
// The computation is idempotent: identical inputs over unchanged data
// yield identical output.
func (r *Recommender) List(ctx context.Context, opts ListOptions) ([]Recommendation, error) {
	r.counters.IncRecommendationRequests()

	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}

	matrix, _, meta, err := r.aggregator.ComputeFeatures(ctx, lookback, opts.Filters)
	if err != nil {
		return nil, err
	}
	if matrix.Len() == 0 {
		return []Recommendation{}, nil
	}

	probs, err := r.scorer.Score(ctx, matrix)
	if err != nil {
		return nil, fmt.Errorf("score features: %w", err)
	}
	if len(probs) != matrix.Len() {
		return nil, fmt.Errorf("scorer returned %d probabilities for %d rows", len(probs), matrix.Len())
	}

	attribution := r.attributionsForDownsized(ctx, matrix, meta, opts)

	recommendations := make([]Recommendation, 0, matrix.Len())
	for i, m := range meta {
		action := Decide(m.AvgCPU, m.AvgMem)
		savings := ProjectedMonthlySavings(m.HourlyCost, action)
		if opts.MinSavings > 0 && savings < opts.MinSavings {
			continue
		}

		recommendations = append(recommendations, Recommendation{
			InstanceID:              m.InstanceID,
			CloudInstanceID:         m.CloudInstanceID,
			Environment:             m.Environment,
			Region:                  m.Region,
			InstanceType:            m.InstanceType,
			HourlyCost:              m.HourlyCost,
			Action:                  action,
			ConfidenceDownsize:      probs[i],
			ProjectedMonthlySavings: savings,
			ModelVersion:            r.scorer.ModelVersion(),
			Reasons:                 Reasons(m.AvgCPU, m.AvgMem, m.Environment),
			FeatureAttribution:      attribution[i],
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		if recommendations[i].ProjectedMonthlySavings != recommendations[j].ProjectedMonthlySavings {
			return recommendations[i].ProjectedMonthlySavings > recommendations[j].ProjectedMonthlySavings
		}
		return recommendations[i].InstanceID < recommendations[j].InstanceID
	})

	return recommendations, nil
}

// attributionsForDownsized returns a row-index keyed map of rendered
// attribution strings for the instances the rule flags downsize. Any
// attribution error is logged and swallowed.
func (r *Recommender) attributionsForDownsized(ctx context.Context, matrix FeatureMatrix, meta []InstanceMeta, opts ListOptions) map[int][]string {
	result := make(map[int][]string)
	if !opts.IncludeAttribution || r.attributor == nil {
		return result
	}

	rows := make([]int, 0, len(meta))
	for i, m := range meta {
		if ShouldDownsize(m.AvgCPU, m.AvgMem) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return result
	}

	topK := opts.AttributionTopK
	if topK <= 0 {
		topK = DefaultAttributionTopK
	}

	reasons, err := r.attributor.TopAttributions(ctx, matrix, rows, topK)
	if err != nil {
		r.logger.Warn("feature attribution failed, omitting", "error", err)
		return result
	}
	for local, row := range rows {
		if local < len(reasons) {
			result[row] = reasons[local]
		}
	}
	return result
}
