package api

import (
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// AnalyticsHandler handles the system-level summary endpoint.
type AnalyticsHandler struct {
	registry   InstanceRegistry
	aggregator Aggregator
	model      ModelSource
	counters   *engine.Counters
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(registry InstanceRegistry, aggregator Aggregator, model ModelSource, counters *engine.Counters) *AnalyticsHandler {
	return &AnalyticsHandler{
		registry:   registry,
		aggregator: aggregator,
		model:      model,
		counters:   counters,
	}
}

// EnvCost is one environment's monthly cost rollup.
type EnvCost struct {
	Env       string  `json:"env"`
	Baseline  float64 `json:"baseline"`
	Optimized float64 `json:"optimized"`
}

// SummaryResponse is the analytics rollup. Cost figures are monthly
// USD rounded to cents.
type SummaryResponse struct {
	InstanceCount             int       `json:"instance_count"`
	DownsizeCount             int       `json:"downsize_count"`
	TotalBaselineMonthlyCost  float64   `json:"total_baseline_monthly_cost"`
	TotalOptimizedMonthlyCost float64   `json:"total_optimized_monthly_cost"`
	TotalMonthlySavings       float64   `json:"total_monthly_savings"`
	ModelVersion              string    `json:"model_version"`
	ValidationAccuracy        float64   `json:"validation_accuracy"`
	LastTrainedAt             string    `json:"last_trained_at"`
	TrainingRuntimeSec        *float64  `json:"training_runtime_sec"`
	RecommendationsRequests   int64     `json:"recommendations_requests"`
	EnvBreakdown              []EnvCost `json:"env_breakdown"`
}

// GetSummary handles GET /analytics/summary. An untrained model is not
// an error here: the cost rollup is rule-based and still meaningful.
func (h *AnalyticsHandler) GetSummary(c echo.Context) error {
	ctx := c.Request().Context()

	resp := SummaryResponse{
		ModelVersion:  "unknown",
		LastTrainedAt: "unknown",
		EnvBreakdown:  []EnvCost{},
	}
	if h.model != nil {
		meta := h.model.Meta()
		resp.ModelVersion = meta.ModelVersion
		resp.ValidationAccuracy = meta.ValidationAccuracy
		resp.LastTrainedAt = meta.TrainedAt.Format(time.RFC3339)
		if meta.TrainingRuntimeSec > 0 {
			v := meta.TrainingRuntimeSec
			resp.TrainingRuntimeSec = &v
		}
	}
	if h.counters != nil {
		resp.RecommendationsRequests = h.counters.RecommendationRequests()
	}

	instances, err := h.registry.List(ctx, engine.Filters{})
	if err != nil {
		return ErrorInternal(c, "Failed to list instances: "+err.Error())
	}
	resp.InstanceCount = len(instances)

	_, _, meta, err := h.aggregator.ComputeFeatures(ctx, engine.DefaultLookbackDays, engine.Filters{})
	if err != nil {
		return ErrorInternal(c, "Error computing analytics summary: "+err.Error())
	}
	downsized := make(map[int64]bool, len(meta))
	for _, m := range meta {
		downsized[m.InstanceID] = engine.ShouldDownsize(m.AvgCPU, m.AvgMem)
	}

	const hoursPerMonth = 24 * 30
	envCosts := make(map[string]*EnvCost)

	for _, inst := range instances {
		if inst.HourlyCost == nil {
			continue
		}
		hourly := inst.HourlyCost.InexactFloat64()
		if hourly <= 0 {
			continue
		}

		monthly := hourly * hoursPerMonth
		optimized := monthly
		// Instances with no metrics in the window count as keep.
		if downsized[inst.ID] {
			resp.DownsizeCount++
			optimized = hourly * engine.DownsizeCostFactor * hoursPerMonth
		}

		resp.TotalBaselineMonthlyCost += monthly
		resp.TotalOptimizedMonthlyCost += optimized

		env := "unknown"
		if inst.Environment != nil && *inst.Environment != "" {
			env = *inst.Environment
		}
		ec, ok := envCosts[env]
		if !ok {
			ec = &EnvCost{Env: env}
			envCosts[env] = ec
		}
		ec.Baseline += monthly
		ec.Optimized += optimized
	}

	resp.TotalMonthlySavings = resp.TotalBaselineMonthlyCost - resp.TotalOptimizedMonthlyCost
	resp.TotalBaselineMonthlyCost = roundCents(resp.TotalBaselineMonthlyCost)
	resp.TotalOptimizedMonthlyCost = roundCents(resp.TotalOptimizedMonthlyCost)
	resp.TotalMonthlySavings = roundCents(resp.TotalMonthlySavings)

	envs := make([]string, 0, len(envCosts))
	for env := range envCosts {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	for _, env := range envs {
		ec := envCosts[env]
		resp.EnvBreakdown = append(resp.EnvBreakdown, EnvCost{
			Env:       env,
			Baseline:  roundCents(ec.Baseline),
			Optimized: roundCents(ec.Optimized),
		})
	}

	return c.JSON(http.StatusOK, resp)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
