// Package engine implements the feature-and-recommendation pipeline:
// per-instance utilization aggregates, the downsize decision rule,
// projected savings, and the cost-trend simulation.
package engine

import (
	"context"
	"strings"
	"time"
)

// Filters narrows the instance set before samples are joined.
// Empty fields match everything.
type Filters struct {
	Environment  string
	Region       string
	InstanceType string
}

// JoinedSample is one utilization observation joined with the registry
// attributes of the instance it belongs to. Pointer fields are nil when
// the provider did not report that metric; absent is distinct from zero.
type JoinedSample struct {
	InstanceID      int64
	CloudInstanceID string
	InstanceType    string
	Environment     string
	Region          string
	HourlyCost      *float64
	Timestamp       time.Time
	CPUPct          *float64
	MemPct          *float64
	NetInBytes      *int64
	NetOutBytes     *int64
}

// SampleSource is the query capability the engine needs from the metric
// store: joined rows for instances matching the filters with
// timestamp >= cutoff.
type SampleSource interface {
	JoinedSamplesSince(ctx context.Context, cutoff time.Time, f Filters) ([]JoinedSample, error)
}

// InstanceInfo carries the registry fields the trend simulator needs.
type InstanceInfo struct {
	ID         int64
	HourlyCost *float64
	CreatedAt  *time.Time
}

// InstanceLister enumerates the instance registry.
type InstanceLister interface {
	ListInstanceInfo(ctx context.Context) ([]InstanceInfo, error)
}

// FeatureMatrix is a dense feature table with named columns. The column
// set is computed per call: family_* columns depend on which instance
// families appear in the selected set, so positions are not stable
// across calls. Scoring code must align by name against a persisted
// training schema, never by position.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
}

// ColumnIndex returns the position of the named column, or -1.
func (m FeatureMatrix) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Len returns the number of instance rows.
func (m FeatureMatrix) Len() int { return len(m.Rows) }

// InstanceMeta carries the non-feature identifying fields for one
// aggregated instance, in the same row order as the FeatureMatrix.
type InstanceMeta struct {
	InstanceID      int64
	CloudInstanceID string
	Environment     string
	Region          string
	InstanceType    string
	HourlyCost      *float64
	AvgCPU          float64
	AvgMem          float64
}

// Recommendation is the per-instance advisory output. Recomputed on
// every request, never persisted.
type Recommendation struct {
	InstanceID              int64    `json:"instance_id"`
	CloudInstanceID         string   `json:"cloud_instance_id"`
	Environment             string   `json:"environment,omitempty"`
	Region                  string   `json:"region,omitempty"`
	InstanceType            string   `json:"instance_type,omitempty"`
	HourlyCost              *float64 `json:"hourly_cost"`
	Action                  Action   `json:"action"`
	ConfidenceDownsize      float64  `json:"confidence_downsize"`
	ProjectedMonthlySavings float64  `json:"projected_monthly_savings"`
	ModelVersion            string   `json:"model_version"`
	Reasons                 []string `json:"reasons"`
	FeatureAttribution      []string `json:"feature_attribution,omitempty"`
}

// TrendSeries is the per-day baseline vs optimized cost projection,
// oldest day first. The optimized series applies the decision rule's
// cost factor; both series carry synthetic presentation variance and
// must not be read as measured billing data.
type TrendSeries struct {
	Days               []string  `json:"days"`
	BaselineDailyCost  []float64 `json:"baseline_daily_cost"`
	OptimizedDailyCost []float64 `json:"optimized_daily_cost"`
}

// FamilyLabel returns the instance family for a type identifier: the
// prefix before the first ".". Empty or unparseable types map to
// "unknown".
func FamilyLabel(instanceType string) string {
	instanceType = strings.TrimSpace(strings.ToLower(instanceType))
	if instanceType == "" || instanceType == "unknown" {
		return "unknown"
	}
	family, _, _ := strings.Cut(instanceType, ".")
	if family == "" {
		return "unknown"
	}
	return family
}
