package engine

import (
	"fmt"
	"strings"
)

// Action is the advisory outcome for an instance.
type Action string

const (
	ActionKeep     Action = "keep"
	ActionDownsize Action = "downsize"
)

// Fixed policy constants. The thresholds are strict less-than bounds
// and the cost factor models a downsize to a ~40% cheaper instance.
// They are not configurable per call.
const (
	downsizeCPUThreshold = 20.0
	downsizeMemThreshold = 25.0

	// DownsizeCostFactor is the remaining cost fraction after a
	// downsize. Shared by the savings calculator, the trend simulator
	// and the analytics rollup so the rule can never drift between
	// call sites.
	DownsizeCostFactor = 0.6
)

// Decide applies the threshold policy to a pair of aggregates.
// Boundary values (avg_cpu=20.0 or avg_mem=25.0) keep.
//
// This rule is authoritative for the action; the classifier's output is
// an advisory confidence and never flips the decision.
func Decide(avgCPU, avgMem float64) Action {
	if avgCPU < downsizeCPUThreshold && avgMem < downsizeMemThreshold {
		return ActionDownsize
	}
	return ActionKeep
}

// ShouldDownsize reports whether the aggregates satisfy the downsize
// condition.
func ShouldDownsize(avgCPU, avgMem float64) bool {
	return Decide(avgCPU, avgMem) == ActionDownsize
}

// IsProduction reports whether an environment name counts as
// production. Matching is case-insensitive.
func IsProduction(environment string) bool {
	switch strings.ToLower(environment) {
	case "prod", "production":
		return true
	}
	return false
}

// Reasons renders the ordered human-readable justifications for an
// instance's aggregates. Each reason is appended only when its trigger
// holds: low CPU, then low memory, then non-production environment.
func Reasons(avgCPU, avgMem float64, environment string) []string {
	reasons := []string{}
	if avgCPU < downsizeCPUThreshold {
		reasons = append(reasons, fmt.Sprintf("Average CPU utilization is low (%.1f%%)", avgCPU))
	}
	if avgMem < downsizeMemThreshold {
		reasons = append(reasons, fmt.Sprintf("Average memory utilization is low (%.1f%%)", avgMem))
	}
	if environment != "" && !IsProduction(environment) {
		reasons = append(reasons, fmt.Sprintf("Instance is in a non-production environment (%s)", environment))
	}
	return reasons
}
