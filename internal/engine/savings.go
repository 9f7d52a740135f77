package engine

// hoursPerMonth is the fixed 24x30 monthly projection horizon.
const hoursPerMonth = 24 * 30

// ProjectedMonthlySavings converts an hourly cost plus the decided
// action into projected monthly savings. Keep, a missing cost, or a
// non-positive cost all project zero. Downsize projects
// (hourly - hourly*0.6) * 24 * 30 under the fixed assumption that the
// replacement instance costs 40% less.
func ProjectedMonthlySavings(hourlyCost *float64, action Action) float64 {
	if action != ActionDownsize || hourlyCost == nil || *hourlyCost <= 0 {
		return 0
	}
	projected := *hourlyCost * DownsizeCostFactor
	return (*hourlyCost - projected) * hoursPerMonth
}
