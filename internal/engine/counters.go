package engine

import "sync/atomic"

// Counters holds the process-wide request counters the analytics
// summary reports. It is an injectable value rather than package
// globals so tests can instantiate isolated instances; all updates are
// atomic and safe under concurrent requests.
type Counters struct {
	recommendationRequests atomic.Int64
}

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters { return &Counters{} }

// IncRecommendationRequests records one recommendation listing request.
func (c *Counters) IncRecommendationRequests() {
	if c == nil {
		return
	}
	c.recommendationRequests.Add(1)
}

// RecommendationRequests returns the number of recommendation listing
// requests served since process start.
func (c *Counters) RecommendationRequests() int64 {
	if c == nil {
		return 0
	}
	return c.recommendationRequests.Load()
}
