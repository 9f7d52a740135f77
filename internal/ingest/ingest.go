// Package ingest loads instance inventory and utilization samples into
// the store, from cloud providers, a Prometheus, or a synthetic
// generator for demo environments.
package ingest

import (
	"context"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// InstanceWriter registers instances in the store.
type InstanceWriter interface {
	Upsert(ctx context.Context, inst *store.Instance) error
	List(ctx context.Context, f engine.Filters) ([]store.Instance, error)
}

// MetricWriter persists utilization samples.
type MetricWriter interface {
	InsertBatch(ctx context.Context, metrics []store.Metric) (int64, error)
}
