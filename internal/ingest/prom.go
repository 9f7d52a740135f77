package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
	"github.com/softcane/cloud-cost-advisor/internal/metrics"
	"github.com/softcane/cloud-cost-advisor/internal/store"
)

// PromIngestor scrapes instance utilization from a Prometheus server
// running node_exporter. Unlike CloudWatch, node_exporter does report
// memory, so these samples carry both CPU and memory utilization.
type PromIngestor struct {
	api       v1.API
	instances InstanceWriter
	samples   MetricWriter
	logger    *slog.Logger
	now       func() time.Time
}

// PromConfig holds configuration for the Prometheus ingestor.
type PromConfig struct {
	PrometheusURL string
	Instances     InstanceWriter
	Samples       MetricWriter
	Logger        *slog.Logger
	// API is an optional Prometheus API client. If nil, one will be
	// created from PrometheusURL. Useful for testing.
	API v1.API
}

// NewPromIngestor creates a new Prometheus metrics ingestor.
func NewPromIngestor(cfg PromConfig) (*PromIngestor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var v1api v1.API
	if cfg.API != nil {
		v1api = cfg.API
	} else {
		if cfg.PrometheusURL == "" {
			return nil, fmt.Errorf("PrometheusURL is required")
		}

		client, err := api.NewClient(api.Config{
			Address: cfg.PrometheusURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus client: %w", err)
		}
		v1api = v1.NewAPI(client)
	}

	return &PromIngestor{
		api:       v1api,
		instances: cfg.Instances,
		samples:   cfg.Samples,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Ingest queries current CPU and memory utilization and stores one
// sample per registered instance. Samples are matched to instances by
// the node or instance label against the cloud instance ID.
func (p *PromIngestor) Ingest(ctx context.Context) (int64, error) {
	cpu, err := p.queryCPUUsage(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query CPU metrics: %w", err)
	}

	mem, err := p.queryMemoryUsage(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query memory metrics: %w", err)
	}

	known, err := p.instances.List(ctx, engine.Filters{})
	if err != nil {
		return 0, fmt.Errorf("failed to list instances: %w", err)
	}
	byCloudID := make(map[string]int64, len(known))
	for _, inst := range known {
		byCloudID[inst.CloudInstanceID] = inst.ID
	}

	now := p.now().UTC()
	var batch []store.Metric
	for label, cpuValue := range cpu {
		instanceID, ok := byCloudID[label]
		if !ok {
			p.logger.Debug("prometheus sample for unregistered instance", "label", label)
			continue
		}
		m := store.Metric{
			InstanceID:     instanceID,
			Timestamp:      now,
			CPUUtilization: float64Ptr(cpuValue),
		}
		if memValue, ok := mem[label]; ok {
			m.MemUtilization = float64Ptr(memValue)
		}
		batch = append(batch, m)
	}

	if len(batch) == 0 {
		p.logger.Info("no prometheus samples matched registered instances")
		return 0, nil
	}

	inserted, err := p.samples.InsertBatch(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to store prometheus samples: %w", err)
	}
	metrics.IngestedSamples.WithLabelValues("prometheus").Add(float64(inserted))
	p.logger.Info("prometheus ingestion complete", "samples", inserted)
	return inserted, nil
}

// queryCPUUsage queries instance CPU utilization percentage.
func (p *PromIngestor) queryCPUUsage(ctx context.Context) (map[string]float64, error) {
	// PromQL: 100 - (avg by (node) (rate(node_cpu_seconds_total{mode="idle"}[5m])) * 100)
	query := `100 - (avg by (node) (rate(node_cpu_seconds_total{mode="idle"}[5m])) * 100)`

	result, warnings, err := p.api.Query(ctx, query, p.now())
	if err != nil {
		return nil, err
	}

	if len(warnings) > 0 {
		p.logger.Warn("prometheus query warnings", "warnings", warnings)
	}

	return p.extractNodeValues(result), nil
}

// queryMemoryUsage queries instance memory utilization percentage.
func (p *PromIngestor) queryMemoryUsage(ctx context.Context) (map[string]float64, error) {
	// PromQL: (1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes) * 100
	query := `(1 - node_memory_MemAvailable_bytes / node_memory_MemTotal_bytes) * 100`

	result, warnings, err := p.api.Query(ctx, query, p.now())
	if err != nil {
		return nil, err
	}

	if len(warnings) > 0 {
		p.logger.Warn("prometheus query warnings", "warnings", warnings)
	}

	return p.extractNodeValues(result), nil
}

// extractNodeValues extracts node-keyed values from a Prometheus query result.
func (p *PromIngestor) extractNodeValues(result model.Value) map[string]float64 {
	values := make(map[string]float64)

	vector, ok := result.(model.Vector)
	if !ok {
		p.logger.Warn("unexpected prometheus result type", "type", result.Type())
		return values
	}

	for _, sample := range vector {
		nodeLabel := string(sample.Metric["node"])
		if nodeLabel == "" {
			nodeLabel = string(sample.Metric["instance"])
		}
		if nodeLabel != "" {
			values[nodeLabel] = float64(sample.Value)
		}
	}

	return values
}

func float64Ptr(v float64) *float64 { return &v }
