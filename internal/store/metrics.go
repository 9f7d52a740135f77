package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Metric is one utilization observation. Nullable columns stay nil when
// the provider did not report that metric.
type Metric struct {
	ID              int64     `json:"-"`
	InstanceID      int64     `json:"-"`
	Timestamp       time.Time `json:"timestamp"`
	CPUUtilization  *float64  `json:"cpu_utilization"`
	MemUtilization  *float64  `json:"mem_utilization"`
	NetworkInBytes  *int64    `json:"network_in_bytes"`
	NetworkOutBytes *int64    `json:"network_out_bytes"`
}

// MetricStore handles utilization metric operations.
type MetricStore struct {
	pool *pgxpool.Pool
}

// Insert stores a single observation.
func (s *MetricStore) Insert(ctx context.Context, m Metric) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO metrics (
			instance_id, timestamp, cpu_utilization, mem_utilization,
			network_in_bytes, network_out_bytes
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.InstanceID, m.Timestamp, m.CPUUtilization, m.MemUtilization,
		m.NetworkInBytes, m.NetworkOutBytes,
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// InsertBatch bulk-loads observations with COPY. Ingestion pollers and
// the synthetic seeder go through here.
func (s *MetricStore) InsertBatch(ctx context.Context, metrics []Metric) (int64, error) {
	if len(metrics) == 0 {
		return 0, nil
	}

	copied, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"metrics"},
		[]string{"instance_id", "timestamp", "cpu_utilization",
			"mem_utilization", "network_in_bytes", "network_out_bytes"},
		pgx.CopyFromSlice(len(metrics), func(i int) ([]any, error) {
			m := metrics[i]
			return []any{m.InstanceID, m.Timestamp, m.CPUUtilization,
				m.MemUtilization, m.NetworkInBytes, m.NetworkOutBytes}, nil
		}),
	)
	if err != nil {
		return copied, fmt.Errorf("copy metrics: %w", err)
	}
	return copied, nil
}

// ListForInstance returns the instance's observations since the cutoff,
// oldest first.
func (s *MetricStore) ListForInstance(ctx context.Context, instanceID int64, since time.Time) ([]Metric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, instance_id, timestamp, cpu_utilization,
			mem_utilization, network_in_bytes, network_out_bytes
		FROM metrics
		WHERE instance_id = $1 AND timestamp >= $2
		ORDER BY timestamp ASC`,
		instanceID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	defer rows.Close()

	metrics := []Metric{}
	for rows.Next() {
		var m Metric
		if err := rows.Scan(
			&m.ID, &m.InstanceID, &m.Timestamp, &m.CPUUtilization,
			&m.MemUtilization, &m.NetworkInBytes, &m.NetworkOutBytes,
		); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// JoinedSamplesSince implements engine.SampleSource: observations
// joined with registry attributes for instances matching the filters.
func (s *MetricStore) JoinedSamplesSince(ctx context.Context, cutoff time.Time, f engine.Filters) ([]engine.JoinedSample, error) {
	conds, filterArgs := instanceFilterConds(f, "i.", 1)
	conds = append([]string{"m.timestamp >= $1"}, conds...)
	args := append([]any{cutoff}, filterArgs...)

	query := fmt.Sprintf(`
		SELECT m.instance_id, i.cloud_instance_id,
			COALESCE(i.instance_type, ''), COALESCE(i.environment, ''),
			COALESCE(i.region, ''), i.hourly_cost::text,
			m.timestamp, m.cpu_utilization::float8,
			m.mem_utilization::float8,
			m.network_in_bytes, m.network_out_bytes
		FROM metrics m
		JOIN instances i ON i.id = m.instance_id
		WHERE %s
		ORDER BY m.instance_id, m.timestamp`,
		strings.Join(conds, " AND "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query joined samples: %w", err)
	}
	defer rows.Close()

	samples := []engine.JoinedSample{}
	for rows.Next() {
		var (
			sample  engine.JoinedSample
			costStr *string
		)
		if err := rows.Scan(
			&sample.InstanceID, &sample.CloudInstanceID,
			&sample.InstanceType, &sample.Environment, &sample.Region,
			&costStr, &sample.Timestamp, &sample.CPUPct, &sample.MemPct,
			&sample.NetInBytes, &sample.NetOutBytes,
		); err != nil {
			return nil, err
		}
		if costStr != nil {
			cost, convErr := parseCost(*costStr)
			if convErr != nil {
				return nil, convErr
			}
			sample.HourlyCost = &cost
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}
