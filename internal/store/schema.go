package store

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist. Statements are
// idempotent; there is no versioned migration history yet.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS instances (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			cloud_instance_id VARCHAR(64) NOT NULL UNIQUE,
			cloud_provider VARCHAR(16) NOT NULL,
			account_id VARCHAR(64),
			region VARCHAR(32),
			instance_type VARCHAR(32),
			environment VARCHAR(32),
			tags JSONB,
			hourly_cost NUMERIC(10,4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			instance_id BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			timestamp TIMESTAMPTZ NOT NULL,
			cpu_utilization NUMERIC(5,2),
			mem_utilization NUMERIC(5,2),
			network_in_bytes BIGINT,
			network_out_bytes BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_instance_ts
			ON metrics (instance_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS rightsizing_actions (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			instance_id BIGINT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
			cloud_provider VARCHAR(16) NOT NULL,
			cloud_instance_id VARCHAR(64) NOT NULL,
			region VARCHAR(32),
			old_instance_type VARCHAR(32),
			new_instance_type VARCHAR(32),
			status VARCHAR(16) NOT NULL,
			error_message TEXT,
			requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			verified_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rightsizing_actions_instance
			ON rightsizing_actions (instance_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
