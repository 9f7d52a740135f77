package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/softcane/cloud-cost-advisor/internal/engine"
)

// Instance is one row of the instance registry. hourly_cost is NUMERIC
// in the database; it stays a decimal here and only becomes a float at
// the engine boundary.
type Instance struct {
	ID              int64             `json:"id"`
	CloudInstanceID string            `json:"cloud_instance_id"`
	CloudProvider   string            `json:"cloud_provider"`
	AccountID       *string           `json:"account_id"`
	Region          *string           `json:"region"`
	InstanceType    *string           `json:"instance_type"`
	Environment     *string           `json:"environment"`
	Tags            map[string]string `json:"tags"`
	HourlyCost      *decimal.Decimal  `json:"hourly_cost"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// InstanceStore handles instance registry operations.
type InstanceStore struct {
	pool *pgxpool.Pool
}

const instanceColumns = `id, cloud_instance_id, cloud_provider, account_id,
	region, instance_type, environment, tags, hourly_cost::text,
	created_at, updated_at`

// Upsert inserts the instance or refreshes its mutable attributes,
// keyed by cloud_instance_id. The row's id and timestamps are written
// back into inst.
func (s *InstanceStore) Upsert(ctx context.Context, inst *Instance) error {
	query := `
		INSERT INTO instances (
			cloud_instance_id, cloud_provider, account_id, region,
			instance_type, environment, tags, hourly_cost
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (cloud_instance_id) DO UPDATE SET
			cloud_provider = EXCLUDED.cloud_provider,
			account_id = EXCLUDED.account_id,
			region = EXCLUDED.region,
			instance_type = EXCLUDED.instance_type,
			environment = EXCLUDED.environment,
			tags = EXCLUDED.tags,
			hourly_cost = EXCLUDED.hourly_cost,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	var cost *string
	if inst.HourlyCost != nil {
		v := inst.HourlyCost.String()
		cost = &v
	}

	err := s.pool.QueryRow(ctx, query,
		inst.CloudInstanceID,
		inst.CloudProvider,
		inst.AccountID,
		inst.Region,
		inst.InstanceType,
		inst.Environment,
		inst.Tags,
		cost,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert instance: %w", err)
	}
	return nil
}

// List returns registry rows matching the filters, ordered by id.
func (s *InstanceStore) List(ctx context.Context, f engine.Filters) ([]Instance, error) {
	where, args := instanceFilterClause(f, "", 0)
	query := fmt.Sprintf(`SELECT %s FROM instances%s ORDER BY id`, instanceColumns, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	instances := []Instance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// GetByID retrieves one registry row.
func (s *InstanceStore) GetByID(ctx context.Context, id int64) (*Instance, error) {
	query := fmt.Sprintf(`SELECT %s FROM instances WHERE id = $1`, instanceColumns)

	inst, err := scanInstance(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instance: %w", err)
	}
	return &inst, nil
}

// UpdateInstanceType records the instance type observed at the
// provider.
func (s *InstanceStore) UpdateInstanceType(ctx context.Context, id int64, instanceType string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE instances SET instance_type = $2, updated_at = NOW() WHERE id = $1`,
		id, instanceType)
	if err != nil {
		return fmt.Errorf("update instance type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListInstanceInfo implements engine.InstanceLister.
func (s *InstanceStore) ListInstanceInfo(ctx context.Context) ([]engine.InstanceInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, hourly_cost::text, created_at FROM instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list instance info: %w", err)
	}
	defer rows.Close()

	infos := []engine.InstanceInfo{}
	for rows.Next() {
		var (
			info      engine.InstanceInfo
			costStr   *string
			createdAt time.Time
		)
		if err := rows.Scan(&info.ID, &costStr, &createdAt); err != nil {
			return nil, err
		}
		if costStr != nil {
			cost, convErr := decimal.NewFromString(*costStr)
			if convErr != nil {
				return nil, fmt.Errorf("parse hourly cost: %w", convErr)
			}
			v := cost.InexactFloat64()
			info.HourlyCost = &v
		}
		info.CreatedAt = &createdAt
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// parseCost converts a NUMERIC rendered as text at the engine boundary.
func parseCost(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse hourly cost: %w", err)
	}
	return d.InexactFloat64(), nil
}

func scanInstance(row rowScanner) (Instance, error) {
	var (
		inst    Instance
		costStr *string
	)
	err := row.Scan(
		&inst.ID,
		&inst.CloudInstanceID,
		&inst.CloudProvider,
		&inst.AccountID,
		&inst.Region,
		&inst.InstanceType,
		&inst.Environment,
		&inst.Tags,
		&costStr,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return Instance{}, err
	}
	if costStr != nil {
		cost, convErr := decimal.NewFromString(*costStr)
		if convErr != nil {
			return Instance{}, fmt.Errorf("parse hourly cost: %w", convErr)
		}
		inst.HourlyCost = &cost
	}
	return inst, nil
}

// instanceFilterConds builds equality conditions for the registry
// filters. prefix qualifies column references when the conditions join
// another table; argOffset shifts placeholder numbering past
// already-bound arguments.
func instanceFilterConds(f engine.Filters, prefix string, argOffset int) ([]string, []any) {
	conds := []string{}
	args := []any{}

	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s%s = $%d", prefix, column, argOffset+len(args)))
	}
	add("environment", f.Environment)
	add("region", f.Region)
	add("instance_type", f.InstanceType)
	return conds, args
}

// instanceFilterClause renders the conditions as a WHERE clause, or an
// empty string when the filters are empty.
func instanceFilterClause(f engine.Filters, prefix string, argOffset int) (string, []any) {
	conds, args := instanceFilterConds(f, prefix, argOffset)
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
