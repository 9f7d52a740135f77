package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Right-sizing action lifecycle states.
const (
	ActionStatusPending  = "pending"
	ActionStatusVerified = "verified"
	ActionStatusMismatch = "mismatch"
	ActionStatusError    = "error"
)

// RightSizingAction records an operator-initiated resize and its
// verification outcome against the provider.
type RightSizingAction struct {
	ID              int64      `json:"id"`
	InstanceID      int64      `json:"instance_id"`
	CloudProvider   string     `json:"cloud_provider"`
	CloudInstanceID string     `json:"cloud_instance_id"`
	Region          *string    `json:"region"`
	OldInstanceType *string    `json:"old_instance_type"`
	NewInstanceType *string    `json:"new_instance_type"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message"`
	RequestedAt     time.Time  `json:"requested_at"`
	VerifiedAt      *time.Time `json:"verified_at"`
}

// ActionStore handles right-sizing action records.
type ActionStore struct {
	pool *pgxpool.Pool
}

const actionColumns = `id, instance_id, cloud_provider, cloud_instance_id,
	region, old_instance_type, new_instance_type, status, error_message,
	requested_at, verified_at`

// Create inserts a new action record; the generated id and requested_at
// are written back.
func (s *ActionStore) Create(ctx context.Context, action *RightSizingAction) error {
	query := `
		INSERT INTO rightsizing_actions (
			instance_id, cloud_provider, cloud_instance_id, region,
			old_instance_type, new_instance_type, status, verified_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, requested_at
	`
	err := s.pool.QueryRow(ctx, query,
		action.InstanceID,
		action.CloudProvider,
		action.CloudInstanceID,
		action.Region,
		action.OldInstanceType,
		action.NewInstanceType,
		action.Status,
		action.VerifiedAt,
	).Scan(&action.ID, &action.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// GetByID retrieves one action record.
func (s *ActionStore) GetByID(ctx context.Context, id int64) (*RightSizingAction, error) {
	query := fmt.Sprintf(`SELECT %s FROM rightsizing_actions WHERE id = $1`, actionColumns)

	var a RightSizingAction
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.InstanceID, &a.CloudProvider, &a.CloudInstanceID,
		&a.Region, &a.OldInstanceType, &a.NewInstanceType, &a.Status,
		&a.ErrorMessage, &a.RequestedAt, &a.VerifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query action: %w", err)
	}
	return &a, nil
}

// List returns action records, newest first. instanceID narrows to one
// instance when non-zero.
func (s *ActionStore) List(ctx context.Context, instanceID int64) ([]RightSizingAction, error) {
	query := fmt.Sprintf(`SELECT %s FROM rightsizing_actions`, actionColumns)
	args := []any{}
	if instanceID != 0 {
		query += ` WHERE instance_id = $1`
		args = append(args, instanceID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := []RightSizingAction{}
	for rows.Next() {
		var a RightSizingAction
		if err := rows.Scan(
			&a.ID, &a.InstanceID, &a.CloudProvider, &a.CloudInstanceID,
			&a.Region, &a.OldInstanceType, &a.NewInstanceType, &a.Status,
			&a.ErrorMessage, &a.RequestedAt, &a.VerifiedAt,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SetOutcome records a verification result.
func (s *ActionStore) SetOutcome(ctx context.Context, id int64, status string, errorMessage *string, verifiedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rightsizing_actions
		SET status = $2, error_message = $3, verified_at = $4
		WHERE id = $1`,
		id, status, errorMessage, verifiedAt,
	)
	if err != nil {
		return fmt.Errorf("update action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
