// Package store provides Postgres persistence for the instance
// registry, utilization metrics and right-sizing action records.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool

	Instances *InstanceStore
	Metrics   *MetricStore
	Actions   *ActionStore
}

// New creates a Store with all sub-stores initialized.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		Instances: &InstanceStore{pool: pool},
		Metrics:   &MetricStore{pool: pool},
		Actions:   &ActionStore{pool: pool},
	}
}

// NewStore creates a Store from a database URL.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return New(pool), nil
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// WithTx executes fn inside a transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stats returns pool statistics.
func (s *Store) Stats() *pgxpool.Stat {
	return s.pool.Stat()
}
