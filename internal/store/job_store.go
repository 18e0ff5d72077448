package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leaseline/export-engine/internal/domain"
)

// UpsertHeartbeat updates last_heartbeat unconditionally, creating the
// snapshot row on first contact.
func (s *PostgresStore) UpsertHeartbeat(ctx context.Context, name string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_health (name, last_heartbeat)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		SET last_heartbeat = EXCLUDED.last_heartbeat
	`, name, now)
	if err != nil {
		return fmt.Errorf("upserting heartbeat: %w", err)
	}
	return nil
}

// UpsertSuccess sets last_success_at and resets the consecutive failure
// counter. It does not touch last_error fields: the snapshot keeps the most
// recent error for operators even after recovery.
func (s *PostgresStore) UpsertSuccess(ctx context.Context, name string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_health (name, last_heartbeat, last_success_at, consecutive_failures)
		VALUES ($1, $2, $2, 0)
		ON CONFLICT (name) DO UPDATE
		SET last_success_at = EXCLUDED.last_success_at,
		    consecutive_failures = 0
	`, name, now)
	if err != nil {
		return fmt.Errorf("upserting job success: %w", err)
	}
	return nil
}

// UpsertFailure sets last_error and last_error_at and increments the
// consecutive failure counter.
func (s *PostgresStore) UpsertFailure(ctx context.Context, name, errMsg string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_health (name, last_heartbeat, last_error, last_error_at, consecutive_failures)
		VALUES ($1, $2, $3, $2, 1)
		ON CONFLICT (name) DO UPDATE
		SET last_error = EXCLUDED.last_error,
		    last_error_at = EXCLUDED.last_error_at,
		    consecutive_failures = job_health.consecutive_failures + 1
	`, name, now, errMsg)
	if err != nil {
		return fmt.Errorf("upserting job failure: %w", err)
	}
	return nil
}

// GetJobHealth returns the snapshot for one job, or nil if the job has never
// reported.
func (s *PostgresStore) GetJobHealth(ctx context.Context, name string) (*domain.JobHealth, error) {
	var h domain.JobHealth
	err := s.pool.QueryRow(ctx, `
		SELECT name, last_heartbeat, last_success_at, last_error, last_error_at, consecutive_failures
		FROM job_health WHERE name = $1
	`, name).Scan(
		&h.Name, &h.LastHeartbeat, &h.LastSuccessAt, &h.LastError, &h.LastErrorAt, &h.ConsecutiveFailures,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying job health: %w", err)
	}
	return &h, nil
}

// ListJobHealth returns all job snapshots, alphabetically.
func (s *PostgresStore) ListJobHealth(ctx context.Context) ([]domain.JobHealth, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, last_heartbeat, last_success_at, last_error, last_error_at, consecutive_failures
		FROM job_health ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying job health rows: %w", err)
	}
	defer rows.Close()

	var snapshots []domain.JobHealth
	for rows.Next() {
		var h domain.JobHealth
		err := rows.Scan(
			&h.Name, &h.LastHeartbeat, &h.LastSuccessAt, &h.LastError, &h.LastErrorAt, &h.ConsecutiveFailures,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning job health: %w", err)
		}
		snapshots = append(snapshots, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading job health rows: %w", err)
	}

	if snapshots == nil {
		snapshots = []domain.JobHealth{}
	}

	return snapshots, nil
}
