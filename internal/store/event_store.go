package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leaseline/export-engine/internal/domain"
)

var (
	// ErrDuplicateEvent is returned by CreateEvent when the event ID is
	// already taken.
	ErrDuplicateEvent = errors.New("event already exists")

	// ErrLeaseExpired is returned when an outcome or release arrives for a
	// claim that no longer holds the event: the lease was reclaimed by
	// another worker, or the outcome was already recorded.
	ErrLeaseExpired = errors.New("claim lease expired")
)

const eventColumns = `event_id, org_id, lead_id, mode, target_url, target_url_host, payload,
		attempts, last_error_code, status, next_attempt_at, lease_expires_at, delivered_at,
		created_at, updated_at`

// CreateEventParams holds the producer-supplied fields of a new export event.
type CreateEventParams struct {
	EventID       string
	OrgID         string
	LeadID        *string
	Mode          domain.DeliveryMode
	TargetURL     string
	TargetURLHost string
	Payload       []byte
}

// CreateEvent inserts a new export event in pending state, immediately
// eligible for claim. Returns ErrDuplicateEvent if the event ID is taken.
func (s *PostgresStore) CreateEvent(ctx context.Context, p CreateEventParams) (*domain.ExportEvent, error) {
	var e domain.ExportEvent
	err := s.pool.QueryRow(ctx, `
		INSERT INTO export_events (event_id, org_id, lead_id, mode, target_url, target_url_host, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING `+eventColumns, p.EventID, p.OrgID, p.LeadID, string(p.Mode), p.TargetURL, p.TargetURLHost, p.Payload).Scan(
		&e.EventID, &e.OrgID, &e.LeadID, &e.Mode, &e.TargetURL, &e.TargetURLHost, &e.Payload,
		&e.Attempts, &e.LastErrorCode, &e.Status, &e.NextAttemptAt, &e.LeaseExpiresAt, &e.DeliveredAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDuplicateEvent
		}
		return nil, fmt.Errorf("inserting export event: %w", err)
	}
	return &e, nil
}

// ClaimDue atomically claims up to limit events that are due for delivery:
// pending rows whose next_attempt_at has passed, plus in-flight rows whose
// lease has expired (crash recovery). Claimed rows move to in_flight under a
// fresh claim token; concurrent callers never receive the same event. The
// returned token must accompany RecordOutcome and ReleaseClaim calls for the
// claimed batch.
func (s *PostgresStore) ClaimDue(ctx context.Context, limit int, now time.Time, leaseWindow time.Duration) ([]domain.ExportEvent, string, error) {
	token := uuid.New().String()

	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT event_id
			FROM export_events
			WHERE (status = 'pending' AND next_attempt_at <= $1)
			   OR (status = 'in_flight' AND lease_expires_at <= $1)
			ORDER BY next_attempt_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE export_events e
		SET status = 'in_flight',
		    claim_token = $3,
		    lease_expires_at = $4,
		    updated_at = $1
		FROM due
		WHERE e.event_id = due.event_id
		RETURNING e.event_id, e.org_id, e.lead_id, e.mode, e.target_url, e.target_url_host, e.payload,
			e.attempts, e.last_error_code, e.status, e.next_attempt_at, e.lease_expires_at, e.delivered_at,
			e.created_at, e.updated_at
	`, now, limit, token, now.Add(leaseWindow))
	if err != nil {
		return nil, "", fmt.Errorf("claiming due events: %w", err)
	}
	defer rows.Close()

	var events []domain.ExportEvent
	for rows.Next() {
		var e domain.ExportEvent
		err := rows.Scan(
			&e.EventID, &e.OrgID, &e.LeadID, &e.Mode, &e.TargetURL, &e.TargetURLHost, &e.Payload,
			&e.Attempts, &e.LastErrorCode, &e.Status, &e.NextAttemptAt, &e.LeaseExpiresAt, &e.DeliveredAt,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, "", fmt.Errorf("scanning claimed event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("reading claimed events: %w", err)
	}

	return events, token, nil
}

// RecordOutcome applies the result of one delivery attempt and increments
// the attempt counter atomically with the transition. The update is guarded
// by the claim token, so a duplicate call (or a worker whose lease was
// reclaimed while it worked) gets ErrLeaseExpired instead of transitioning
// the event or inflating its attempt count.
func (s *PostgresStore) RecordOutcome(ctx context.Context, eventID, claimToken string, oc domain.Outcome) error {
	var (
		query string
		args  []interface{}
	)

	switch {
	case oc.Delivered:
		query = `
			UPDATE export_events
			SET status = 'delivered',
			    attempts = attempts + 1,
			    last_error_code = NULL,
			    next_attempt_at = NULL,
			    lease_expires_at = NULL,
			    claim_token = NULL,
			    delivered_at = NOW(),
			    updated_at = NOW()
			WHERE event_id = $1 AND claim_token = $2 AND status = 'in_flight'`
		args = []interface{}{eventID, claimToken}

	case oc.Retry:
		query = `
			UPDATE export_events
			SET status = 'pending',
			    attempts = attempts + 1,
			    last_error_code = $3,
			    next_attempt_at = $4,
			    lease_expires_at = NULL,
			    claim_token = NULL,
			    updated_at = NOW()
			WHERE event_id = $1 AND claim_token = $2 AND status = 'in_flight'`
		args = []interface{}{eventID, claimToken, string(oc.ErrorCode), oc.NextAttemptAt}

	default:
		query = `
			UPDATE export_events
			SET status = 'abandoned',
			    attempts = attempts + 1,
			    last_error_code = $3,
			    next_attempt_at = NULL,
			    lease_expires_at = NULL,
			    claim_token = NULL,
			    updated_at = NOW()
			WHERE event_id = $1 AND claim_token = $2 AND status = 'in_flight'`
		args = []interface{}{eventID, claimToken, string(oc.ErrorCode)}
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("recording outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// ReleaseClaim returns a claimed event to pending without consuming an
// attempt. Used when a gate (circuit breaker, rate limiter, shutdown) stops
// the attempt before any transport call is made.
func (s *PostgresStore) ReleaseClaim(ctx context.Context, eventID, claimToken string, nextAttemptAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE export_events
		SET status = 'pending',
		    next_attempt_at = $3,
		    lease_expires_at = NULL,
		    claim_token = NULL,
		    updated_at = NOW()
		WHERE event_id = $1 AND claim_token = $2 AND status = 'in_flight'
	`, eventID, claimToken, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("releasing claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseExpired
	}
	return nil
}

// RequeueEvent is the operator re-queue for terminally failed events: it
// grants a fresh delivery budget and schedules the event immediately. Only
// abandoned rows (or externally marked failed rows) can be requeued; for
// anything else it returns nil.
func (s *PostgresStore) RequeueEvent(ctx context.Context, orgID, eventID string) (*domain.ExportEvent, error) {
	var e domain.ExportEvent
	err := s.pool.QueryRow(ctx, `
		UPDATE export_events
		SET status = 'pending',
		    attempts = 0,
		    last_error_code = NULL,
		    next_attempt_at = NOW(),
		    updated_at = NOW()
		WHERE org_id = $1 AND event_id = $2 AND status IN ('abandoned', 'failed')
		RETURNING `+eventColumns, orgID, eventID).Scan(
		&e.EventID, &e.OrgID, &e.LeadID, &e.Mode, &e.TargetURL, &e.TargetURLHost, &e.Payload,
		&e.Attempts, &e.LastErrorCode, &e.Status, &e.NextAttemptAt, &e.LeaseExpiresAt, &e.DeliveredAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("requeueing event: %w", err)
	}
	return &e, nil
}

// GetEvent returns one event scoped to the org, or nil when it does not
// exist in that scope.
func (s *PostgresStore) GetEvent(ctx context.Context, orgID, eventID string) (*domain.ExportEvent, error) {
	var e domain.ExportEvent
	err := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+`
		FROM export_events
		WHERE org_id = $1 AND event_id = $2
	`, orgID, eventID).Scan(
		&e.EventID, &e.OrgID, &e.LeadID, &e.Mode, &e.TargetURL, &e.TargetURLHost, &e.Payload,
		&e.Attempts, &e.LastErrorCode, &e.Status, &e.NextAttemptAt, &e.LeaseExpiresAt, &e.DeliveredAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return &e, nil
}

// EventFilter narrows ListEvents results. Zero values mean "any".
type EventFilter struct {
	Status string
	Mode   string
	LeadID string
	Limit  int
}

// ListEvents returns events for one org, newest first. Every query is
// org-scoped; there is deliberately no unscoped variant.
func (s *PostgresStore) ListEvents(ctx context.Context, orgID string, f EventFilter) ([]domain.ExportEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM export_events WHERE org_id = $1`
	args := []interface{}{orgID}
	argIdx := 2

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, f.Status)
		argIdx++
	}
	if f.Mode != "" {
		query += fmt.Sprintf(" AND mode = $%d", argIdx)
		args = append(args, f.Mode)
		argIdx++
	}
	if f.LeadID != "" {
		query += fmt.Sprintf(" AND lead_id = $%d", argIdx)
		args = append(args, f.LeadID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.ExportEvent
	for rows.Next() {
		var e domain.ExportEvent
		err := rows.Scan(
			&e.EventID, &e.OrgID, &e.LeadID, &e.Mode, &e.TargetURL, &e.TargetURLHost, &e.Payload,
			&e.Attempts, &e.LastErrorCode, &e.Status, &e.NextAttemptAt, &e.LeaseExpiresAt, &e.DeliveredAt,
			&e.CreatedAt, &e.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	if events == nil {
		events = []domain.ExportEvent{}
	}

	return events, nil
}

// CountDue returns how many events are currently claimable: pending and due,
// or in flight with an expired lease.
func (s *PostgresStore) CountDue(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM export_events
		WHERE (status = 'pending' AND next_attempt_at <= $1)
		   OR (status = 'in_flight' AND lease_expires_at <= $1)
	`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting due events: %w", err)
	}
	return n, nil
}
