package store

import (
	"context"
	"fmt"
)

// DeliveryStats holds aggregate delivery counts for the ops dashboard.
type DeliveryStats struct {
	TotalEvents      int64   `json:"total_events"`
	Pending          int64   `json:"pending"`
	InFlight         int64   `json:"in_flight"`
	Delivered        int64   `json:"delivered"`
	Failed           int64   `json:"failed"`
	Abandoned        int64   `json:"abandoned"`
	TransientErrors  int64   `json:"transient_errors"`
	ClientRejections int64   `json:"client_rejections"`
	UnknownErrors    int64   `json:"unknown_errors"`
	DeliveredRate    float64 `json:"delivered_rate"`
}

// GetDeliveryStats aggregates export event counts by status and by the most
// recent failure category.
func (s *PostgresStore) GetDeliveryStats(ctx context.Context) (*DeliveryStats, error) {
	var st DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'in_flight') AS in_flight,
			COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'abandoned') AS abandoned,
			COUNT(*) FILTER (WHERE last_error_code = 'transient') AS transient,
			COUNT(*) FILTER (WHERE last_error_code = 'client_rejected') AS client_rejected,
			COUNT(*) FILTER (WHERE last_error_code = 'unknown') AS unknown
		FROM export_events
	`).Scan(
		&st.TotalEvents, &st.Pending, &st.InFlight, &st.Delivered, &st.Failed, &st.Abandoned,
		&st.TransientErrors, &st.ClientRejections, &st.UnknownErrors,
	)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	if st.TotalEvents > 0 {
		st.DeliveredRate = float64(st.Delivered) / float64(st.TotalEvents) * 100
	}

	return &st, nil
}

// ListTargetHosts returns the distinct destination hosts with undelivered
// events, for per-host health views.
func (s *PostgresStore) ListTargetHosts(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT target_url_host
		FROM export_events
		WHERE status IN ('pending', 'in_flight', 'abandoned', 'failed')
		ORDER BY target_url_host ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying target hosts: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var host string
		if err := rows.Scan(&host); err != nil {
			return nil, fmt.Errorf("scanning target host: %w", err)
		}
		hosts = append(hosts, host)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading target hosts: %w", err)
	}

	if hosts == nil {
		hosts = []string{}
	}

	return hosts, nil
}
