package domain

import "time"

// JobHealth is the latest liveness and outcome snapshot for a named
// background job. It is upserted on every job cycle and never deleted by the
// engine; it is a snapshot, not a log.
type JobHealth struct {
	Name                string     `json:"name"`
	LastHeartbeat       time.Time  `json:"last_heartbeat"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastError           *string    `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}
