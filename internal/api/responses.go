package api

import (
	"time"

	"github.com/leaseline/export-engine/internal/domain"
)

// ExportEventResponse is the external projection of an export event. It is
// built strictly from the canonical entity and deliberately omits the full
// target URL and payload.
type ExportEventResponse struct {
	EventID       string     `json:"event_id"`
	LeadID        *string    `json:"lead_id,omitempty"`
	Mode          string     `json:"mode"`
	TargetURLHost string     `json:"target_url_host"`
	Attempts      int        `json:"attempts"`
	LastErrorCode *string    `json:"last_error_code,omitempty"`
	Status        string     `json:"status"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newExportEventResponse(e domain.ExportEvent) ExportEventResponse {
	return ExportEventResponse{
		EventID:       e.EventID,
		LeadID:        e.LeadID,
		Mode:          string(e.Mode),
		TargetURLHost: e.TargetURLHost,
		Attempts:      e.Attempts,
		LastErrorCode: e.LastErrorCode,
		Status:        string(e.Status),
		NextAttemptAt: e.NextAttemptAt,
		CreatedAt:     e.CreatedAt,
	}
}

func newExportEventResponses(events []domain.ExportEvent) []ExportEventResponse {
	out := make([]ExportEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, newExportEventResponse(e))
	}
	return out
}

// JobStatusResponse is the external projection of a job health snapshot.
type JobStatusResponse struct {
	Name                string     `json:"name"`
	LastHeartbeat       time.Time  `json:"last_heartbeat"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	LastError           *string    `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

func newJobStatusResponse(h domain.JobHealth) JobStatusResponse {
	return JobStatusResponse{
		Name:                h.Name,
		LastHeartbeat:       h.LastHeartbeat,
		LastSuccessAt:       h.LastSuccessAt,
		LastError:           h.LastError,
		LastErrorAt:         h.LastErrorAt,
		ConsecutiveFailures: h.ConsecutiveFailures,
	}
}
