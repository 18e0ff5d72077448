package domain

import (
	"encoding/json"
	"time"
)

// EventStatus is the delivery lifecycle state of an export event.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusInFlight  EventStatus = "in_flight"
	StatusDelivered EventStatus = "delivered"
	// StatusFailed is reserved for rows marked by external tooling. The
	// engine never writes it and never claims it, but accepts it on read
	// and on requeue.
	StatusFailed    EventStatus = "failed"
	StatusAbandoned EventStatus = "abandoned"
)

// DeliveryMode selects how an event reaches its target. Fixed at creation.
type DeliveryMode string

const (
	ModePush    DeliveryMode = "push"
	ModeWebhook DeliveryMode = "webhook"
	ModeBatch   DeliveryMode = "batch"
)

// ValidMode reports whether s is one of the supported delivery modes.
func ValidMode(s string) bool {
	switch DeliveryMode(s) {
	case ModePush, ModeWebhook, ModeBatch:
		return true
	}
	return false
}

// FailureCode is the enumerated category of the most recent failed attempt.
type FailureCode string

const (
	FailureTransient      FailureCode = "transient"
	FailureClientRejected FailureCode = "client_rejected"
	FailureUnknown        FailureCode = "unknown"
)

// ExportEvent is a unit of lead/event data scheduled for delivery to an
// external destination. Rows are created by upstream producers, mutated only
// by the delivery workers, and never deleted (archival is external).
type ExportEvent struct {
	EventID        string          `json:"event_id"`
	OrgID          string          `json:"org_id"`
	LeadID         *string         `json:"lead_id,omitempty"`
	Mode           DeliveryMode    `json:"mode"`
	TargetURL      string          `json:"target_url"`
	TargetURLHost  string          `json:"target_url_host"`
	Payload        json.RawMessage `json:"payload"`
	Attempts       int             `json:"attempts"`
	LastErrorCode  *string         `json:"last_error_code,omitempty"`
	Status         EventStatus     `json:"status"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Outcome describes how one delivery attempt ended and what the store should
// do with the event. Exactly one of the three shapes is valid: delivered,
// retry with a scheduled next attempt, or abandonment.
type Outcome struct {
	Delivered     bool
	ErrorCode     FailureCode
	Retry         bool
	NextAttemptAt time.Time
}
