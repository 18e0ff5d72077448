// Package jobhealth tracks liveness and outcome snapshots for named
// background jobs, and raises alerts when those snapshots degrade.
package jobhealth

import (
	"context"
	"log/slog"
	"time"
)

// Store persists job health snapshots, keyed by job name.
type Store interface {
	UpsertHeartbeat(ctx context.Context, name string, now time.Time) error
	UpsertSuccess(ctx context.Context, name string, now time.Time) error
	UpsertFailure(ctx context.Context, name, errMsg string, now time.Time) error
}

// Tracker is the single write path for job health. Jobs report through it
// instead of mutating any shared state; a tracker write that fails is logged
// and swallowed so health bookkeeping can never take a job down with it.
type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Heartbeat records that the job is alive, independent of work outcomes.
func (t *Tracker) Heartbeat(ctx context.Context, name string) {
	if err := t.store.UpsertHeartbeat(ctx, name, t.now()); err != nil {
		t.logger.Error("failed to record heartbeat", "job", name, "error", err)
	}
}

// ReportSuccess records a completed unit of work and resets the consecutive
// failure count.
func (t *Tracker) ReportSuccess(ctx context.Context, name string) {
	if err := t.store.UpsertSuccess(ctx, name, t.now()); err != nil {
		t.logger.Error("failed to record job success", "job", name, "error", err)
	}
}

// ReportFailure records a failed cycle and bumps the consecutive failure
// count.
func (t *Tracker) ReportFailure(ctx context.Context, name string, jobErr error) {
	msg := "unknown error"
	if jobErr != nil {
		msg = jobErr.Error()
	}
	if err := t.store.UpsertFailure(ctx, name, msg, t.now()); err != nil {
		t.logger.Error("failed to record job failure", "job", name, "error", err)
	}
}
