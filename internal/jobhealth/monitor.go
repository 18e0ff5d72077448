package jobhealth

import (
	"context"
	"log/slog"
	"time"

	"github.com/leaseline/export-engine/internal/domain"
)

const (
	signalConsecutiveFailures = "consecutive_failures"
	signalStaleHeartbeat      = "stale_heartbeat"
)

// SnapshotSource provides the current job health snapshots to evaluate.
type SnapshotSource interface {
	ListJobHealth(ctx context.Context) ([]domain.JobHealth, error)
}

// MonitorConfig holds the alerting thresholds.
type MonitorConfig struct {
	// Interval between evaluation cycles.
	Interval time.Duration
	// StaleAfter is how long a job may go without a heartbeat before its
	// liveness alert fires.
	StaleAfter time.Duration
	// FailureThreshold is the consecutive failure count at which the
	// failure alert fires.
	FailureThreshold int
	// Cooldown suppresses repeat notifications for an alert that is still
	// firing.
	Cooldown time.Duration
}

// Monitor periodically evaluates job health snapshots against the configured
// thresholds and logs alert transitions: triggered when a signal first
// breaches, ongoing on each cooldown expiry while it stays breached, and
// resolved when it recovers.
type Monitor struct {
	cfg    MonitorConfig
	source SnapshotSource
	logger *slog.Logger
	now    func() time.Time
	states map[string]alertState
}

type alertState struct {
	active         bool
	triggeredAt    time.Time
	lastNotifiedAt time.Time
}

type alertEvent struct {
	State     string
	Job       string
	Signal    string
	Current   int64
	Threshold int64
}

func NewMonitor(cfg MonitorConfig, source SnapshotSource, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Monitor{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
		states: map[string]alertState{},
	}
}

// Start runs the evaluation loop until the context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("job health monitor started",
		"interval", m.cfg.Interval,
		"stale_after", m.cfg.StaleAfter,
		"failure_threshold", m.cfg.FailureThreshold,
	)

	m.runCycle(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("job health monitor stopped")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	snapshots, err := m.source.ListJobHealth(ctx)
	if err != nil {
		m.logger.Error("job health evaluation failed", "error", err)
		return
	}

	for _, event := range m.evaluate(m.now(), snapshots) {
		logFn := m.logger.Warn
		if event.State == "resolved" {
			logFn = m.logger.Info
		}
		logFn("job health alert "+event.State,
			"job", event.Job,
			"signal", event.Signal,
			"current", event.Current,
			"threshold", event.Threshold,
		)
	}
}

// evaluate inspects every snapshot and returns the alert transitions since
// the previous evaluation. It is deterministic given now and the snapshots.
func (m *Monitor) evaluate(now time.Time, snapshots []domain.JobHealth) []alertEvent {
	var events []alertEvent

	for _, h := range snapshots {
		events = append(events, m.evaluateSignal(
			now,
			h.Name,
			signalConsecutiveFailures,
			int64(h.ConsecutiveFailures),
			int64(m.cfg.FailureThreshold),
			h.ConsecutiveFailures >= m.cfg.FailureThreshold,
		)...)

		staleness := now.Sub(h.LastHeartbeat)
		events = append(events, m.evaluateSignal(
			now,
			h.Name,
			signalStaleHeartbeat,
			int64(staleness.Seconds()),
			int64(m.cfg.StaleAfter.Seconds()),
			staleness >= m.cfg.StaleAfter,
		)...)
	}

	return events
}

func (m *Monitor) evaluateSignal(now time.Time, job, signal string, current, threshold int64, breached bool) []alertEvent {
	key := job + "/" + signal
	state := m.states[key]

	if breached {
		if !state.active {
			state.active = true
			state.triggeredAt = now
			state.lastNotifiedAt = now
			m.states[key] = state
			return []alertEvent{{State: "triggered", Job: job, Signal: signal, Current: current, Threshold: threshold}}
		}

		if now.Sub(state.lastNotifiedAt) < m.cfg.Cooldown {
			return nil
		}
		state.lastNotifiedAt = now
		m.states[key] = state
		return []alertEvent{{State: "ongoing", Job: job, Signal: signal, Current: current, Threshold: threshold}}
	}

	if state.active {
		delete(m.states, key)
		return []alertEvent{{State: "resolved", Job: job, Signal: signal, Current: current, Threshold: threshold}}
	}

	return nil
}
