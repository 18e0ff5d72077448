package jobhealth

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/leaseline/export-engine/internal/domain"
)

func testMonitor() *Monitor {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewMonitor(MonitorConfig{
		Interval:         time.Second,
		StaleAfter:       2 * time.Minute,
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}, nil, logger)
}

func snapshot(name string, heartbeatAge time.Duration, failures int, now time.Time) domain.JobHealth {
	return domain.JobHealth{
		Name:                name,
		LastHeartbeat:       now.Add(-heartbeatAge),
		ConsecutiveFailures: failures,
	}
}

func TestMonitor_HealthySnapshotNoAlerts(t *testing.T) {
	m := testMonitor()
	now := time.Now()

	events := m.evaluate(now, []domain.JobHealth{snapshot("pool", time.Second, 0, now)})
	if len(events) != 0 {
		t.Errorf("healthy snapshot produced alerts: %+v", events)
	}
}

func TestMonitor_FailureThresholdTriggers(t *testing.T) {
	m := testMonitor()
	now := time.Now()

	events := m.evaluate(now, []domain.JobHealth{snapshot("pool", time.Second, 3, now)})
	if len(events) != 1 {
		t.Fatalf("expected one alert, got %+v", events)
	}
	e := events[0]
	if e.State != "triggered" || e.Signal != signalConsecutiveFailures || e.Job != "pool" {
		t.Errorf("unexpected alert %+v", e)
	}
	if e.Current != 3 || e.Threshold != 3 {
		t.Errorf("alert values %d/%d, want 3/3", e.Current, e.Threshold)
	}
}

func TestMonitor_CooldownSuppressesRepeat(t *testing.T) {
	m := testMonitor()
	now := time.Now()
	bad := []domain.JobHealth{snapshot("pool", time.Second, 5, now)}

	if events := m.evaluate(now, bad); len(events) != 1 || events[0].State != "triggered" {
		t.Fatalf("first evaluation: %+v", events)
	}

	// Still breached one minute later, inside the cooldown: silence.
	later := now.Add(time.Minute)
	bad[0].LastHeartbeat = later.Add(-time.Second)
	if events := m.evaluate(later, bad); len(events) != 0 {
		t.Errorf("within cooldown: %+v, want none", events)
	}

	// Past the cooldown the alert renews as ongoing.
	later = now.Add(6 * time.Minute)
	bad[0].LastHeartbeat = later.Add(-time.Second)
	events := m.evaluate(later, bad)
	if len(events) != 1 || events[0].State != "ongoing" {
		t.Errorf("past cooldown: %+v, want one ongoing", events)
	}
}

func TestMonitor_RecoveryResolves(t *testing.T) {
	m := testMonitor()
	now := time.Now()

	m.evaluate(now, []domain.JobHealth{snapshot("pool", time.Second, 4, now)})

	later := now.Add(time.Minute)
	events := m.evaluate(later, []domain.JobHealth{snapshot("pool", time.Second, 0, later)})
	if len(events) != 1 || events[0].State != "resolved" {
		t.Fatalf("after recovery: %+v, want one resolved", events)
	}

	// Resolved once; staying healthy raises nothing further.
	if events := m.evaluate(later.Add(time.Minute), []domain.JobHealth{snapshot("pool", time.Second, 0, later.Add(time.Minute))}); len(events) != 0 {
		t.Errorf("steady healthy state: %+v, want none", events)
	}
}

func TestMonitor_StaleHeartbeatTriggers(t *testing.T) {
	m := testMonitor()
	now := time.Now()

	events := m.evaluate(now, []domain.JobHealth{snapshot("reconciler", 3*time.Minute, 0, now)})
	if len(events) != 1 {
		t.Fatalf("expected one alert, got %+v", events)
	}
	if events[0].Signal != signalStaleHeartbeat || events[0].State != "triggered" {
		t.Errorf("unexpected alert %+v", events[0])
	}
}

func TestMonitor_SignalsAreIndependentPerJob(t *testing.T) {
	m := testMonitor()
	now := time.Now()

	events := m.evaluate(now, []domain.JobHealth{
		snapshot("pool", time.Second, 5, now),
		snapshot("reconciler", 10*time.Minute, 0, now),
	})

	if len(events) != 2 {
		t.Fatalf("expected two independent alerts, got %+v", events)
	}
	seen := map[string]string{}
	for _, e := range events {
		seen[e.Job] = e.Signal
	}
	if seen["pool"] != signalConsecutiveFailures || seen["reconciler"] != signalStaleHeartbeat {
		t.Errorf("alerts misattributed: %+v", seen)
	}
}
