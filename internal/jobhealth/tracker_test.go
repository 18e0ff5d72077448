package jobhealth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

type trackerCall struct {
	op   string
	name string
	msg  string
	at   time.Time
}

type fakeHealthStore struct {
	calls []trackerCall
	err   error
}

func (f *fakeHealthStore) UpsertHeartbeat(ctx context.Context, name string, now time.Time) error {
	f.calls = append(f.calls, trackerCall{op: "heartbeat", name: name, at: now})
	return f.err
}

func (f *fakeHealthStore) UpsertSuccess(ctx context.Context, name string, now time.Time) error {
	f.calls = append(f.calls, trackerCall{op: "success", name: name, at: now})
	return f.err
}

func (f *fakeHealthStore) UpsertFailure(ctx context.Context, name, errMsg string, now time.Time) error {
	f.calls = append(f.calls, trackerCall{op: "failure", name: name, msg: errMsg, at: now})
	return f.err
}

func testTracker(store *fakeHealthStore) *Tracker {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	tr := NewTracker(store, logger)
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return tr
}

func TestTracker_Heartbeat(t *testing.T) {
	st := &fakeHealthStore{}
	tr := testTracker(st)

	tr.Heartbeat(context.Background(), "delivery-worker-pool")

	if len(st.calls) != 1 {
		t.Fatalf("expected one store call, got %d", len(st.calls))
	}
	call := st.calls[0]
	if call.op != "heartbeat" || call.name != "delivery-worker-pool" {
		t.Errorf("unexpected call %+v", call)
	}
	if !call.at.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("tracker did not use its own clock: %v", call.at)
	}
}

func TestTracker_ReportFailureCarriesMessage(t *testing.T) {
	st := &fakeHealthStore{}
	tr := testTracker(st)

	tr.ReportFailure(context.Background(), "delivery-worker-pool", errors.New("pg down"))

	if len(st.calls) != 1 || st.calls[0].op != "failure" {
		t.Fatalf("expected one failure call, got %+v", st.calls)
	}
	if st.calls[0].msg != "pg down" {
		t.Errorf("message = %q, want the job error", st.calls[0].msg)
	}
}

func TestTracker_ReportFailureNilError(t *testing.T) {
	st := &fakeHealthStore{}
	tr := testTracker(st)

	tr.ReportFailure(context.Background(), "reconciler", nil)

	if st.calls[0].msg != "unknown error" {
		t.Errorf("message = %q, want placeholder for nil error", st.calls[0].msg)
	}
}

func TestTracker_StoreErrorsAreSwallowed(t *testing.T) {
	st := &fakeHealthStore{err: errors.New("write failed")}
	tr := testTracker(st)

	// None of these may panic or propagate; health bookkeeping must never
	// take the job down.
	tr.Heartbeat(context.Background(), "j")
	tr.ReportSuccess(context.Background(), "j")
	tr.ReportFailure(context.Background(), "j", errors.New("boom"))

	if len(st.calls) != 3 {
		t.Errorf("expected all three writes attempted, got %d", len(st.calls))
	}
}
