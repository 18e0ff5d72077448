package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/leaseline/export-engine/internal/domain"
)

type fakeJobStore struct {
	snapshots map[string]domain.JobHealth
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{snapshots: map[string]domain.JobHealth{}}
}

func (f *fakeJobStore) GetJobHealth(ctx context.Context, name string) (*domain.JobHealth, error) {
	h, ok := f.snapshots[name]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (f *fakeJobStore) ListJobHealth(ctx context.Context) ([]domain.JobHealth, error) {
	out := []domain.JobHealth{}
	for _, h := range f.snapshots {
		out = append(out, h)
	}
	return out, nil
}

func TestGetJob_Snapshot(t *testing.T) {
	jobs := newFakeJobStore()
	errMsg := "pg down"
	errAt := time.Now().Add(-time.Minute)
	jobs.snapshots["delivery-worker-pool"] = domain.JobHealth{
		Name:                "delivery-worker-pool",
		LastHeartbeat:       time.Now(),
		LastError:           &errMsg,
		LastErrorAt:         &errAt,
		ConsecutiveFailures: 2,
	}
	router := testRouter(newFakeEventStore(), jobs)

	rr := doRequest(router, http.MethodGet, "/api/v1/jobs/delivery-worker-pool", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp JobStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Name != "delivery-worker-pool" || resp.ConsecutiveFailures != 2 {
		t.Errorf("unexpected projection %+v", resp)
	}
	if resp.LastError == nil || *resp.LastError != "pg down" {
		t.Errorf("last_error = %v, want pg down", resp.LastError)
	}
}

func TestGetJob_NeverReported(t *testing.T) {
	router := testRouter(newFakeEventStore(), newFakeJobStore())

	rr := doRequest(router, http.MethodGet, "/api/v1/jobs/no-such-job", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestListJobs(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.snapshots["a"] = domain.JobHealth{Name: "a", LastHeartbeat: time.Now()}
	jobs.snapshots["b"] = domain.JobHealth{Name: "b", LastHeartbeat: time.Now()}
	router := testRouter(newFakeEventStore(), jobs)

	rr := doRequest(router, http.MethodGet, "/api/v1/jobs", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp []JobStatusResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp) != 2 {
		t.Errorf("got %d snapshots, want 2", len(resp))
	}
}
