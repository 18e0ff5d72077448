package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leaseline/export-engine/internal/domain"
)

// JobStore reads job health snapshots.
type JobStore interface {
	GetJobHealth(ctx context.Context, name string) (*domain.JobHealth, error)
	ListJobHealth(ctx context.Context) ([]domain.JobHealth, error)
}

type JobHandler struct {
	store JobStore
}

func NewJobHandler(s JobStore) *JobHandler {
	return &JobHandler{store: s}
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.ListJobHealth(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list job health")
		return
	}

	out := make([]JobStatusResponse, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, newJobStatusResponse(s))
	}

	respondJSON(w, http.StatusOK, out)
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.store.GetJobHealth(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get job health")
		return
	}
	if snapshot == nil {
		respondError(w, http.StatusNotFound, "job has never reported")
		return
	}

	respondJSON(w, http.StatusOK, newJobStatusResponse(*snapshot))
}
