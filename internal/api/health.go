package api

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one backing dependency (Postgres, Redis).
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler returns the health check handler. With no checks it always
// reports healthy; with checks it probes each dependency and reports 503 if
// any fail.
func HealthHandler(checks ...HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
		}
		status := http.StatusOK

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
			for _, c := range checks {
				if err := c.Probe(ctx); err != nil {
					resp.Checks[c.Name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
				} else {
					resp.Checks[c.Name] = "ok"
				}
			}
		}

		respondJSON(w, status, resp)
	}
}
