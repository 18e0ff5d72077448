package api

import (
	"context"
	"net/http"
	"time"

	"github.com/leaseline/export-engine/internal/engine"
	"github.com/leaseline/export-engine/internal/store"
)

// StatsStore reads aggregate delivery state.
type StatsStore interface {
	GetDeliveryStats(ctx context.Context) (*store.DeliveryStats, error)
	CountDue(ctx context.Context, now time.Time) (int64, error)
	ListTargetHosts(ctx context.Context, limit int) ([]string, error)
}

// ClientCounter reports connected ops feed clients.
type ClientCounter interface {
	ClientCount() int
}

type StatsHandler struct {
	store   StatsStore
	breaker *engine.CircuitBreaker
	clients ClientCounter
}

func NewStatsHandler(s StatsStore, cb *engine.CircuitBreaker, clients ClientCounter) *StatsHandler {
	return &StatsHandler{store: s, breaker: cb, clients: clients}
}

// Stats returns aggregate delivery counts for the ops dashboard.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetDeliveryStats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery stats")
		return
	}

	due, err := h.store.CountDue(r.Context(), time.Now())
	if err != nil {
		due = 0
	}

	type statsResponse struct {
		store.DeliveryStats
		DueEvents        int64 `json:"due_events"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	resp := statsResponse{
		DeliveryStats: *stats,
		DueEvents:     due,
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

// Targets returns the destination hosts with undelivered work and the
// circuit breaker state protecting each of them.
func (h *StatsHandler) Targets(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.store.ListTargetHosts(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list target hosts")
		return
	}

	type targetHealth struct {
		Host           string                     `json:"host"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	result := make([]targetHealth, 0, len(hosts))
	for _, host := range hosts {
		var state engine.CircuitBreakerState
		if h.breaker != nil {
			state = h.breaker.GetState(r.Context(), host)
		}
		result = append(result, targetHealth{Host: host, CircuitBreaker: state})
	}

	respondJSON(w, http.StatusOK, result)
}
