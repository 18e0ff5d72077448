package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leaseline/export-engine/internal/engine"
	"github.com/leaseline/export-engine/internal/telemetry"
	ws "github.com/leaseline/export-engine/internal/websocket"
)

// Stores bundles the persistence interfaces the handlers read through. The
// Postgres store satisfies all of them.
type Stores struct {
	Events EventStore
	Jobs   JobStore
	Stats  StatsStore

	// HealthChecks probe the backing dependencies for /api/v1/health.
	HealthChecks []HealthCheck
}

// NewRouter creates and configures the HTTP router.
func NewRouter(stores Stores, cb *engine.CircuitBreaker, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	eventHandler := NewEventHandler(stores.Events)
	jobHandler := NewJobHandler(stores.Jobs)

	var clients ClientCounter
	if hub != nil {
		clients = hub
	}
	statsHandler := NewStatsHandler(stores.Stats, cb, clients)

	// WebSocket ops feed
	if hub != nil {
		r.Get("/ws", hub.HandleWebSocket)
	}

	// Prometheus
	r.Handle("/metrics", telemetry.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(stores.HealthChecks...))

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Create)
			r.Get("/", eventHandler.List)
			r.Get("/{eventID}", eventHandler.Get)
			r.Post("/{eventID}/requeue", eventHandler.Requeue)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobHandler.List)
			r.Get("/{name}", jobHandler.Get)
		})

		r.Get("/stats", statsHandler.Stats)
		r.Get("/targets", statsHandler.Targets)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Org-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
