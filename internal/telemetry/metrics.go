package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	DeliveredCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_delivered_total", Help: "Export events delivered successfully"})
	RetriedCounter    = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_retried_total", Help: "Delivery attempts that failed and were rescheduled"})
	AbandonedCounter  = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_abandoned_total", Help: "Export events abandoned after terminal failure"})
	BreakerSkips      = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_breaker_skipped_total", Help: "Claims released because the target host breaker was open"})
	RateLimitSkips    = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_rate_limited_total", Help: "Claims released because the target host rate limit was hit"})
	StaleOutcomeDrops = prometheus.NewCounter(prometheus.CounterOpts{Name: "exports_stale_outcomes_total", Help: "Outcome writes rejected because the claim lease was gone"})
	DueGauge          = prometheus.NewGauge(prometheus.GaugeOpts{Name: "exports_due_events", Help: "Events currently eligible for claim"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "exports_inflight_attempts", Help: "Delivery attempts currently in progress"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			DeliveredCounter,
			RetriedCounter,
			AbandonedCounter,
			BreakerSkips,
			RateLimitSkips,
			StaleOutcomeDrops,
			DueGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
