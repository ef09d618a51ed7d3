// Package metrics exposes Prometheus collectors for the core pipeline and
// the HTTP boundary.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	FactsIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facts_ingested_total",
			Help: "Total number of facts written to the store",
		},
	)

	SearchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "facts_search_fallbacks_total",
			Help: "Searches served by substring matching instead of FTS",
		},
	)

	ChipsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chips_created_total",
			Help: "Total number of chips created, by band",
		},
		[]string{"band"},
	)

	ChipTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chip_transitions_total",
			Help: "Total number of chip state transitions, by action",
		},
		[]string{"action", "from", "to"},
	)

	ChipEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chip_escalations_total",
			Help: "Terminal chips re-opened by contradicting evidence",
		},
	)

	RetentionDismissals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chip_retention_dismissals_total",
			Help: "Open chips dismissed because cited evidence expired",
		},
	)
)

// Middleware records request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
