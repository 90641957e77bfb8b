package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of model calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Model call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model"},
	)

	WeatherLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_lookups_total",
			Help: "Weather lookups by resolution path and outcome",
		},
		[]string{"path", "outcome"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Sessions currently held by the in-memory store",
		},
	)

	ChatInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_inflight_requests",
			Help: "Chat requests currently in flight",
		},
	)
	ChatRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_rejected_total",
			Help: "Chat requests rejected by the admission gate",
		},
	)
)

var initOnce sync.Once

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			WeatherLookupsTotal,
			SessionsActive,
			ChatInflight,
			ChatRejectedTotal,
		)
	})
}

// HTTPMetricsMiddleware records request totals and durations keyed by the chi
// route pattern so labels stay low-cardinality.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
