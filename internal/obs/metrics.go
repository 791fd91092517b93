package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP and authorization metrics shared by the whole service.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_decisions_total",
			Help: "Authentication gate outcomes.",
		},
		[]string{"outcome"},
	)

	sessionsReplacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_sessions_replaced_total",
		Help: "Prior sessions deleted when a new session was issued.",
	})

	actionTokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_action_tokens_issued_total",
			Help: "Action tokens issued, by action type set.",
		},
		[]string{"types"},
	)

	actionTokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_action_tokens_consumed_total",
			Help: "Action tokens validated and revoked, by action type set.",
		},
		[]string{"types"},
	)
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		authDecisionsTotal,
		sessionsReplacedTotal,
		actionTokensIssuedTotal,
		actionTokensConsumedTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthDecision records one gate outcome ("allowed", "denied", "unauthenticated").
func AuthDecision(outcome string) {
	authDecisionsTotal.WithLabelValues(outcome).Inc()
}

// SessionsReplaced records prior sessions removed by a session replacement.
func SessionsReplaced(n int64) {
	if n > 0 {
		sessionsReplacedTotal.Add(float64(n))
	}
}

// ActionTokenIssued records one issued action token.
func ActionTokenIssued(types string) {
	actionTokensIssuedTotal.WithLabelValues(types).Inc()
}

// ActionTokenConsumed records one validated-and-revoked action token.
func ActionTokenConsumed(types string) {
	actionTokensConsumedTotal.WithLabelValues(types).Inc()
}

// Instrument wraps next with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
