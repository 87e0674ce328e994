// Package metrics provides Prometheus instrumentation for the risk engine.
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
	// SubmissionsTotal counts accepted order-book submissions.
	SubmissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sealedbook_submissions_total",
		Help: "Total number of order-book submissions accepted",
	})

	// RevealRequestsTotal counts decryption requests issued, by kind.
	RevealRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sealedbook_reveal_requests_total",
		Help: "Total number of decryption requests issued",
	}, []string{"kind"})

	// OracleCallbacksTotal counts oracle callbacks, by outcome.
	OracleCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sealedbook_oracle_callbacks_total",
		Help: "Total number of oracle callbacks processed",
	}, []string{"result"})

	// PendingDecryptions tracks currently unresolved decryption requests.
	PendingDecryptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sealedbook_pending_decryptions",
		Help: "Number of unresolved decryption requests",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sealedbook_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sealedbook_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sealedbook_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Callback outcome labels for OracleCallbacksTotal.
const (
	ResultRevealed  = "revealed"
	ResultRejected  = "rejected"
	ResultDuplicate = "duplicate"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
