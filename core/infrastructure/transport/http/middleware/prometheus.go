package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Requests that match no route share one series.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercluster_http_requests_total",
			Help: "HTTP requests served, by worker and chi route pattern",
		},
		[]string{"worker", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypercluster_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, websocket sessions excluded",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"worker", "method", "route"},
	)

	httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hypercluster_http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"worker", "method", "route"},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hypercluster_http_requests_in_flight",
			Help: "Requests and websocket sessions currently open on a worker",
		},
		[]string{"worker"},
	)
)

// Metrics returns middleware recording request metrics for one worker of
// the pool. Every worker serves the same port, so the worker label is what
// tells their series apart.
func Metrics(worker string) func(http.Handler) http.Handler {
	labels := prometheus.Labels{"worker": worker}
	requests := httpRequestsTotal.MustCurryWith(labels)
	duration := httpRequestDuration.MustCurryWith(labels)
	responseSize := httpResponseSize.MustCurryWith(labels)
	inFlight := httpInFlight.With(labels)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			inFlight.Inc()
			defer inFlight.Dec()

			// The wrapper keeps http.Hijacker so /ws upgrades still work.
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			// a hijacked upgrade never goes through WriteHeader
			status := ww.Status()
			upgraded := status == 0 && websocket.IsWebSocketUpgrade(r)
			switch {
			case upgraded:
				status = http.StatusSwitchingProtocols
			case status == 0:
				status = http.StatusOK
			}

			requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			if upgraded {
				return
			}
			duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			if n := ww.BytesWritten(); n > 0 {
				responseSize.WithLabelValues(r.Method, route).Observe(float64(n))
			}
		})
	}
}
