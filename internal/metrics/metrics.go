/*
Package metrics defines the Prometheus collectors exposed by the server.

Collectors cover both the HTTP boundary (request counts and latency) and the
session core (active connections, queue depth, rooms, relayed messages).
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActiveConnections tracks the number of websocket sessions currently open.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_connections",
		Help: "Current number of active websocket connections",
	})

	// QueueDepth tracks how many connections are waiting for a partner.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_queue_depth",
		Help: "Current number of connections waiting in the matchmaking queue",
	})

	// ActiveRooms tracks the number of live pairings.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pairchat_active_rooms",
		Help: "Current number of active two-party rooms",
	})

	// MessagesRelayed counts messages delivered to a partner.
	MessagesRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_relayed_total",
		Help: "Total number of chat messages relayed to a partner",
	})

	// MessagesRateLimited counts messages dropped by the per-connection limiter.
	MessagesRateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_messages_rate_limited_total",
		Help: "Total number of chat messages rejected by the per-connection rate limiter",
	})

	// PairsFormed counts rooms created by the matcher.
	PairsFormed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pairchat_pairs_formed_total",
		Help: "Total number of pairings formed",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration observes HTTP request latency in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		ActiveConnections,
		QueueDepth,
		ActiveRooms,
		MessagesRelayed,
		MessagesRateLimited,
		PairsFormed,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// HTTPMiddleware records basic request metrics for Prometheus scraping.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(ww.Status()),
		}
		HTTPRequestsTotal.With(labels).Inc()
		HTTPRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}
