/*
Package handler provides the HTTP handlers and routing setup for the pairchat server.

This file defines the main Router, applying necessary middleware like logging, CORS,
metrics, and IP-based rate limiting before delegating requests to the WebSocket handler.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"pairchat/internal/metrics"
	"pairchat/internal/pkg/limiter"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes the per-IP connection-acceptance limiter, configures CORS, and
// applies global middleware before mounting the health, metrics, and WebSocket routes.
func Router(deps *AppDeps) http.Handler {
	// Coarse accept limit for the websocket endpoint, e.g. 100 requests / 15 minutes per IP.
	acceptRate := rate.Limit(float64(deps.Config.AcceptRateLimit) / deps.Config.AcceptRateWindow.Seconds())
	acceptLimiter := limiter.NewIPRateLimiter(acceptRate, deps.Config.AcceptRateLimit)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.Environment == "development" {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.Environment == "development" {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		connections, queued, rooms := deps.Coordinator.Stats()

		data := map[string]any{
			"status":      "ok",
			"service":     "Pairchat Server",
			"connections": connections,
			"queued":      queued,
			"rooms":       rooms,
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", HandleWebSocket(wsUpgrader, acceptLimiter, deps))

	return r
}
