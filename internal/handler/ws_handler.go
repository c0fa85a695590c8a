/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for the per-IP accept
rate check, upgrading the HTTP connection to WebSocket, and starting the peer's pumps.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"pairchat/internal/app/session"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/limiter"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// A connection's profile attributes are not taken here; they arrive with the first
// join_queue event once the session is established.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		peer := session.NewPeer(deps.Coordinator, conn, deps.Config.MaxFrameBytes)
		deps.Coordinator.Register(peer.ID(), peer)

		go peer.WritePump()

		logx.Info("WebSocket connection established", "conn_id", peer.ID())

		peer.ReadPump()
	}
}
