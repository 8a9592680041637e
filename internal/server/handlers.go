package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/linechat/internal/chat"
)

const statsTimeout = 2 * time.Second

// WebSocketHandler upgrades GET requests from allowed origins and serves the
// connection on hub until the client leaves.
func WebSocketHandler(hub *chat.Hub, cfg Config, logger *slog.Logger) http.HandlerFunc {
	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		if err := hub.Serve(newWSConn(conn, cfg.MaxMessageSize, cfg.WriteTimeout())); err != nil {
			logger.Debug("websocket session refused by hub", "remote", r.RemoteAddr, "error", err)
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "linechat server is running!")
}

// StatsHandler reports live sessions, their nicknames and pending delayed
// broadcasts as JSON.
func StatsHandler(hub *chat.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		defer cancel()

		stats, err := hub.Stats(ctx)
		if err != nil {
			logger.Warn("stats unavailable", "error", err)
			http.Error(w, "chat hub unavailable", http.StatusServiceUnavailable)
			return
		}

		out, err := sonic.Marshal(stats)
		if err != nil {
			logger.Error("encode stats", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(out)
	}
}
