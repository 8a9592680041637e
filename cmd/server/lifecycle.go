package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/server"
)

func startHTTP(hub *chat.Hub, cfg server.Config, gatherer prometheus.Gatherer, logger *slog.Logger, errs chan<- error) *http.Server {
	mux := server.SetupRoutes(hub, cfg, gatherer, logger)
	httpServer := server.CreateServer(cfg.HTTPAddr, mux)
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			errs <- err
		}
	}()
	return httpServer
}

// shutdown stops intake first, then tells every session the server is going
// away, then waits for their transports to close.
func shutdown(listener *server.Listener, hub *chat.Hub, httpServer *http.Server, timeout time.Duration, logger *slog.Logger) {
	if err := listener.Close(); err != nil {
		logger.Warn("close chat listener", "error", err)
	}
	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, timeout, logger)
	}
	if err := hub.Shutdown(timeout); err != nil {
		logger.Warn("hub shutdown incomplete", "error", err)
	}
	if err := listener.Wait(timeout); err != nil {
		logger.Warn("connections still open after shutdown", "error", err)
	}
	logger.Info("server stopped")
}
