package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/chat"
	"github.com/Tyrowin/linechat/internal/server"
)

var (
	configFile string
	host       string
	port       int
	httpAddr   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "linechat",
	Short: "Run the plaintext multi-client chat server",
	Long: `Run the plaintext multi-client chat server.

Clients connect over TCP and exchange newline-delimited lines. An optional
HTTP side server exposes a WebSocket gateway, health, stats and metrics.

Examples:
  # Listen on the default 127.0.0.1:8000
  linechat

  # Bind every interface and disable the HTTP side server
  linechat --host 0.0.0.0 --port 9000 --http off

  # Load settings from a file
  linechat --config linechat.toml --log-level debug`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "Configuration file (TOML)")
	rootCmd.Flags().StringVar(&host, "host", "", "TCP listen host (overrides config)")
	rootCmd.Flags().IntVar(&port, "port", 0, "TCP listen port (overrides config)")
	rootCmd.Flags().StringVar(&httpAddr, "http", "", `HTTP side server address, or "off"`)
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	cfg, err := server.LoadConfig(configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub, err := chat.NewHub(
		chat.WithLogger(logger),
		chat.WithPolicy(cfg.Policy()),
		chat.WithSendQueueSize(cfg.SendQueueSize),
		chat.WithMetrics(chat.NewMetrics(registry)),
	)
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}
	go hub.Run()

	listener, err := server.Listen(cfg.Addr(), hub, *cfg, logger)
	if err != nil {
		logger.Error("cannot bind chat listener", "addr", cfg.Addr(), "error", err)
		_ = hub.Shutdown(cfg.ShutdownTimeout())
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)
	go func() {
		if err := listener.Serve(); err != nil && !errors.Is(err, server.ErrListenerClosed) {
			errs <- fmt.Errorf("chat listener: %w", err)
		}
	}()

	var httpServer *http.Server
	if cfg.HTTPEnabled() {
		httpServer = startHTTP(hub, *cfg, registry, logger, errs)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errs:
		logger.Error("server failed", "error", err)
	}

	shutdown(listener, hub, httpServer, cfg.ShutdownTimeout(), logger)
	return err
}

func applyFlags(cmd *cobra.Command, cfg *server.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = host
	}
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = httpAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}
