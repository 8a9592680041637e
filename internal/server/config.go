// Package server provides configuration helpers that define runtime defaults,
// validation, and the file and environment sources for the linechat service.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/Tyrowin/linechat/internal/moderation"
)

// HTTPDisabled turns the HTTP side server off when used as HTTPAddr.
const HTTPDisabled = "off"

// AcceptLimitConfig bounds how fast the TCP listener accepts new connections.
type AcceptLimitConfig struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

// ModerationConfig holds the complaint and quota thresholds.
type ModerationConfig struct {
	ComplaintThreshold int `toml:"complaint_threshold"`
	BanMinutes         int `toml:"ban_minutes"`
	MessageLimit       int `toml:"message_limit"`
	RateWindowMinutes  int `toml:"rate_window_minutes"`
}

// Config holds the server configuration settings.
type Config struct {
	Host                   string            `toml:"host"`
	Port                   int               `toml:"port"`
	HTTPAddr               string            `toml:"http_addr"`
	AllowedOrigins         []string          `toml:"allowed_origins"`
	MaxMessageSize         int               `toml:"max_message_size"`
	MaxConnections         int               `toml:"max_connections"`
	SendQueueSize          int               `toml:"send_queue_size"`
	WriteTimeoutSeconds    int               `toml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int               `toml:"shutdown_timeout_seconds"`
	LogLevel               string            `toml:"log_level"`
	AcceptLimit            AcceptLimitConfig `toml:"accept_limit"`
	Moderation             ModerationConfig  `toml:"moderation"`
}

func defaultConfig() Config {
	return Config{
		Host:     "127.0.0.1",
		Port:     8000,
		HTTPAddr: "127.0.0.1:8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		},
		MaxMessageSize:         4096,
		MaxConnections:         1024,
		SendQueueSize:          256,
		WriteTimeoutSeconds:    10,
		ShutdownTimeoutSeconds: 10,
		LogLevel:               "info",
		AcceptLimit: AcceptLimitConfig{
			PerSecond: 50,
			Burst:     100,
		},
		Moderation: ModerationConfig{
			ComplaintThreshold: moderation.DefaultComplaintThreshold,
			BanMinutes:         int(moderation.DefaultBanDuration / time.Minute),
			MessageLimit:       moderation.DefaultMessageLimit,
			RateWindowMinutes:  int(moderation.DefaultRateWindow / time.Minute),
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = def.Host
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = def.Port
	}
	if strings.TrimSpace(cfg.HTTPAddr) == "" {
		cfg.HTTPAddr = def.HTTPAddr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.WriteTimeoutSeconds <= 0 {
		cfg.WriteTimeoutSeconds = def.WriteTimeoutSeconds
	}
	if cfg.ShutdownTimeoutSeconds <= 0 {
		cfg.ShutdownTimeoutSeconds = def.ShutdownTimeoutSeconds
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		cfg.LogLevel = def.LogLevel
	}

	if cfg.AcceptLimit.PerSecond < 0 {
		cfg.AcceptLimit.PerSecond = def.AcceptLimit.PerSecond
	}
	if cfg.AcceptLimit.Burst <= 0 {
		cfg.AcceptLimit.Burst = def.AcceptLimit.Burst
	}

	if cfg.Moderation.ComplaintThreshold <= 0 {
		cfg.Moderation.ComplaintThreshold = def.Moderation.ComplaintThreshold
	}
	if cfg.Moderation.BanMinutes <= 0 {
		cfg.Moderation.BanMinutes = def.Moderation.BanMinutes
	}
	if cfg.Moderation.MessageLimit <= 0 {
		cfg.Moderation.MessageLimit = def.Moderation.MessageLimit
	}
	if cfg.Moderation.RateWindowMinutes <= 0 {
		cfg.Moderation.RateWindowMinutes = def.Moderation.RateWindowMinutes
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfig builds the configuration from defaults, the TOML file at path
// (skipped when path is empty) and then the environment.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		mergeConfig(&cfg, fileCfg)
	}

	applyEnv(&cfg)
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	var fc Config
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// mergeConfig copies every field set in src onto dst.
func mergeConfig(dst *Config, src Config) {
	if src.Host != "" {
		dst.Host = src.Host
	}
	if src.Port != 0 {
		dst.Port = src.Port
	}
	if src.HTTPAddr != "" {
		dst.HTTPAddr = src.HTTPAddr
	}
	if len(src.AllowedOrigins) > 0 {
		dst.AllowedOrigins = src.AllowedOrigins
	}
	if src.MaxMessageSize != 0 {
		dst.MaxMessageSize = src.MaxMessageSize
	}
	if src.MaxConnections != 0 {
		dst.MaxConnections = src.MaxConnections
	}
	if src.SendQueueSize != 0 {
		dst.SendQueueSize = src.SendQueueSize
	}
	if src.WriteTimeoutSeconds != 0 {
		dst.WriteTimeoutSeconds = src.WriteTimeoutSeconds
	}
	if src.ShutdownTimeoutSeconds != 0 {
		dst.ShutdownTimeoutSeconds = src.ShutdownTimeoutSeconds
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.AcceptLimit.PerSecond != 0 {
		dst.AcceptLimit.PerSecond = src.AcceptLimit.PerSecond
	}
	if src.AcceptLimit.Burst != 0 {
		dst.AcceptLimit.Burst = src.AcceptLimit.Burst
	}
	if src.Moderation.ComplaintThreshold != 0 {
		dst.Moderation.ComplaintThreshold = src.Moderation.ComplaintThreshold
	}
	if src.Moderation.BanMinutes != 0 {
		dst.Moderation.BanMinutes = src.Moderation.BanMinutes
	}
	if src.Moderation.MessageLimit != 0 {
		dst.Moderation.MessageLimit = src.Moderation.MessageLimit
	}
	if src.Moderation.RateWindowMinutes != 0 {
		dst.Moderation.RateWindowMinutes = src.Moderation.RateWindowMinutes
	}
}

func applyEnv(cfg *Config) {
	if host := os.Getenv("CHAT_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("CHAT_PORT"); port != "" {
		cfg.Port = parsePort(port, cfg.Port)
	}
	if addr := os.Getenv("CHAT_HTTP_ADDR"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("CHAT_MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseIntValue(maxSize, cfg.MaxMessageSize)
	}
	if maxConns := os.Getenv("CHAT_MAX_CONNECTIONS"); maxConns != "" {
		cfg.MaxConnections = parseIntValue(maxConns, cfg.MaxConnections)
	}
	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if threshold := os.Getenv("CHAT_COMPLAINT_THRESHOLD"); threshold != "" {
		cfg.Moderation.ComplaintThreshold = parseIntValue(threshold, cfg.Moderation.ComplaintThreshold)
	}
	if ban := os.Getenv("CHAT_BAN_MINUTES"); ban != "" {
		cfg.Moderation.BanMinutes = parseIntValue(ban, cfg.Moderation.BanMinutes)
	}
	if limit := os.Getenv("CHAT_MESSAGE_LIMIT"); limit != "" {
		cfg.Moderation.MessageLimit = parseIntValue(limit, cfg.Moderation.MessageLimit)
	}
	if window := os.Getenv("CHAT_RATE_WINDOW_MINUTES"); window != "" {
		cfg.Moderation.RateWindowMinutes = parseIntValue(window, cfg.Moderation.RateWindowMinutes)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parsePort(value string, defaultValue int) int {
	if port, err := strconv.Atoi(value); err == nil && port >= 0 && port <= 65535 {
		return port
	}
	return defaultValue
}

// Addr returns the TCP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HTTPEnabled reports whether the HTTP side server should run.
func (c Config) HTTPEnabled() bool {
	return !strings.EqualFold(strings.TrimSpace(c.HTTPAddr), HTTPDisabled)
}

// Policy converts the moderation settings.
func (c Config) Policy() moderation.Policy {
	return moderation.Policy{
		ComplaintThreshold: c.Moderation.ComplaintThreshold,
		BanDuration:        time.Duration(c.Moderation.BanMinutes) * time.Minute,
		MessageLimit:       c.Moderation.MessageLimit,
		RateWindow:         time.Duration(c.Moderation.RateWindowMinutes) * time.Minute,
	}
}

// WriteTimeout bounds a single payload write to a client.
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds each graceful shutdown phase.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
