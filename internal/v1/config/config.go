package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the proxy process.
type Config struct {
	// PORT the HTTP/WebSocket listener binds to.
	Port string

	// ShutdownTimeout bounds graceful drain of in-flight connections.
	ShutdownTimeout time.Duration

	// MaxReconnectAttempts is parsed and validated but never consulted by
	// Room — see DESIGN.md's Open Question decisions.
	MaxReconnectAttempts int

	// HeartbeatInterval is how often an open Upstream Link sends the
	// single-byte 'c' heartbeat frame.
	HeartbeatInterval time.Duration

	// ConnectionTimeout bounds the upstream dial handshake.
	ConnectionTimeout time.Duration

	LogLevel string
	GoEnv    string // development | production | test

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	RateLimitWsIP string

	OtelCollectorAddr string
}

// ValidateEnv validates all environment variables and returns a Config.
// All problems found are reported together, not just the first.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	cfg.Port = getEnvOrDefault("PORT", "3001")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	if v, err := parseNonNegativeMillis("SHUTDOWN_TIMEOUT_MS", 30000); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.ShutdownTimeout = v
	}

	if v, err := parseNonNegativeInt("MAX_RECONNECT_ATTEMPTS", 5); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.MaxReconnectAttempts = v
	}

	if v, err := parseNonNegativeMillis("HEARTBEAT_INTERVAL", 30000); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.HeartbeatInterval = v
	}

	if v, err := parseNonNegativeMillis("CONNECTION_TIMEOUT", 10000); err != nil {
		errs = append(errs, err.Error())
	} else {
		cfg.ConnectionTimeout = v
	}

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	switch cfg.GoEnv {
	case "development", "production", "test":
	default:
		errs = append(errs, fmt.Sprintf("GO_ENV must be one of development|production|test (got '%s')", cfg.GoEnv))
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)
	return cfg, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got '%s')", key, raw)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be >= 0 (got %d)", key, v)
	}
	return v, nil
}

func parseNonNegativeMillis(key string, defMillis int) (time.Duration, error) {
	v, err := parseNonNegativeInt(key, defMillis)
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Millisecond, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}
	return parts[0] != ""
}

func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"port", cfg.Port,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"max_reconnect_attempts", cfg.MaxReconnectAttempts,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"connection_timeout", cfg.ConnectionTimeout,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"redis_enabled", cfg.RedisEnabled,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
