/*
Package configs is responsible for loading and parsing the application's configuration settings.

It primarily configures server parameters by reading operating system environment variables,
including the running environment, port, CORS allowed origins, and the session-level limits
applied to individual connections.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string

	// Message rate limiting for paired connections (fixed window).
	MessageRateLimit  int
	MessageRateWindow time.Duration

	// Connection-acceptance limiting for the websocket endpoint (per IP).
	AcceptRateLimit  int
	AcceptRateWindow time.Duration

	// MaxFrameBytes bounds a single inbound websocket frame, which also bounds
	// inline file-attachment transfers.
	MaxFrameBytes int64
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type
// conversions and validation. It returns a pointer to the AppConfig struct and any error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Session Limits ---
	cfg.MessageRateLimit, err = intFromEnv("MESSAGE_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	if cfg.MessageRateLimit < 1 {
		return nil, fmt.Errorf("MESSAGE_RATE_LIMIT must be at least 1, got %d", cfg.MessageRateLimit)
	}

	windowSeconds, err := intFromEnv("MESSAGE_RATE_WINDOW_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	if windowSeconds < 1 {
		return nil, fmt.Errorf("MESSAGE_RATE_WINDOW_SECONDS must be at least 1, got %d", windowSeconds)
	}
	cfg.MessageRateWindow = time.Duration(windowSeconds) * time.Second

	cfg.AcceptRateLimit, err = intFromEnv("ACCEPT_RATE_LIMIT", 100)
	if err != nil {
		return nil, err
	}

	acceptWindowMinutes, err := intFromEnv("ACCEPT_RATE_WINDOW_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.AcceptRateWindow = time.Duration(acceptWindowMinutes) * time.Minute

	maxFrameMB, err := intFromEnv("MAX_FRAME_MB", 50)
	if err != nil {
		return nil, err
	}
	cfg.MaxFrameBytes = int64(maxFrameMB) << 20

	return cfg, nil
}

// intFromEnv reads an integer environment variable, falling back to def when unset.
func intFromEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}

	return value, nil
}
