package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the orchestration service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// ActivityWindow bounds how stale a session may be and still be
	// offered to the router as a continuation candidate.
	ActivityWindow time.Duration
	// ContextWindow is how many recent messages feed the intent classifier.
	ContextWindow int

	GenAIMode    string
	GenAIHTTPURL string
	GenAIModel   string

	WorkerURLs        []string
	DispatchTimeout   time.Duration
	DiscoveryTimeout  time.Duration
	DiscoveryAttempts int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "casepilot"),
		AllowAnyOrigin:    false,
		GenAIMode:         envOrDefault("GENAI_MODE", "auto"),
		GenAIHTTPURL:      stringsTrimSpace("GENAI_HTTP_URL"),
		GenAIModel:        envOrDefault("GENAI_MODEL", "gemini-2.0-flash"),
		WorkerURLs:        splitList(os.Getenv("WORKER_URLS")),
		DatabaseURL:       stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:   15 * time.Second,
		ActivityWindow:    30 * time.Minute,
		ContextWindow:     5,
		DispatchTimeout:   60 * time.Second,
		DiscoveryTimeout:  10 * time.Second,
		DiscoveryAttempts: 3,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ActivityWindow, err = durationFromEnv("APP_ACTIVITY_WINDOW", cfg.ActivityWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextWindow, err = intFromEnv("APP_CONTEXT_WINDOW", cfg.ContextWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.DispatchTimeout, err = durationFromEnv("DISPATCH_TIMEOUT", cfg.DispatchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DiscoveryTimeout, err = durationFromEnv("DISCOVERY_TIMEOUT", cfg.DiscoveryTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DiscoveryAttempts, err = intFromEnv("DISCOVERY_ATTEMPTS", cfg.DiscoveryAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.ActivityWindow < time.Minute {
		return Config{}, fmt.Errorf("APP_ACTIVITY_WINDOW must be at least 1m")
	}
	if cfg.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("APP_CONTEXT_WINDOW must be positive")
	}
	if cfg.DispatchTimeout <= 0 {
		return Config{}, fmt.Errorf("DISPATCH_TIMEOUT must be positive")
	}
	if cfg.DiscoveryAttempts <= 0 {
		return Config{}, fmt.Errorf("DISCOVERY_ATTEMPTS must be positive")
	}
	switch cfg.GenAIMode {
	case "auto", "http", "mock":
	default:
		return Config{}, fmt.Errorf("GENAI_MODE must be auto, http, or mock")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = trimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
