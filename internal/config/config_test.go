package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.ActivityWindow != 30*time.Minute {
		t.Fatalf("ActivityWindow = %v, want 30m default", cfg.ActivityWindow)
	}
	if cfg.ContextWindow != 5 {
		t.Fatalf("ContextWindow = %d, want 5 default", cfg.ContextWindow)
	}
	if cfg.GenAIMode != "auto" {
		t.Fatalf("GenAIMode = %q, want %q", cfg.GenAIMode, "auto")
	}
	if len(cfg.WorkerURLs) != 0 {
		t.Fatalf("WorkerURLs = %v, want empty default", cfg.WorkerURLs)
	}
}

func TestLoadParsesWorkerURLList(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("WORKER_URLS", " http://localhost:10002 , http://localhost:10003 ,,http://localhost:10004")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"http://localhost:10002", "http://localhost:10003", "http://localhost:10004"}
	if len(cfg.WorkerURLs) != len(want) {
		t.Fatalf("WorkerURLs = %v, want %v", cfg.WorkerURLs, want)
	}
	for i := range want {
		if cfg.WorkerURLs[i] != want[i] {
			t.Fatalf("WorkerURLs[%d] = %q, want %q", i, cfg.WorkerURLs[i], want[i])
		}
	}
}

func TestLoadRejectsTinyActivityWindow(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ACTIVITY_WINDOW", "10s")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted a sub-minute activity window")
	}
}

func TestLoadRejectsUnknownGenAIMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GENAI_MODE", "grpc")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() accepted GENAI_MODE=grpc")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_ACTIVITY_WINDOW",
		"APP_CONTEXT_WINDOW",
		"GENAI_MODE",
		"GENAI_HTTP_URL",
		"GENAI_MODEL",
		"WORKER_URLS",
		"DISPATCH_TIMEOUT",
		"DISCOVERY_TIMEOUT",
		"DISCOVERY_ATTEMPTS",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
