package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/casepilot/internal/approval"
	"github.com/antoniostano/casepilot/internal/config"
	"github.com/antoniostano/casepilot/internal/conversation"
	"github.com/antoniostano/casepilot/internal/dispatch"
	"github.com/antoniostano/casepilot/internal/genai"
	"github.com/antoniostano/casepilot/internal/httpapi"
	"github.com/antoniostano/casepilot/internal/intent"
	"github.com/antoniostano/casepilot/internal/observability"
	"github.com/antoniostano/casepilot/internal/orchestrator"
	"github.com/antoniostano/casepilot/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := conversation.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer store.Close()

	activityStore, err := approval.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("activity store init failed: %v", err)
	}
	defer activityStore.Close()
	approvals := approval.NewService(activityStore, metrics.PendingApprovals)
	approvals.SyncPendingGauge(ctx)

	backend, err := genai.NewClient(cfg.GenAIMode, cfg.GenAIHTTPURL, cfg.GenAIModel)
	if err != nil {
		log.Fatalf("genai client init failed: %v", err)
	}
	log.Printf("genai backend: %s", backend.Name())

	client := dispatch.NewClient(cfg.DispatchTimeout)

	discoveryCtx, discoveryCancel := context.WithTimeout(ctx, cfg.DiscoveryTimeout)
	table := orchestrator.DiscoverWorkers(discoveryCtx, client, cfg.WorkerURLs, cfg.DiscoveryAttempts)
	discoveryCancel()
	log.Printf("routing table: %d action kinds claimed by workers", len(table))

	sessions := session.NewManager(store, cfg.ActivityWindow)
	router := intent.NewRouter(backend, table)

	orch := orchestrator.New(
		sessions,
		store,
		router,
		client,
		backend,
		approvals,
		metrics,
		cfg.ContextWindow,
	)

	api := httpapi.New(cfg, store, sessions, orch, approvals, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
