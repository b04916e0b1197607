package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/agendmed/cmd/mainconfig"
	"github.com/wolfman30/agendmed/internal/api/router"
	"github.com/wolfman30/agendmed/internal/app/bootstrap"
	"github.com/wolfman30/agendmed/internal/channels/telegram"
	"github.com/wolfman30/agendmed/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/agendmed/internal/config"
	"github.com/wolfman30/agendmed/internal/conversation"
	"github.com/wolfman30/agendmed/internal/http/handlers"
	"github.com/wolfman30/agendmed/internal/messaging"
	"github.com/wolfman30/agendmed/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agendmed API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"channel", cfg.Channel,
	)

	warnings, err := cfg.Validate()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, registry := setupMetrics()
	core, err := bootstrap.BuildCore(ctx, cfg, registry, logger)
	if err != nil {
		logger.Error("failed to build booking stack", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	queue, err := mainconfig.BuildConversationQueue(ctx, cfg)
	if err != nil {
		logger.Error("failed to build conversation queue", "error", err)
		os.Exit(1)
	}
	publisher := conversation.NewPublisher(queue, logger)

	// With the in-process queue nothing else consumes it, so the API runs the
	// worker and the outbox deliverer itself.
	worker := setupInlineWorker(ctx, cfg, core, queue, logger)

	if core.Outbound.TelegramAPI != nil {
		poller := telegram.NewPoller(core.Outbound.TelegramAPI, publisher, core.Metrics, logger)
		go func() {
			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("telegram poller stopped", "error", err)
			}
		}()
	}

	r := router.New(buildRouterConfig(cfg, core, publisher, metricsHandler, logger))

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(worker, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (http.Handler, prometheus.Registerer) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func buildRouterConfig(cfg *appconfig.Config, core *bootstrap.Core, enqueuer messaging.Enqueuer, metricsHandler http.Handler, logger *logging.Logger) *router.Config {
	routerCfg := &router.Config{
		Logger:             logger,
		MessagingHandler:   messaging.NewHandler(enqueuer, core.Metrics, logger),
		Channel:            handlers.NewChannelHandler(core.Tenants, core.Channel, logger).WithAuditor(core.Audit),
		Conversations:      handlers.NewConversationsHandler(core.Transcripts, logger).WithAuditor(core.Audit),
		Bookings:           handlers.NewBookingsHandler(core.Bookings, logger).WithAuditor(core.Audit),
		Sessions:           handlers.NewSessionsHandler(core.Machine, logger).WithAuditor(core.Audit),
		Catalog:            handlers.NewCatalogHandler(core.Catalog, logger).WithAuditor(core.Audit),
		Audit:              handlers.NewAuditHandler(core.Audit, logger),
		Health:             handlers.NewHealthHandler(buildHealthChecks(core)),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		AdminAuthOptional:  !cfg.IsProduction() && cfg.AdminJWTSecret == "",
		PublicRateLimit:    cfg.APIRateLimit,
		PublicRateBurst:    cfg.APIRateBurst,
	}
	if cfg.WhatsAppVerifyToken != "" || cfg.Channel == "whatsapp" {
		routerCfg.WhatsAppWebhook = whatsapp.NewWebhookHandler(
			cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret, enqueuer, core.Deduper, core.Metrics, logger,
		)
	}
	return routerCfg
}

func buildHealthChecks(core *bootstrap.Core) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if core.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return core.Redis.Ping(ctx).Err() }
	}
	if core.Pool != nil {
		checks["postgres"] = core.Pool.Ping
	}
	return checks
}

func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, core *bootstrap.Core, queue conversation.Queue, logger *logging.Logger) *conversation.Worker {
	if !cfg.UseMemoryQueue {
		return nil
	}
	worker := core.NewWorker(queue)
	worker.Start(ctx)
	go core.Deliverer().Start(ctx)
	logger.Info("inline conversation worker started", "lanes", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *conversation.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline conversation worker shutdown timed out")
	}
}
