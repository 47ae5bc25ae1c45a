package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/ward-air-quality/internal/api/http"
	"github.com/i474232898/ward-air-quality/internal/app"
	"github.com/i474232898/ward-air-quality/internal/config"
	"github.com/i474232898/ward-air-quality/internal/observability"
	"github.com/i474232898/ward-air-quality/internal/scheduler"
)

const serviceName = "ward-air-quality"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !cfg.EnvFileLoaded {
		log.Debug("no .env file found, using process environment")
	}

	metrics := observability.NewMetrics()
	components := app.Build(cfg, log, metrics)
	reconciler := components.Reconciler
	defer reconciler.Close()

	// Initial load runs in the background; the API reports loading meanwhile.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := reconciler.Load(ctx); err != nil {
			log.Error("initial load failed", zap.Error(err))
		}
	}()

	// Scheduler that periodically re-enhances from upstream.
	interval := cfg.RefreshInterval
	if !reconciler.EnhancementEnabled() {
		interval = 0
	}
	sched := scheduler.New(reconciler, interval, log.Named("scheduler"))
	if err := sched.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	fiberApp := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.HTTPTimeout + 5*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	fiberApp.Use(logger.New())
	fiberApp.Use(recover.New())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		state := reconciler.Snapshot()
		return c.JSON(fiber.Map{
			"status":     "ok",
			"service":    serviceName,
			"loading":    state.Loading,
			"wards":      len(state.Wards),
			"dataSource": state.DataSource,
		})
	})
	fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	if cfg.StaticDir != "" {
		fiberApp.Static("/data", cfg.StaticDir)
	}

	httpapi.RegisterRoutes(fiberApp, reconciler, components.History)
	httpapi.NewProxyHandler(components.Google, cfg.ProxyCacheTTL, log.Named("proxy"), metrics).Register(fiberApp)

	go func() {
		log.Info("http server listening", zap.String("port", cfg.Port))
		if err := fiberApp.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
}
