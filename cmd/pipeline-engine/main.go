package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/sentinelops/sentinel-pipeline/internal/api"
	"github.com/sentinelops/sentinel-pipeline/internal/cache"
	"github.com/sentinelops/sentinel-pipeline/internal/classifier"
	"github.com/sentinelops/sentinel-pipeline/internal/config"
	"github.com/sentinelops/sentinel-pipeline/internal/engine"
	"github.com/sentinelops/sentinel-pipeline/internal/metrics"
	"github.com/sentinelops/sentinel-pipeline/internal/models"
	"github.com/sentinelops/sentinel-pipeline/internal/services"
	"github.com/sentinelops/sentinel-pipeline/internal/sink"
	"github.com/sentinelops/sentinel-pipeline/internal/store"
	"github.com/sentinelops/sentinel-pipeline/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting pipeline-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var provider store.Provider = store.NewMemoryProvider()
	if cfg.Storage.Path != "" {
		badgerProvider, err := store.NewBadgerProvider(cfg.Storage.Path)
		if err != nil {
			logger.Warn("incident store unavailable, falling back to memory", slog.Any("error", err))
		} else {
			provider = badgerProvider
		}
	}
	defer provider.Close()

	contentCache := cache.NewContentCache(logger, provider)

	backend := classifier.NewOpenAIBackend(cfg.Inference)
	classificationClient := classifier.NewClient(logger, backend)

	var notifier sink.Sink = sink.NewLogSink(logger)
	if cfg.Sink.WebhookURL != "" {
		notifier = sink.Multi{notifier, sink.NewWebhookSink(logger, cfg.Sink.WebhookURL, cfg.Sink.Timeout)}
	}

	pipeline := engine.NewPipeline(logger, contentCache, classificationClient, notifier)
	pipelineService := services.NewPipelineService(logger, pipeline)

	server, err := api.NewServer(cfg.Server, api.NewRouter(logger, pipelineService))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	probe, err := api.NewProbeServer(cfg.Server.ProbeAddress)
	if err != nil {
		logger.Error("failed to create probe server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDiagnostics := func() {
		records := pipelineService.RunDiagnostics(ctx)
		health := pipelineService.Health()
		probe.SetServing(health.APIStatus != models.APIDown)
		logger.Info("diagnostics run complete",
			slog.Int("checks", len(records)),
			slog.Int("passing_percent", health.ActiveTestsPassing),
			slog.String("api_status", string(health.APIStatus)))
	}
	runDiagnostics()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Diagnostics.Schedule, runDiagnostics); err != nil {
		logger.Error("invalid diagnostics schedule", slog.String("schedule", cfg.Diagnostics.Schedule), slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("probe server listening", slog.String("address", probe.Address()))
		if serveErr := probe.Start(); serveErr != nil {
			logger.Error("probe server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)
	probe.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("pipeline-engine stopped")
}
