package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/labelzoom/edge-gateway/internal/archive"
	"github.com/labelzoom/edge-gateway/internal/background"
	"github.com/labelzoom/edge-gateway/internal/config"
	"github.com/labelzoom/edge-gateway/internal/proxy"
	"github.com/labelzoom/edge-gateway/internal/server"
	"github.com/labelzoom/edge-gateway/internal/storage"
	"github.com/labelzoom/edge-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("edge-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	forwarder, err := proxy.NewForwarder(cfg.Backend.BaseURL, cfg.Backend.SecretKey, logger)
	if err != nil {
		log.Fatalf("Failed to configure backend forwarder: %v", err)
	}

	var objectStore archive.ObjectStore
	if cfg.Archive.Enabled {
		objectStore, err = archive.NewMinioStore(
			cfg.Archive.Endpoint,
			cfg.Archive.AccessKey,
			cfg.Archive.SecretKey,
			cfg.Archive.Bucket,
			cfg.Archive.UseSSL,
		)
		if err != nil {
			log.Fatalf("Failed to configure archive store: %v", err)
		}
		logger.Info("request archival enabled",
			slog.String("bucket", cfg.Archive.Bucket),
			slog.Float64("sample_rate", cfg.Gateway.LogSampleRate),
		)
	}

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Enabled {
		sender := telemetry.NewKafkaSender(cfg.Telemetry.Brokers, cfg.Telemetry.Topic)
		defer sender.Close()
		emitter = telemetry.NewEmitter(sender, logger)
		logger.Info("telemetry enabled", slog.String("topic", cfg.Telemetry.Topic))
	}

	tracker := background.NewTracker(logger, cfg.Server.RequestTimeout)

	srv := server.New(server.Deps{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Forwarder: forwarder,
		Archive:   objectStore,
		Emitter:   emitter,
		Tracker:   tracker,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigChan:
	}

	logger.Info("shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}
