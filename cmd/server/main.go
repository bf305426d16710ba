package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/celebrum-patterns/internal/api"
	"github.com/irfndi/celebrum-patterns/internal/cache"
	"github.com/irfndi/celebrum-patterns/internal/config"
	"github.com/irfndi/celebrum-patterns/internal/database"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "",
		Endpoint:       otlpHostPort(cfg.Telemetry.OTLPEndpoint),
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := logger.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
		}
	}()
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel)

	// Spans go to stdout when tracing is on but no collector is configured.
	endpoint := cfg.Telemetry.OTLPEndpoint
	if endpoint == "" {
		endpoint = telemetry.StdoutEndpoint
	}
	if _, err := telemetry.InitTelemetryWithProvider(context.Background(), &telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   endpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     1.0,
	}, logger.Logger()); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetry.Shutdown(); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	// Initialize Redis
	redisClient, err := database.NewRedisConnection(cfg.Redis, logrusLogger)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	sessionCache := cache.NewRedisSessionCache(redisClient.Client, cfg.Session.TTLDuration(), logrusLogger)
	coordinator := services.NewSearchCoordinator(logrusLogger)
	patternService := services.NewPatternService(cfg.Matcher, nil, sessionCache, coordinator, logger)

	router := api.NewRouter(cfg, api.Dependencies{
		Redis:    redisClient,
		Patterns: patternService,
		Logger:   logger,
		Version:  cfg.Telemetry.ServiceVersion,
	})

	// Searches may run up to matcher.search_timeout, so writes get that much
	// headroom on top of the base timeout.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10*time.Second + cfg.Matcher.SearchTimeoutDuration(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.LogShutdown(cfg.Telemetry.ServiceName, "signal received: "+sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	coordinator.CancelAll()
	sessionCache.LogStats()

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrusLogger.Info("Server exited gracefully")
	return nil
}

// otlpHostPort reduces a collector URL to the host:port the log exporter
// expects. Values without a scheme are returned unchanged.
func otlpHostPort(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
