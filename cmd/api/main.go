// Package main is the entry point for the envmonitor API server.
//
// It loads configuration, opens the PostgreSQL pool, builds the HTTP server
// with the core chassis (middleware, routing, health checks) and the device,
// reading and recommendation handlers, and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"envmonitor/internal/api/handlers"
	"envmonitor/internal/config"
	"envmonitor/internal/core"
	"envmonitor/internal/db"
	"envmonitor/internal/metrics"
	"envmonitor/internal/readings"
)

const metricsFlushInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// database is what the API needs from *pgxpool.Pool.
type database interface {
	db.TxDB
	core.Pinger
}

func run() error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("envmonitor API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	if isLambdaEnvironment() {
		logger.Error("Lambda mode is not supported for the API; run it as an HTTP server")
		return fmt.Errorf("lambda mode not supported")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}

	srv, err := buildServer(cfg, pool, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.OnShutdown(func(context.Context) error {
		pool.Close()
		return nil
	})

	if cfg.Observability.EnableMetrics {
		cw, err := metrics.NewCloudWatchClient(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		collector := metrics.NewRequestCollector(cw, cfg.Observability.MetricNamespace, logger)
		srv.Metrics = collector

		flushCtx, stopFlush := context.WithCancel(ctx)
		go collector.Run(flushCtx, metricsFlushInterval)
		srv.OnShutdown(func(ctx context.Context) error {
			stopFlush()
			return collector.Flush(ctx)
		})
	}

	srv.MountRoutes()
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires the handlers against database. MountRoutes is left to
// the caller so metrics can be attached first.
func buildServer(cfg *config.Config, database database, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.HealthProbes = append(srv.HealthProbes, core.DatabaseProbe{DB: database})

	devices := db.NewDeviceRepository(database)
	readingSvc := readings.NewService(readings.Config{
		Devices:   devices,
		Readings:  db.NewReadingRepository(database),
		Validator: srv.Validator,
		Logger:    logger,
	})

	readingHandler := handlers.NewReadingHandler(readingSvc, logger)
	recHandler := handlers.NewRecommendationHandler(db.NewRecommendationRepository(database), logger)
	deviceHandler := handlers.NewDeviceHandler(devices, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		deviceHandler.RegisterRoutes,
		readingHandler.RegisterRoutes,
		recHandler.RegisterRoutes,
	)
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Flushes metrics and closes the pool.
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
