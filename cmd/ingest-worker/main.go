// Package main runs the MQTT ingest worker. It subscribes to the device
// readings topic and stores every valid reading through readings.Service,
// the same path the HTTP API uses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"envmonitor/internal/config"
	"envmonitor/internal/core"
	"envmonitor/internal/db"
	"envmonitor/internal/ingest"
	"envmonitor/internal/readings"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("ingest worker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"broker", cfg.MQTT.Broker,
		"topic", cfg.MQTT.Topic,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sub := newSubscriber(cfg, pool, logger)
	client := mqtt.NewClient(sub.ClientOptions(cfg.MQTT))
	return sub.Run(ctx, client)
}

func newSubscriber(cfg *config.Config, database db.DBTX, logger *slog.Logger) *ingest.Subscriber {
	svc := readings.NewService(readings.Config{
		Devices:   db.NewDeviceRepository(database),
		Readings:  db.NewReadingRepository(database),
		Validator: core.NewValidator(logger),
		Logger:    logger,
	})
	return ingest.NewSubscriber(ingest.SubscriberConfig{
		Topic:    cfg.MQTT.Topic,
		QoS:      cfg.MQTT.QoS,
		Ingester: svc,
		Logger:   logger,
	})
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
