// Package main is the entrypoint for the scheduler Lambda function.
//
// EventBridge rules invoke it with a scheduler.Payload naming the task:
// fetch_weather hourly and generate_recommendations every five minutes. The
// handler hands the payload to scheduler.Runner, which takes the job lock for
// the schedule slot, records job history, dispatches the task and publishes
// its metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"envmonitor/internal/config"
	"envmonitor/internal/db"
	"envmonitor/internal/metrics"
	"envmonitor/internal/scheduler"
)

// taskRunner is satisfied by *scheduler.Runner.
type taskRunner interface {
	Run(ctx context.Context, payload scheduler.Payload) (scheduler.Result, error)
}

// newHandler adapts a taskRunner to the Lambda handler signature. The
// returned string is the run's one-line outcome.
func newHandler(runner taskRunner) func(ctx context.Context, payload scheduler.Payload) (string, error) {
	return func(ctx context.Context, payload scheduler.Payload) (string, error) {
		res, err := runner.Run(ctx, payload)
		if err != nil {
			return "", err
		}
		return res.String(), nil
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("scheduler Lambda initializing (cold start)")

	handler, err := setup(context.Background(), logger)
	if err != nil {
		logger.Error("scheduler Lambda initialization failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler)
}

func setup(ctx context.Context, logger *slog.Logger) (func(context.Context, scheduler.Payload) (string, error), error) {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	deps := scheduler.PostgresDeps{
		DB:       pool,
		Config:   cfg,
		WorkerID: uuid.NewString(),
		Logger:   logger,
	}
	if cfg.Observability.EnableMetrics {
		cw, err := metrics.NewCloudWatchClient(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		deps.Metrics = metrics.NewJobPublisher(cw, cfg.Observability.MetricNamespace, logger)
	}

	logger.Info("scheduler Lambda initialized",
		"worker_id", deps.WorkerID,
		"metrics_enabled", cfg.Observability.EnableMetrics,
	)
	return newHandler(scheduler.NewPostgresRunner(deps)), nil
}
