// Package main implements envmon, the operator CLI for envmonitor.
//
// It runs the scheduled tasks locally, bypassing the Lambda shim, and applies
// the embedded database migrations:
//
//	envmon migrate
//	envmon weather fetch
//	envmon recommendations generate --reference-time=2026-10-14T09:05:00Z
//	envmon tasks list
//	envmon tasks run --task=fetch_weather --dry-run
//	envmon tasks history --limit=10
//
// Configuration is read from the environment (or a .env file) exactly as the
// deployed processes read it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"envmonitor/internal/config"
	"envmonitor/internal/db"
	"envmonitor/internal/scheduler"
)

type taskRunner interface {
	Run(ctx context.Context, payload scheduler.Payload) (scheduler.Result, error)
}

type historyReader interface {
	Recent(ctx context.Context, limit int) ([]db.JobRun, error)
}

type migrator interface {
	Up(ctx context.Context) ([]string, error)
}

// app holds the lazily opened process dependencies. Commands that do not
// touch the database never load configuration.
type app struct {
	out      io.Writer
	logLevel string
	logger   *slog.Logger

	cfg  *config.Config
	pool *pgxpool.Pool

	runner   func(ctx context.Context) (taskRunner, error)
	history  func(ctx context.Context) (historyReader, error)
	migrator func(ctx context.Context) (migrator, error)
}

func newApp(out io.Writer) *app {
	a := &app{out: out, logLevel: "info"}
	a.runner = func(ctx context.Context) (taskRunner, error) {
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return scheduler.NewPostgresRunner(scheduler.PostgresDeps{
			DB:       pool,
			Config:   a.cfg,
			WorkerID: "envmon-" + uuid.NewString(),
			Logger:   a.logger,
		}), nil
	}
	a.history = func(ctx context.Context) (historyReader, error) {
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return db.NewJobHistoryRepository(pool), nil
	}
	a.migrator = func(ctx context.Context) (migrator, error) {
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return db.NewMigrator(pool)
	}
	return a
}

func (a *app) database(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if a.cfg == nil {
		cfg, err := config.LoadConfig(config.NewEnvVarProvider())
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
		a.cfg = cfg
	}
	pool, err := db.NewPool(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	return pool, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "envmon",
		Short: "envmon - environmental monitoring operations",
		Long: `envmon runs the envmonitor scheduled tasks on demand and manages
the database schema.`,
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if a.logger == nil {
				a.logger = newLogger(a.logLevel)
			}
		},
	}
	build := config.NewBuildInfo()
	root.Version = build.Version
	root.SetVersionTemplate(fmt.Sprintf("envmon {{.Version}} (commit %s, built %s)\n", build.Commit, build.BuildTime))

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", a.logLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newMigrateCmd(a),
		newWeatherCmd(a),
		newRecommendationsCmd(a),
		newTasksCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := newApp(os.Stdout)

	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stderr so command output on stdout stays
// clean.
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
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
