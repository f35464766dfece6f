package scheduler

import (
	"log/slog"

	"envmonitor/internal/config"
	"envmonitor/internal/db"
	"envmonitor/internal/external"
	"envmonitor/internal/recommendations"
	"envmonitor/internal/types"
	"envmonitor/internal/weather"
)

// PostgresDeps are the process-level dependencies of a production Runner.
type PostgresDeps struct {
	DB       db.TxDB
	Config   *config.Config
	Metrics  MetricsPublisher
	WorkerID string
	Logger   *slog.Logger
}

// NewPostgresRunner wires a Runner against the PostgreSQL repositories and
// weatherapi.com. The weather cache lives as long as the Runner, so a warm
// Lambda container reuses samples across invocations.
func NewPostgresRunner(d PostgresDeps) *Runner {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := d.Config

	devices := db.NewDeviceRepository(d.DB)
	client := external.NewWeatherAPIClient(external.WeatherAPIConfig{
		APIKey:  cfg.Weather.APIKey,
		BaseURL: cfg.Weather.BaseURL,
		Timeout: cfg.Weather.Timeout,
	}, logger)
	provider := weather.NewCachedProvider(client, cfg.Weather.CacheTTL, types.RealClock{})

	weatherRepo := db.NewWeatherRepository(d.DB)
	return NewRunner(RunnerConfig{
		Weather: NewWeatherFetchService(devices, weatherRepo, provider, logger),
		Generator: recommendations.NewGenerator(recommendations.Config{
			Devices:         devices,
			Readings:        db.NewReadingRepository(d.DB),
			Weather:         weatherRepo,
			Recommendations: db.NewRecommendationRepository(d.DB),
			Logger:          logger,
			Concurrency:     cfg.Scheduler.GeneratorConcurrency,
		}),
		JobLock:    db.NewJobLockRepository(d.DB),
		JobHistory: db.NewJobHistoryRepository(d.DB),
		Metrics:    d.Metrics,
		WorkerID:   d.WorkerID,
		LockTTL:    cfg.Scheduler.LockTTL,
		Logger:     logger,
	})
}
