package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"envmonitor/internal/recommendations"
	"envmonitor/internal/types"
)

// DefaultLockTTL covers the longest expected run with margin.
const DefaultLockTTL = 15 * time.Minute

// Job history statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// WeatherFetcher runs the weather fetch pass.
type WeatherFetcher interface {
	FetchAll(ctx context.Context, now time.Time) (FetchSummary, error)
}

// RecommendationGenerator runs the recommendation pass.
type RecommendationGenerator interface {
	Run(ctx context.Context, now time.Time) (recommendations.Summary, error)
}

// JobLocker abstracts the distributed lock.
type JobLocker interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) error
}

// JobHistorian abstracts job history recording.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// MetricsPublisher receives one report per completed run.
type MetricsPublisher interface {
	PublishJob(ctx context.Context, task string, duration time.Duration, failed bool, counts map[string]float64) error
}

// RunnerConfig wires a Runner. Metrics and Logger are optional.
type RunnerConfig struct {
	Weather    WeatherFetcher
	Generator  RecommendationGenerator
	JobLock    JobLocker
	JobHistory JobHistorian
	Metrics    MetricsPublisher
	WorkerID   string
	LockTTL    time.Duration
	Logger     *slog.Logger
	Clock      types.Clock
}

// Runner executes scheduled tasks. Each task runs at most once per schedule
// slot: the lock ID is derived from the task and its interval bucket.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &Runner{cfg: cfg}
}

// Result describes one Runner invocation.
type Result struct {
	Task    TaskType
	LockID  string
	Skipped bool
	Items   int
	// Summary is the task's human-readable outcome line.
	Summary string
}

func (r Result) String() string {
	if r.Skipped {
		return fmt.Sprintf("skipped: lock %s held by another worker", r.LockID)
	}
	return fmt.Sprintf("task %s complete: %d items processed", r.Task, r.Items)
}

// Run executes the task named in payload:
//  1. Resolve the reference time.
//  2. Acquire the job lock for the task's schedule slot.
//  3. Record job start in job history.
//  4. Dispatch to the task's service.
//  5. Record completion and publish metrics.
//
// A failed run releases its lock so a retry within the same slot can proceed.
func (r *Runner) Run(ctx context.Context, payload Payload) (Result, error) {
	logger := r.cfg.Logger

	now := r.cfg.Clock.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}

	res := Result{Task: payload.Task}
	if payload.Task == "" {
		return res, fmt.Errorf("empty task type in scheduler payload")
	}
	if payload.Task.Interval() == 0 {
		return res, fmt.Errorf("unknown task type: %q", payload.Task)
	}

	taskStr := string(payload.Task)
	logger.InfoContext(ctx, "scheduler invoked",
		"task", taskStr,
		"reference_time", now.Format(time.RFC3339),
		"worker_id", r.cfg.WorkerID,
	)

	res.LockID = LockID(payload.Task, now)
	acquired, err := r.cfg.JobLock.Acquire(ctx, res.LockID, r.cfg.WorkerID, r.cfg.LockTTL)
	if err != nil {
		logger.ErrorContext(ctx, "failed to acquire job lock",
			"lock_id", res.LockID,
			"error", err,
		)
		return res, fmt.Errorf("acquiring job lock %s: %w", res.LockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock not acquired, another worker is processing",
			"lock_id", res.LockID,
		)
		res.Skipped = true
		return res, nil
	}

	jobID, err := r.cfg.JobHistory.Start(ctx, taskStr)
	if err != nil {
		// History is best effort; jobID 0 skips Finish.
		logger.ErrorContext(ctx, "failed to start job history",
			"task", taskStr,
			"error", err,
		)
		jobID = 0
	}

	started := time.Now()
	out, execErr := r.dispatch(ctx, payload.Task, now)
	elapsed := time.Since(started)
	res.Items = out.items
	res.Summary = out.summary

	status := StatusSuccess
	if execErr != nil {
		status = StatusFailed
	}
	if jobID != 0 {
		if err := r.cfg.JobHistory.Finish(ctx, jobID, status, out.items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history",
				"job_id", jobID,
				"task", taskStr,
				"error", err,
			)
		}
	}

	if r.cfg.Metrics != nil {
		if err := r.cfg.Metrics.PublishJob(ctx, taskStr, elapsed, execErr != nil, out.counts); err != nil {
			logger.WarnContext(ctx, "failed to publish job metrics",
				"task", taskStr,
				"error", err,
			)
		}
	}

	if execErr != nil {
		if err := r.cfg.JobLock.Release(ctx, res.LockID, r.cfg.WorkerID); err != nil {
			logger.WarnContext(ctx, "failed to release job lock",
				"lock_id", res.LockID,
				"error", err,
			)
		}
		logger.ErrorContext(ctx, "task execution failed",
			"task", taskStr,
			"error", execErr,
			"items_before_error", out.items,
		)
		return res, fmt.Errorf("task %s failed: %w", taskStr, execErr)
	}

	logger.InfoContext(ctx, res.String(),
		"task", taskStr,
		"items", res.Items,
		"summary", res.Summary,
	)
	return res, nil
}

type taskOutput struct {
	items   int
	summary string
	counts  map[string]float64
}

func (r *Runner) dispatch(ctx context.Context, task TaskType, now time.Time) (taskOutput, error) {
	switch task {
	case TaskFetchWeather:
		sum, err := r.cfg.Weather.FetchAll(ctx, now)
		return taskOutput{
			items:   sum.Fetched,
			summary: sum.String(),
			counts: map[string]float64{
				types.MetricWeatherFetched: float64(sum.Fetched),
				types.MetricWeatherSkipped: float64(sum.Skipped),
				types.MetricWeatherFailed:  float64(sum.Failed),
			},
		}, err

	case TaskGenerateRecommendations:
		sum, err := r.cfg.Generator.Run(ctx, now)
		return taskOutput{
			items:   sum.Created,
			summary: sum.String(),
			counts: map[string]float64{
				types.MetricRecommendationsCreated: float64(sum.Created),
				types.MetricRecommendationsSkipped: float64(sum.SkippedDuplicates),
				types.MetricDevicesFailed:          float64(sum.Failed),
			},
		}, err
	}
	return taskOutput{}, fmt.Errorf("unknown task type: %q", task)
}
