package recommendations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"envmonitor/internal/types"
)

// Windows and radii applied by the Generator.
const (
	ReadingFreshness = 10 * time.Minute
	WeatherFreshness = 2 * time.Hour
	WeatherRadius    = 0.05
	DedupWindow      = 2 * time.Hour
	BreakWindow      = 2 * time.Hour

	DefaultConcurrency = 4
)

// DeviceStore lists devices eligible for evaluation.
type DeviceStore interface {
	ListActive(ctx context.Context) ([]types.Device, error)
}

// ReadingStore answers the reading queries the evaluators depend on.
type ReadingStore interface {
	// LatestSince returns the newest reading with reading_timestamp >= since,
	// or nil when there is none.
	LatestSince(ctx context.Context, deviceID string, since time.Time) (*types.SensorReading, error)
	CountSince(ctx context.Context, deviceID string, since time.Time) (int, error)
}

// WeatherStore looks up stored outdoor samples.
type WeatherStore interface {
	// Near returns the most recently fetched sample within radius degrees of
	// (lat, lon) fetched at or after since, or nil.
	Near(ctx context.Context, lat, lon, radius float64, since time.Time) (*types.WeatherSample, error)
}

// RecommendationStore persists recommendations.
type RecommendationStore interface {
	// CreateIfAbsent inserts rec unless a pending recommendation of the same
	// device and type was created at or after since. The check and insert
	// are atomic. rec.CreatedAt is the run's reference time.
	CreateIfAbsent(ctx context.Context, rec *types.Recommendation, since time.Time) (bool, error)
}

// Config wires a Generator.
type Config struct {
	Devices         DeviceStore
	Readings        ReadingStore
	Weather         WeatherStore
	Recommendations RecommendationStore
	Logger          *slog.Logger

	// Concurrency bounds how many devices are evaluated at once.
	Concurrency int
	// Evaluators defaults to Evaluators().
	Evaluators []Evaluator
	// IDFunc generates recommendation IDs. Defaults to "rec_" + UUIDv4.
	IDFunc func() string
}

// Generator evaluates every active device and stores new recommendations.
type Generator struct {
	devices  DeviceStore
	readings ReadingStore
	weather  WeatherStore
	recs     RecommendationStore
	logger   *slog.Logger

	concurrency int
	evaluators  []Evaluator
	newID       func() string
}

// NewGenerator creates a Generator from cfg.
func NewGenerator(cfg Config) *Generator {
	g := &Generator{
		devices:     cfg.Devices,
		readings:    cfg.Readings,
		weather:     cfg.Weather,
		recs:        cfg.Recommendations,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		evaluators:  cfg.Evaluators,
		newID:       cfg.IDFunc,
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.concurrency <= 0 {
		g.concurrency = DefaultConcurrency
	}
	if g.evaluators == nil {
		g.evaluators = Evaluators()
	}
	if g.newID == nil {
		g.newID = func() string { return "rec_" + uuid.NewString() }
	}
	return g
}

// Summary reports the outcome of one Generator run.
type Summary struct {
	Devices             int
	DevicesWithReadings int
	DevicesWithLocation int
	Created             int
	SkippedDuplicates   int
	Failed              int
}

func (s Summary) String() string {
	if s.Devices == 0 {
		return "No active devices found."
	}
	return fmt.Sprintf("Generated %d new recommendations for %d devices.", s.Created, s.Devices)
}

type deviceResult struct {
	hasReading bool
	created    int
	skipped    int
	err        error
}

// Run evaluates all active devices as of now. Per-device failures are logged
// and counted in Summary.Failed; the returned error is non-nil only when the
// device listing fails.
func (g *Generator) Run(ctx context.Context, now time.Time) (Summary, error) {
	devices, err := g.devices.ListActive(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing active devices: %w", err)
	}

	sum := Summary{Devices: len(devices)}
	if len(devices) == 0 {
		g.logger.InfoContext(ctx, "no active devices found")
		return sum, nil
	}

	results := make([]deviceResult, len(devices))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i := range devices {
		eg.Go(func() error {
			results[i] = g.processDevice(egCtx, devices[i], now)
			return nil
		})
	}
	_ = eg.Wait()

	for i, d := range devices {
		r := results[i]
		if d.HasLocation() {
			sum.DevicesWithLocation++
		}
		if r.hasReading {
			sum.DevicesWithReadings++
		}
		sum.Created += r.created
		sum.SkippedDuplicates += r.skipped
		if r.err != nil {
			sum.Failed++
			g.logger.ErrorContext(ctx, "recommendation generation failed for device",
				"device_id", d.ID,
				"error", r.err,
			)
		}
	}

	g.logger.InfoContext(ctx, "recommendation generation complete",
		"devices", sum.Devices,
		"devices_with_readings", sum.DevicesWithReadings,
		"created", sum.Created,
		"skipped_duplicates", sum.SkippedDuplicates,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (g *Generator) processDevice(ctx context.Context, d types.Device, now time.Time) deviceResult {
	var res deviceResult

	reading, err := g.readings.LatestSince(ctx, d.ID, now.Add(-ReadingFreshness))
	if err != nil {
		res.err = fmt.Errorf("loading latest reading: %w", err)
		return res
	}
	if reading == nil {
		return res
	}
	res.hasReading = true

	var weather *types.WeatherSample
	if d.HasLocation() {
		weather, err = g.weather.Near(ctx, *d.Latitude, *d.Longitude, WeatherRadius, now.Add(-WeatherFreshness))
		if err != nil {
			g.logger.WarnContext(ctx, "weather lookup failed, evaluating without outdoor data",
				"device_id", d.ID,
				"lat", *d.Latitude,
				"lon", *d.Longitude,
				"error", err,
			)
			weather = nil
		}
	}

	count, err := g.readings.CountSince(ctx, d.ID, now.Add(-BreakWindow))
	if err != nil {
		res.err = fmt.Errorf("counting recent readings: %w", err)
		return res
	}

	candidates := Evaluate(g.evaluators, Input{
		Reading:        *reading,
		Weather:        weather,
		RecentReadings: count,
	})

	for _, c := range candidates {
		rec := &types.Recommendation{
			ID:        g.newID(),
			DeviceID:  d.ID,
			UserID:    d.UserID,
			Type:      c.Type,
			Title:     c.Title,
			Message:   c.Message,
			Priority:  c.Priority,
			Status:    types.StatusPending,
			Metadata:  c.Metadata,
			CreatedAt: now,
		}
		created, err := g.recs.CreateIfAbsent(ctx, rec, now.Add(-DedupWindow))
		if err != nil {
			res.err = fmt.Errorf("persisting %s recommendation: %w", c.Type, err)
			return res
		}
		if created {
			res.created++
		} else {
			res.skipped++
		}
	}
	return res
}
