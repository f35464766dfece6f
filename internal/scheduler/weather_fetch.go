package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"envmonitor/internal/types"
)

const (
	// weatherFetchRadius is how close, in degrees, a stored sample must be to
	// a grid location to count as covering it.
	weatherFetchRadius = 0.01
	// weatherRefreshAfter is the age after which a location is fetched again.
	weatherRefreshAfter = time.Hour
)

// WeatherLocationStore reads the device locations that need weather.
type WeatherLocationStore interface {
	// ListActiveLocations returns distinct active device locations rounded to
	// two decimals.
	ListActiveLocations(ctx context.Context) ([]types.Location, error)
	CountActiveWithLocation(ctx context.Context) (int, error)
}

// WeatherSampleStore persists fetched samples.
type WeatherSampleStore interface {
	RecentExists(ctx context.Context, lat, lon, radius float64, since time.Time) (bool, error)
	Create(ctx context.Context, w *types.WeatherSample) error
}

// WeatherProvider fetches a current sample. nil means no data.
type WeatherProvider interface {
	CurrentWeather(ctx context.Context, lat, lon float64) (*types.WeatherSample, error)
}

// FetchSummary reports the outcome of one weather fetch pass.
type FetchSummary struct {
	Locations int
	Fetched   int
	Skipped   int
	Failed    int
	Devices   int
}

func (s FetchSummary) String() string {
	if s.Locations == 0 {
		return "No active devices with location data found."
	}
	return fmt.Sprintf("Completed: Fetched %d new weather records, skipped %d (recent data exists) for %d active devices.",
		s.Fetched, s.Skipped, s.Devices)
}

// WeatherFetchService refreshes outdoor weather for every distinct active
// device location.
type WeatherFetchService struct {
	locations WeatherLocationStore
	samples   WeatherSampleStore
	provider  WeatherProvider
	logger    *slog.Logger
}

// NewWeatherFetchService creates a WeatherFetchService.
func NewWeatherFetchService(locations WeatherLocationStore, samples WeatherSampleStore, provider WeatherProvider, logger *slog.Logger) *WeatherFetchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeatherFetchService{
		locations: locations,
		samples:   samples,
		provider:  provider,
		logger:    logger,
	}
}

// FetchAll fetches weather for each location that has no sample from the last
// hour. A provider miss or a store failure for one location is logged and
// counted as failed; the pass continues with the next location.
func (s *WeatherFetchService) FetchAll(ctx context.Context, now time.Time) (FetchSummary, error) {
	locs, err := s.locations.ListActiveLocations(ctx)
	if err != nil {
		return FetchSummary{}, fmt.Errorf("listing device locations: %w", err)
	}

	sum := FetchSummary{Locations: len(locs)}
	if len(locs) == 0 {
		s.logger.InfoContext(ctx, "no active devices with location data found")
		return sum, nil
	}

	for _, loc := range locs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		recent, err := s.samples.RecentExists(ctx, loc.Latitude, loc.Longitude, weatherFetchRadius, now.Add(-weatherRefreshAfter))
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to check recent weather",
				"lat", loc.Latitude,
				"lon", loc.Longitude,
				"error", err,
			)
			sum.Failed++
			continue
		}
		if recent {
			sum.Skipped++
			continue
		}

		sample, err := s.provider.CurrentWeather(ctx, loc.Latitude, loc.Longitude)
		if err != nil || sample == nil {
			s.logger.WarnContext(ctx, "failed to fetch weather for location",
				"lat", loc.Latitude,
				"lon", loc.Longitude,
				"error", err,
			)
			sum.Failed++
			continue
		}

		if err := s.samples.Create(ctx, sample); err != nil {
			s.logger.ErrorContext(ctx, "failed to store weather sample",
				"lat", loc.Latitude,
				"lon", loc.Longitude,
				"error", err,
			)
			sum.Failed++
			continue
		}
		sum.Fetched++
		s.logger.InfoContext(ctx, "fetched weather for location",
			"lat", loc.Latitude,
			"lon", loc.Longitude,
			"location", sample.LocationName,
		)
	}

	devices, err := s.locations.CountActiveWithLocation(ctx)
	if err != nil {
		return sum, fmt.Errorf("counting located devices: %w", err)
	}
	sum.Devices = devices

	s.logger.InfoContext(ctx, sum.String(),
		"fetched", sum.Fetched,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"devices", sum.Devices,
	)
	return sum, nil
}
