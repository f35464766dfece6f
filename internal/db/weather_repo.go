package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"envmonitor/internal/types"
)

// WeatherRepository provides data access for the external_weather_data table.
type WeatherRepository struct {
	db DBTX
}

// NewWeatherRepository creates a new WeatherRepository.
func NewWeatherRepository(db DBTX) *WeatherRepository {
	return &WeatherRepository{db: db}
}

// Near returns the most recently fetched sample within radius degrees of
// (lat, lon) on both axes and fetched at or after since. The ordering is by
// fetch time, not distance. Returns nil when no sample qualifies.
func (r *WeatherRepository) Near(ctx context.Context, lat, lon, radius float64, since time.Time) (*types.WeatherSample, error) {
	var w types.WeatherSample
	err := r.db.QueryRow(ctx,
		`SELECT id, latitude::float8, longitude::float8, location,
		        outdoor_temperature::float8, outdoor_humidity::float8, outdoor_aqi,
		        outdoor_pm25::float8, outdoor_pm10::float8, weather_condition,
		        source, fetched_at
		 FROM external_weather_data
		 WHERE latitude BETWEEN $1::numeric - $3::numeric AND $1::numeric + $3::numeric
		   AND longitude BETWEEN $2::numeric - $3::numeric AND $2::numeric + $3::numeric
		   AND fetched_at >= $4
		 ORDER BY fetched_at DESC
		 LIMIT 1`,
		lat,
		lon,
		radius,
		since,
	).Scan(
		&w.ID,
		&w.Latitude,
		&w.Longitude,
		&w.LocationName,
		&w.OutdoorTemperature,
		&w.OutdoorHumidity,
		&w.OutdoorAQI,
		&w.OutdoorPM25,
		&w.OutdoorPM10,
		&w.WeatherCondition,
		&w.Source,
		&w.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query nearby weather", err)
	}
	return &w, nil
}

// RecentExists reports whether a sample within radius of (lat, lon) was
// fetched at or after since.
func (r *WeatherRepository) RecentExists(ctx context.Context, lat, lon, radius float64, since time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM external_weather_data
		   WHERE latitude BETWEEN $1::numeric - $3::numeric AND $1::numeric + $3::numeric
		     AND longitude BETWEEN $2::numeric - $3::numeric AND $2::numeric + $3::numeric
		     AND fetched_at >= $4
		 )`,
		lat,
		lon,
		radius,
		since,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check recent weather", err)
	}
	return exists, nil
}

// Create stores a sample and fills in its ID.
func (r *WeatherRepository) Create(ctx context.Context, w *types.WeatherSample) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO external_weather_data
		   (location, latitude, longitude, outdoor_temperature, outdoor_humidity,
		    outdoor_aqi, outdoor_pm25, outdoor_pm10, weather_condition, source, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		w.LocationName,
		w.Latitude,
		w.Longitude,
		w.OutdoorTemperature,
		w.OutdoorHumidity,
		w.OutdoorAQI,
		w.OutdoorPM25,
		w.OutdoorPM10,
		w.WeatherCondition,
		string(w.Source),
		w.FetchedAt,
	).Scan(&w.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store weather sample", err)
	}
	return nil
}
