package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"envmonitor/internal/types"
)

// ReadingRepository provides data access for the sensor_readings table.
type ReadingRepository struct {
	db DBTX
}

// NewReadingRepository creates a new ReadingRepository.
func NewReadingRepository(db DBTX) *ReadingRepository {
	return &ReadingRepository{db: db}
}

const readingColumns = `id, device_id, temperature::float8, humidity::float8, tvoc_ppm, light, noise, reading_timestamp, created_at`

func scanReading(row pgx.Row) (*types.SensorReading, error) {
	var sr types.SensorReading
	err := row.Scan(
		&sr.ID,
		&sr.DeviceID,
		&sr.Temperature,
		&sr.Humidity,
		&sr.TVOCPPM,
		&sr.Light,
		&sr.Noise,
		&sr.ReadingTimestamp,
		&sr.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sr, nil
}

// Create inserts a reading and fills in its ID and CreatedAt.
func (r *ReadingRepository) Create(ctx context.Context, sr *types.SensorReading) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO sensor_readings
		   (device_id, temperature, humidity, tvoc_ppm, light, noise, reading_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		sr.DeviceID,
		sr.Temperature,
		sr.Humidity,
		sr.TVOCPPM,
		sr.Light,
		sr.Noise,
		sr.ReadingTimestamp,
	).Scan(&sr.ID, &sr.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create sensor reading", err)
	}
	return nil
}

// LatestSince returns the newest reading for the device with
// reading_timestamp >= since, or nil when there is none.
func (r *ReadingRepository) LatestSince(ctx context.Context, deviceID string, since time.Time) (*types.SensorReading, error) {
	sr, err := scanReading(r.db.QueryRow(ctx,
		`SELECT `+readingColumns+`
		 FROM sensor_readings
		 WHERE device_id = $1 AND reading_timestamp >= $2
		 ORDER BY reading_timestamp DESC
		 LIMIT 1`,
		deviceID,
		since,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get latest reading", err)
	}
	return sr, nil
}

// CountSince counts the device's readings with reading_timestamp >= since.
func (r *ReadingRepository) CountSince(ctx context.Context, deviceID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM sensor_readings
		 WHERE device_id = $1 AND reading_timestamp >= $2`,
		deviceID,
		since,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count readings", err)
	}
	return n, nil
}

// Latest returns the device's newest reading regardless of age.
func (r *ReadingRepository) Latest(ctx context.Context, deviceID string) (*types.SensorReading, error) {
	sr, err := scanReading(r.db.QueryRow(ctx,
		`SELECT `+readingColumns+`
		 FROM sensor_readings
		 WHERE device_id = $1
		 ORDER BY reading_timestamp DESC
		 LIMIT 1`,
		deviceID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReading, "No readings found for this device", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get latest reading", err)
	}
	return sr, nil
}

// History returns the device's readings with start <= reading_timestamp <= end,
// newest first.
func (r *ReadingRepository) History(ctx context.Context, deviceID string, start, end time.Time) ([]types.SensorReading, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+readingColumns+`
		 FROM sensor_readings
		 WHERE device_id = $1 AND reading_timestamp BETWEEN $2 AND $3
		 ORDER BY reading_timestamp DESC`,
		deviceID,
		start,
		end,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query reading history", err)
	}
	defer rows.Close()

	readings := []types.SensorReading{}
	for rows.Next() {
		sr, err := scanReading(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reading row", err)
		}
		readings = append(readings, *sr)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reading rows", err)
	}
	return readings, nil
}
