package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"envmonitor/internal/types"
)

// DeviceRepository manages device registrations, the last-seen touch
// performed on ingestion and the location queries used by the weather task.
type DeviceRepository struct {
	db DBTX
}

// NewDeviceRepository creates a new DeviceRepository.
func NewDeviceRepository(db DBTX) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `id, user_id, name, latitude::float8, longitude::float8, description, is_active, last_seen_at, created_at`

func scanDevice(row pgx.Row) (*types.Device, error) {
	var d types.Device
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.Latitude,
		&d.Longitude,
		&d.Description,
		&d.IsActive,
		&d.LastSeenAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListActive returns every active device ordered by ID.
func (r *DeviceRepository) ListActive(ctx context.Context) ([]types.Device, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices
		 WHERE is_active
		 ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active devices", err)
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device row", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating device rows", err)
	}
	return devices, nil
}

// GetByID returns the device or a not_found_device error.
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*types.Device, error) {
	d, err := scanDevice(r.db.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get device", err)
	}
	return d, nil
}

// TouchLastSeen moves last_seen_at forward to at. Older timestamps are
// ignored so out-of-order deliveries never rewind it.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE devices
		 SET last_seen_at = $2
		 WHERE id = $1 AND (last_seen_at IS NULL OR last_seen_at < $2)`,
		id,
		at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update device last_seen_at", err)
	}
	return nil
}

// ListActiveLocations returns the distinct locations of active devices with
// both coordinates set, rounded to 2 decimals.
func (r *DeviceRepository) ListActiveLocations(ctx context.Context) ([]types.Location, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT ROUND(latitude::numeric, 2)::float8, ROUND(longitude::numeric, 2)::float8
		 FROM devices
		 WHERE is_active AND latitude IS NOT NULL AND longitude IS NOT NULL
		 ORDER BY 1, 2`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list device locations", err)
	}
	defer rows.Close()

	var locs []types.Location
	for rows.Next() {
		var l types.Location
		if err := rows.Scan(&l.Latitude, &l.Longitude); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan location row", err)
		}
		locs = append(locs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating location rows", err)
	}
	return locs, nil
}

// CountActiveWithLocation counts active devices that have both coordinates.
func (r *DeviceRepository) CountActiveWithLocation(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM devices
		 WHERE is_active AND latitude IS NOT NULL AND longitude IS NOT NULL`,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count located devices", err)
	}
	return n, nil
}

// defaultDeviceListLimit caps ListByUser when the caller passes no limit.
const defaultDeviceListLimit = 10

// Create registers d. ID is the hardware identifier and must be unique; the
// stored is_active and created_at are written back into d.
func (r *DeviceRepository) Create(ctx context.Context, d *types.Device) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO devices (id, user_id, name, latitude, longitude, description)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING is_active, created_at`,
		d.ID,
		d.UserID,
		d.Name,
		d.Latitude,
		d.Longitude,
		d.Description,
	).Scan(&d.IsActive, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppErrorWithDetails(types.ErrCodeConflictDeviceExists,
				"The device_id has already been taken.", err, map[string]any{"device_id": d.ID})
		}
		if isForeignKeyViolation(err) {
			return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create device", err)
	}
	return nil
}

// ListByUser returns one page of the user's devices, newest first.
func (r *DeviceRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]types.Device, error) {
	if limit <= 0 {
		limit = defaultDeviceListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+deviceColumns+`
		 FROM devices
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID,
		limit,
		offset,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list devices", err)
	}
	defer rows.Close()

	devices := []types.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan device row", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating device rows", err)
	}
	return devices, nil
}

// Update overwrites the mutable fields of d and returns the stored row.
// last_seen_at and ownership are never changed here.
func (r *DeviceRepository) Update(ctx context.Context, d *types.Device) (*types.Device, error) {
	updated, err := scanDevice(r.db.QueryRow(ctx,
		`UPDATE devices
		 SET name = $2, latitude = $3, longitude = $4, description = $5, is_active = $6
		 WHERE id = $1
		 RETURNING `+deviceColumns,
		d.ID,
		d.Name,
		d.Latitude,
		d.Longitude,
		d.Description,
		d.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update device", err)
	}
	return updated, nil
}

// Delete removes the device together with its readings and recommendations.
func (r *DeviceRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete device", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
	}
	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isForeignKeyViolation reports PostgreSQL error code 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
