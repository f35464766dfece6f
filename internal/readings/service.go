// Package readings stores and serves sensor readings. Ingestion is shared by
// the HTTP API, where the caller must own the device, and the MQTT worker,
// where the device is identified by its topic.
package readings

import (
	"context"
	"log/slog"
	"time"

	"envmonitor/internal/types"
)

type DeviceStore interface {
	GetByID(ctx context.Context, id string) (*types.Device, error)
	TouchLastSeen(ctx context.Context, id string, at time.Time) error
}

type ReadingStore interface {
	Create(ctx context.Context, sr *types.SensorReading) error
	Latest(ctx context.Context, deviceID string) (*types.SensorReading, error)
	History(ctx context.Context, deviceID string, start, end time.Time) ([]types.SensorReading, error)
}

// StructValidator is satisfied by *core.Validator.
type StructValidator interface {
	ValidateStruct(s any) error
}

// IngestInput is the payload of one reading. Pointer fields distinguish an
// omitted value from zero.
type IngestInput struct {
	DeviceID         string     `json:"device_id" validate:"required"`
	Temperature      *float64   `json:"temperature" validate:"required,min=-999.99,max=999.99"`
	Humidity         *float64   `json:"humidity" validate:"required,min=-999.99,max=999.99"`
	TVOCPPM          *int       `json:"tvoc_ppm" validate:"omitempty,gt=0"`
	Light            *int       `json:"light" validate:"required,gt=0"`
	Noise            *int       `json:"noise" validate:"required,gt=0"`
	ReadingTimestamp *time.Time `json:"reading_timestamp"`
}

type Config struct {
	Devices   DeviceStore
	Readings  ReadingStore
	Validator StructValidator
	Logger    *slog.Logger
	Clock     types.Clock
}

type Service struct {
	devices   DeviceStore
	readings  ReadingStore
	validator StructValidator
	logger    *slog.Logger
	clock     types.Clock
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = types.RealClock{}
	}
	return &Service{
		devices:   cfg.Devices,
		readings:  cfg.Readings,
		validator: cfg.Validator,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
	}
}

// Ingest stores a reading on behalf of userID, who must own the device.
func (s *Service) Ingest(ctx context.Context, userID string, in IngestInput) (*types.SensorReading, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	device, err := s.ownedDevice(ctx, userID, in.DeviceID)
	if err != nil {
		return nil, err
	}
	return s.store(ctx, device, in)
}

// IngestFromDevice stores a reading published by the device itself. There is
// no user to check; the device must exist and be active.
func (s *Service) IngestFromDevice(ctx context.Context, in IngestInput) (*types.SensorReading, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	device, err := s.devices.GetByID(ctx, in.DeviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive {
		return nil, types.NewAppError(types.ErrCodeConflictDeviceInactive, "device is not active", nil)
	}
	return s.store(ctx, device, in)
}

func (s *Service) validate(in IngestInput) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.ValidateStruct(in)
}

func (s *Service) store(ctx context.Context, device *types.Device, in IngestInput) (*types.SensorReading, error) {
	now := s.clock.Now()
	ts := now
	if in.ReadingTimestamp != nil {
		ts = in.ReadingTimestamp.UTC()
	}

	sr := &types.SensorReading{
		DeviceID:         device.ID,
		Temperature:      *in.Temperature,
		Humidity:         *in.Humidity,
		TVOCPPM:          in.TVOCPPM,
		Light:            *in.Light,
		Noise:            *in.Noise,
		ReadingTimestamp: ts,
	}
	if err := s.readings.Create(ctx, sr); err != nil {
		return nil, err
	}

	// The reading is already stored; a failed touch only delays last_seen_at.
	if err := s.devices.TouchLastSeen(ctx, device.ID, now); err != nil {
		s.logger.WarnContext(ctx, "failed to update device last_seen_at",
			"device_id", device.ID,
			"error", err,
		)
	}
	return sr, nil
}

// Latest returns the device's newest reading, or not_found_reading.
func (s *Service) Latest(ctx context.Context, userID, deviceID string) (*types.SensorReading, error) {
	if deviceID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "The device_id field is required.", nil)
	}
	if _, err := s.ownedDevice(ctx, userID, deviceID); err != nil {
		return nil, err
	}
	return s.readings.Latest(ctx, deviceID)
}

// History returns readings from start through the end of end's day, newest
// first.
func (s *Service) History(ctx context.Context, userID, deviceID string, start, end time.Time) ([]types.SensorReading, error) {
	if deviceID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "The device_id field is required.", nil)
	}
	from, to := start, EndOfDay(end)
	if to.Before(from) {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidDate,
			"The end_date field must be a date after or equal to start_date.", nil)
	}
	if _, err := s.ownedDevice(ctx, userID, deviceID); err != nil {
		return nil, err
	}
	return s.readings.History(ctx, deviceID, from, to)
}

func (s *Service) ownedDevice(ctx context.Context, userID, deviceID string) (*types.Device, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if device.UserID != userID {
		return nil, types.NewAppError(types.ErrCodePermissionDeviceOwner, "Unauthorized", nil)
	}
	return device, nil
}

// EndOfDay returns the last nanosecond of t's calendar day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location()).Add(-time.Nanosecond)
}
