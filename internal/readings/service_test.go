package readings

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envmonitor/internal/core"
	"envmonitor/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

type mockDevices struct {
	devices map[string]*types.Device
	touched []string
	touchAt time.Time
	touchFn func(id string) error
}

func (m *mockDevices) GetByID(_ context.Context, id string) (*types.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil)
	}
	return d, nil
}

func (m *mockDevices) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	m.touched = append(m.touched, id)
	m.touchAt = at
	if m.touchFn != nil {
		return m.touchFn(id)
	}
	return nil
}

type mockReadings struct {
	created   []*types.SensorReading
	createErr error
	latestFn  func(deviceID string) (*types.SensorReading, error)
	historyFn func(deviceID string, start, end time.Time) ([]types.SensorReading, error)
}

func (m *mockReadings) Create(_ context.Context, sr *types.SensorReading) error {
	if m.createErr != nil {
		return m.createErr
	}
	sr.ID = int64(len(m.created) + 1)
	m.created = append(m.created, sr)
	return nil
}

func (m *mockReadings) Latest(_ context.Context, deviceID string) (*types.SensorReading, error) {
	return m.latestFn(deviceID)
}

func (m *mockReadings) History(_ context.Context, deviceID string, start, end time.Time) ([]types.SensorReading, error) {
	return m.historyFn(deviceID, start, end)
}

func ptr[T any](v T) *T { return &v }

type fixture struct {
	svc      *Service
	devices  *mockDevices
	readings *mockReadings
	logs     *bytes.Buffer
}

func newFixture() *fixture {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	devices := &mockDevices{devices: map[string]*types.Device{
		"dev-1":    {ID: "dev-1", UserID: "user-1", IsActive: true},
		"dev-2":    {ID: "dev-2", UserID: "user-2", IsActive: true},
		"dev-idle": {ID: "dev-idle", UserID: "user-1", IsActive: false},
	}}
	readings := &mockReadings{}
	svc := NewService(Config{
		Devices:   devices,
		Readings:  readings,
		Validator: core.NewValidator(logger),
		Logger:    logger,
		Clock:     fixedClock{now},
	})
	return &fixture{svc: svc, devices: devices, readings: readings, logs: &logs}
}

func validInput() IngestInput {
	return IngestInput{
		DeviceID:    "dev-1",
		Temperature: ptr(22.5),
		Humidity:    ptr(45.0),
		Light:       ptr(300),
		Noise:       ptr(40),
	}
}

func appCode(t *testing.T, err error) types.ErrorCode {
	t.Helper()
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected *AppError, got %v", err)
	return appErr.Code
}

func TestIngest_StoresReadingAndTouchesDevice(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.TVOCPPM = ptr(450)

	sr, err := f.svc.Ingest(context.Background(), "user-1", in)
	require.NoError(t, err)

	assert.Equal(t, "dev-1", sr.DeviceID)
	assert.Equal(t, 22.5, sr.Temperature)
	assert.Equal(t, 45.0, sr.Humidity)
	assert.Equal(t, 450, *sr.TVOCPPM)
	assert.Equal(t, 300, sr.Light)
	assert.Equal(t, 40, sr.Noise)
	assert.Equal(t, now, sr.ReadingTimestamp, "timestamp defaults to now")
	assert.Len(t, f.readings.created, 1)
	assert.Equal(t, []string{"dev-1"}, f.devices.touched)
	assert.Equal(t, now, f.devices.touchAt)
}

func TestIngest_KeepsProvidedTimestamp(t *testing.T) {
	f := newFixture()
	in := validInput()
	at := time.Date(2026, 10, 14, 14, 30, 0, 0, time.FixedZone("EEST", 3*3600))
	in.ReadingTimestamp = &at

	sr, err := f.svc.Ingest(context.Background(), "user-1", in)
	require.NoError(t, err)
	assert.True(t, sr.ReadingTimestamp.Equal(at))
	assert.Equal(t, time.UTC, sr.ReadingTimestamp.Location())
}

func TestIngest_NilTVOCIsAllowed(t *testing.T) {
	f := newFixture()
	sr, err := f.svc.Ingest(context.Background(), "user-1", validInput())
	require.NoError(t, err)
	assert.Nil(t, sr.TVOCPPM)
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IngestInput)
		want   types.ErrorCode
	}{
		{"missing device", func(in *IngestInput) { in.DeviceID = "" }, types.ErrCodeValidationMissingField},
		{"missing temperature", func(in *IngestInput) { in.Temperature = nil }, types.ErrCodeValidationMissingField},
		{"missing humidity", func(in *IngestInput) { in.Humidity = nil }, types.ErrCodeValidationMissingField},
		{"missing light", func(in *IngestInput) { in.Light = nil }, types.ErrCodeValidationMissingField},
		{"missing noise", func(in *IngestInput) { in.Noise = nil }, types.ErrCodeValidationMissingField},
		{"temperature out of range", func(in *IngestInput) { in.Temperature = ptr(1000.0) }, types.ErrCodeValidationInvalidValue},
		{"humidity out of range", func(in *IngestInput) { in.Humidity = ptr(-1000.0) }, types.ErrCodeValidationInvalidValue},
		{"zero tvoc", func(in *IngestInput) { in.TVOCPPM = ptr(0) }, types.ErrCodeValidationInvalidValue},
		{"zero light", func(in *IngestInput) { in.Light = ptr(0) }, types.ErrCodeValidationInvalidValue},
		{"negative noise", func(in *IngestInput) { in.Noise = ptr(-3) }, types.ErrCodeValidationInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			in := validInput()
			tt.mutate(&in)

			_, err := f.svc.Ingest(context.Background(), "user-1", in)
			assert.Equal(t, tt.want, appCode(t, err))
			assert.Empty(t, f.readings.created)
			assert.Empty(t, f.devices.touched)
		})
	}
}

func TestIngest_BoundaryValuesAccepted(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Temperature = ptr(-999.99)
	in.Humidity = ptr(999.99)
	in.TVOCPPM = ptr(1)
	in.Light = ptr(1)
	in.Noise = ptr(1)

	_, err := f.svc.Ingest(context.Background(), "user-1", in)
	assert.NoError(t, err)
}

func TestIngest_OwnershipAndExistence(t *testing.T) {
	f := newFixture()

	in := validInput()
	in.DeviceID = "dev-2"
	_, err := f.svc.Ingest(context.Background(), "user-1", in)
	assert.Equal(t, types.ErrCodePermissionDeviceOwner, appCode(t, err))

	in.DeviceID = "dev-missing"
	_, err = f.svc.Ingest(context.Background(), "user-1", in)
	assert.Equal(t, types.ErrCodeNotFoundDevice, appCode(t, err))

	assert.Empty(t, f.readings.created)
}

func TestIngest_StoreFailure(t *testing.T) {
	f := newFixture()
	f.readings.createErr = types.NewAppError(types.ErrCodeInternalDB, "failed to create sensor reading", errors.New("conn reset"))

	_, err := f.svc.Ingest(context.Background(), "user-1", validInput())
	assert.Equal(t, types.ErrCodeInternalDB, appCode(t, err))
	assert.Empty(t, f.devices.touched, "device is only touched after the reading is stored")
}

func TestIngest_TouchFailureIsLogged(t *testing.T) {
	f := newFixture()
	f.devices.touchFn = func(string) error { return errors.New("deadlock detected") }

	sr, err := f.svc.Ingest(context.Background(), "user-1", validInput())
	require.NoError(t, err)
	assert.NotNil(t, sr)
	assert.Contains(t, f.logs.String(), "failed to update device last_seen_at")
	assert.Contains(t, f.logs.String(), `"device_id":"dev-1"`)
}

func TestIngestFromDevice(t *testing.T) {
	f := newFixture()

	in := validInput()
	in.DeviceID = "dev-2"
	sr, err := f.svc.IngestFromDevice(context.Background(), in)
	require.NoError(t, err, "device ingestion needs no owning user")
	assert.Equal(t, "dev-2", sr.DeviceID)

	in.DeviceID = "dev-idle"
	_, err = f.svc.IngestFromDevice(context.Background(), in)
	assert.Equal(t, types.ErrCodeConflictDeviceInactive, appCode(t, err))

	in.DeviceID = "dev-1"
	in.Noise = nil
	_, err = f.svc.IngestFromDevice(context.Background(), in)
	assert.Equal(t, types.ErrCodeValidationMissingField, appCode(t, err))
}

func TestLatest(t *testing.T) {
	f := newFixture()
	want := &types.SensorReading{ID: 9, DeviceID: "dev-1"}
	f.readings.latestFn = func(deviceID string) (*types.SensorReading, error) {
		assert.Equal(t, "dev-1", deviceID)
		return want, nil
	}

	got, err := f.svc.Latest(context.Background(), "user-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = f.svc.Latest(context.Background(), "user-1", "dev-2")
	assert.Equal(t, types.ErrCodePermissionDeviceOwner, appCode(t, err))

	_, err = f.svc.Latest(context.Background(), "user-1", "")
	assert.Equal(t, types.ErrCodeValidationMissingField, appCode(t, err))
}

func TestLatest_NotFoundPassesThrough(t *testing.T) {
	f := newFixture()
	f.readings.latestFn = func(string) (*types.SensorReading, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundReading, "No readings found for this device", nil)
	}

	_, err := f.svc.Latest(context.Background(), "user-1", "dev-1")
	assert.Equal(t, types.ErrCodeNotFoundReading, appCode(t, err))
}

func TestHistory_ExtendsEndToEndOfDay(t *testing.T) {
	f := newFixture()
	var gotStart, gotEnd time.Time
	f.readings.historyFn = func(deviceID string, start, end time.Time) ([]types.SensorReading, error) {
		gotStart, gotEnd = start, end
		return []types.SensorReading{{ID: 2}, {ID: 1}}, nil
	}

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)
	got, err := f.svc.History(context.Background(), "user-1", "dev-1", start, end)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, start, gotStart)
	assert.Equal(t, time.Date(2026, 10, 7, 23, 59, 59, 999999999, time.UTC), gotEnd)
}

func TestHistory_SameDayIsValid(t *testing.T) {
	f := newFixture()
	f.readings.historyFn = func(string, time.Time, time.Time) ([]types.SensorReading, error) {
		return []types.SensorReading{}, nil
	}
	day := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)

	got, err := f.svc.History(context.Background(), "user-1", "dev-1", day, day)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHistory_Errors(t *testing.T) {
	f := newFixture()
	start := time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.History(context.Background(), "user-1", "dev-1", start, end)
	assert.Equal(t, types.ErrCodeValidationInvalidDate, appCode(t, err))

	_, err = f.svc.History(context.Background(), "user-2", "dev-1", end, end)
	assert.Equal(t, types.ErrCodePermissionDeviceOwner, appCode(t, err))
}

func TestEndOfDay(t *testing.T) {
	kyiv := time.FixedZone("EET", 2*3600)
	got := EndOfDay(time.Date(2026, 12, 31, 8, 15, 0, 0, kyiv))
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 999999999, kyiv), got)
}
