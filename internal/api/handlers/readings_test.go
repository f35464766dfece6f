package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envmonitor/internal/readings"
	"envmonitor/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

type mockReadingService struct {
	ingestFn  func(ctx context.Context, userID string, in readings.IngestInput) (*types.SensorReading, error)
	latestFn  func(ctx context.Context, userID, deviceID string) (*types.SensorReading, error)
	historyFn func(ctx context.Context, userID, deviceID string, start, end time.Time) ([]types.SensorReading, error)
}

func (m *mockReadingService) Ingest(ctx context.Context, userID string, in readings.IngestInput) (*types.SensorReading, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, userID, in)
	}
	return &types.SensorReading{ID: 1, DeviceID: in.DeviceID}, nil
}

func (m *mockReadingService) Latest(ctx context.Context, userID, deviceID string) (*types.SensorReading, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, userID, deviceID)
	}
	return &types.SensorReading{ID: 1, DeviceID: deviceID}, nil
}

func (m *mockReadingService) History(ctx context.Context, userID, deviceID string, start, end time.Time) ([]types.SensorReading, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, deviceID, start, end)
	}
	return nil, nil
}

// =============================================================================
// Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// withCaller mimics core.CallerMiddleware for routers built in tests.
func withCaller(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = r.WithContext(types.WithCaller(r.Context(), types.Caller{UserID: userID}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func newReadingRouter(svc ReadingService, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(withCaller(userID))
	NewReadingHandler(svc, testLogger()).RegisterRoutes(r)
	return r
}

func doRequest(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

// =============================================================================
// Create
// =============================================================================

func TestReadingCreate_Success(t *testing.T) {
	var gotUser string
	var gotIn readings.IngestInput
	svc := &mockReadingService{
		ingestFn: func(_ context.Context, userID string, in readings.IngestInput) (*types.SensorReading, error) {
			gotUser, gotIn = userID, in
			return &types.SensorReading{ID: 42, DeviceID: in.DeviceID, Temperature: *in.Temperature}, nil
		},
	}

	rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodPost, "/sensor-readings/",
		`{"device_id":"dev-1","temperature":22.5,"humidity":40,"light":300,"noise":35}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "user-1", gotUser)
	assert.Equal(t, "dev-1", gotIn.DeviceID)
	assert.Nil(t, gotIn.TVOCPPM)

	body := decodeBody(t, rec)
	var sr types.SensorReading
	require.NoError(t, json.Unmarshal(body["data"], &sr))
	assert.Equal(t, int64(42), sr.ID)
	assert.Equal(t, 22.5, sr.Temperature)
}

func TestReadingCreate_RejectsUnknownField(t *testing.T) {
	called := false
	svc := &mockReadingService{
		ingestFn: func(context.Context, string, readings.IngestInput) (*types.SensorReading, error) {
			called = true
			return nil, nil
		},
	}

	rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodPost, "/sensor-readings/",
		`{"device_id":"dev-1","pressure":1013}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_invalid_json", errorCode(t, rec))
	assert.False(t, called)
}

func TestReadingCreate_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"forbidden", types.NewAppError(types.ErrCodePermissionDeviceOwner, "Unauthorized", nil), http.StatusForbidden, "permission_device_owner_mismatch"},
		{"missing field", types.NewAppError(types.ErrCodeValidationMissingField, "The noise field is required.", nil), http.StatusBadRequest, "validation_missing_required_field"},
		{"device not found", types.NewAppError(types.ErrCodeNotFoundDevice, "device not found", nil), http.StatusNotFound, "not_found_device"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_unexpected_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockReadingService{
				ingestFn: func(context.Context, string, readings.IngestInput) (*types.SensorReading, error) {
					return nil, tt.err
				},
			}
			rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodPost, "/sensor-readings/", `{"device_id":"dev-1"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestReadingHandlers_RequireCaller(t *testing.T) {
	h := newReadingRouter(&mockReadingService{}, "")
	for _, target := range []string{"/sensor-readings/current?device_id=dev-1", "/sensor-readings/history?device_id=dev-1&start_date=2024-01-01&end_date=2024-01-02"} {
		rec := doRequest(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
		assert.Equal(t, "auth_caller_missing", errorCode(t, rec))
	}
}

// =============================================================================
// Current
// =============================================================================

func TestReadingCurrent(t *testing.T) {
	var gotDevice string
	svc := &mockReadingService{
		latestFn: func(_ context.Context, userID, deviceID string) (*types.SensorReading, error) {
			gotDevice = deviceID
			return &types.SensorReading{ID: 9, DeviceID: deviceID}, nil
		},
	}

	rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodGet, "/sensor-readings/current?device_id=dev-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev-1", gotDevice)
	assert.Contains(t, rec.Body.String(), `"id":9`)
}

func TestReadingCurrent_NoReadings(t *testing.T) {
	svc := &mockReadingService{
		latestFn: func(context.Context, string, string) (*types.SensorReading, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReading, "No readings found for this device", nil)
		},
	}

	rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodGet, "/sensor-readings/current?device_id=dev-1", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No readings found for this device")
}

// =============================================================================
// History
// =============================================================================

func TestReadingHistory_ParsesDates(t *testing.T) {
	var gotStart, gotEnd time.Time
	svc := &mockReadingService{
		historyFn: func(_ context.Context, _, _ string, start, end time.Time) ([]types.SensorReading, error) {
			gotStart, gotEnd = start, end
			return []types.SensorReading{{ID: 2}, {ID: 1}}, nil
		},
	}

	rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodGet,
		"/sensor-readings/history?device_id=dev-1&start_date=2024-03-01&end_date=2024-03-05T12:00:00Z", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotStart.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)), "start = %s", gotStart)
	assert.True(t, gotEnd.Equal(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)), "end = %s", gotEnd)

	body := decodeBody(t, rec)
	assert.JSONEq(t, `2`, string(body["count"]))
}

func TestReadingHistory_EmptyIsArray(t *testing.T) {
	rec := doRequest(newReadingRouter(&mockReadingService{}, "user-1"), http.MethodGet,
		"/sensor-readings/history?device_id=dev-1&start_date=2024-03-01&end_date=2024-03-01", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[],"count":0}`, rec.Body.String())
}

func TestReadingHistory_BadDates(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantCode string
	}{
		{"missing start", "device_id=dev-1&end_date=2024-03-01", "validation_missing_required_field"},
		{"missing end", "device_id=dev-1&start_date=2024-03-01", "validation_missing_required_field"},
		{"garbage start", "device_id=dev-1&start_date=yesterday&end_date=2024-03-01", "validation_invalid_date"},
		{"impossible date", "device_id=dev-1&start_date=2024-02-30&end_date=2024-03-01", "validation_invalid_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockReadingService{
				historyFn: func(context.Context, string, string, time.Time, time.Time) ([]types.SensorReading, error) {
					called = true
					return nil, nil
				},
			}
			rec := doRequest(newReadingRouter(svc, "user-1"), http.MethodGet, "/sensor-readings/history?"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
			assert.False(t, called)
		})
	}
}
