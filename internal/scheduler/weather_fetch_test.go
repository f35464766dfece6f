package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"envmonitor/internal/types"
)

var fetchNow = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

type mockLocations struct {
	locs    []types.Location
	listErr error
	devices int
}

func (m *mockLocations) ListActiveLocations(context.Context) ([]types.Location, error) {
	return m.locs, m.listErr
}

func (m *mockLocations) CountActiveWithLocation(context.Context) (int, error) {
	return m.devices, nil
}

type mockSamples struct {
	recentFn func(lat, lon, radius float64, since time.Time) (bool, error)
	createFn func(w *types.WeatherSample) error
	created  []*types.WeatherSample
}

func (m *mockSamples) RecentExists(_ context.Context, lat, lon, radius float64, since time.Time) (bool, error) {
	if m.recentFn == nil {
		return false, nil
	}
	return m.recentFn(lat, lon, radius, since)
}

func (m *mockSamples) Create(_ context.Context, w *types.WeatherSample) error {
	if m.createFn != nil {
		if err := m.createFn(w); err != nil {
			return err
		}
	}
	m.created = append(m.created, w)
	return nil
}

type mockProvider struct {
	calls   []types.Location
	fetchFn func(lat, lon float64) (*types.WeatherSample, error)
}

func (m *mockProvider) CurrentWeather(_ context.Context, lat, lon float64) (*types.WeatherSample, error) {
	m.calls = append(m.calls, types.Location{Latitude: lat, Longitude: lon})
	if m.fetchFn != nil {
		return m.fetchFn(lat, lon)
	}
	return &types.WeatherSample{Latitude: lat, Longitude: lon, LocationName: "Kyiv", Source: types.SourceWeatherAPI}, nil
}

func TestFetchAll_NoLocations(t *testing.T) {
	svc := NewWeatherFetchService(&mockLocations{}, &mockSamples{}, &mockProvider{}, nil)

	sum, err := svc.FetchAll(context.Background(), fetchNow)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Locations)
	assert.Equal(t, "No active devices with location data found.", sum.String())
}

func TestFetchAll_FetchesAndSkips(t *testing.T) {
	locs := &mockLocations{
		locs:    []types.Location{{Latitude: 50.45, Longitude: 30.52}, {Latitude: 40.71, Longitude: -74.01}},
		devices: 3,
	}
	samples := &mockSamples{
		recentFn: func(lat, _, radius float64, since time.Time) (bool, error) {
			assert.Equal(t, 0.01, radius)
			assert.Equal(t, fetchNow.Add(-time.Hour), since)
			return lat == 40.71, nil
		},
	}
	provider := &mockProvider{}
	svc := NewWeatherFetchService(locs, samples, provider, nil)

	sum, err := svc.FetchAll(context.Background(), fetchNow)
	require.NoError(t, err)
	assert.Equal(t, FetchSummary{Locations: 2, Fetched: 1, Skipped: 1, Devices: 3}, sum)
	assert.Equal(t, []types.Location{{Latitude: 50.45, Longitude: 30.52}}, provider.calls)
	require.Len(t, samples.created, 1)
	assert.Equal(t, "Completed: Fetched 1 new weather records, skipped 1 (recent data exists) for 3 active devices.", sum.String())
}

func TestFetchAll_FailuresDoNotAbort(t *testing.T) {
	locs := &mockLocations{
		locs: []types.Location{{Latitude: 1, Longitude: 1}, {Latitude: 2, Longitude: 2}, {Latitude: 3, Longitude: 3}, {Latitude: 4, Longitude: 4}},
	}
	samples := &mockSamples{
		recentFn: func(lat, _, _ float64, _ time.Time) (bool, error) {
			if lat == 1 {
				return false, errors.New("db timeout")
			}
			return false, nil
		},
		createFn: func(w *types.WeatherSample) error {
			if w.Latitude == 3 {
				return errors.New("insert failed")
			}
			return nil
		},
	}
	provider := &mockProvider{fetchFn: func(lat, lon float64) (*types.WeatherSample, error) {
		if lat == 2 {
			return nil, nil
		}
		return &types.WeatherSample{Latitude: lat, Longitude: lon}, nil
	}}
	svc := NewWeatherFetchService(locs, samples, provider, nil)

	sum, err := svc.FetchAll(context.Background(), fetchNow)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, 1, sum.Fetched)
}

func TestFetchAll_ListFailure(t *testing.T) {
	svc := NewWeatherFetchService(&mockLocations{listErr: errors.New("down")}, &mockSamples{}, &mockProvider{}, nil)

	_, err := svc.FetchAll(context.Background(), fetchNow)
	require.Error(t, err)
}

func TestFetchAll_StopsOnCancelledContext(t *testing.T) {
	locs := &mockLocations{locs: []types.Location{{Latitude: 1, Longitude: 1}}}
	provider := &mockProvider{}
	svc := NewWeatherFetchService(locs, &mockSamples{}, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.FetchAll(ctx, fetchNow)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, provider.calls)
}
