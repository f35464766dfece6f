package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"envmonitor/internal/types"
)

const maxErrorBody = 4 << 10

// WeatherAPIConfig holds the weatherapi.com connection settings.
type WeatherAPIConfig struct {
	APIKey  types.SecretString
	BaseURL string
	Timeout time.Duration
}

// WeatherAPIClient fetches current conditions and air quality from
// weatherapi.com. It never returns an error for upstream problems: the
// failure is logged and the sample is reported as unavailable (nil).
type WeatherAPIClient struct {
	base   *BaseClient
	cfg    WeatherAPIConfig
	logger *slog.Logger
	clock  types.Clock
}

// NewWeatherAPIClient creates a WeatherAPIClient. opts are passed to the
// underlying BaseClient.
func NewWeatherAPIClient(cfg WeatherAPIConfig, logger *slog.Logger, opts ...BaseClientOption) *WeatherAPIClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	base := []BaseClientOption{
		WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		WithUserAgent("envmonitor/1.0"),
	}
	return &WeatherAPIClient{
		base:   NewBaseClient("weatherapi", append(base, opts...)...),
		cfg:    cfg,
		logger: logger,
		clock:  types.RealClock{},
	}
}

type weatherAPIResponse struct {
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Current struct {
		TempC     *float64 `json:"temp_c"`
		Humidity  *float64 `json:"humidity"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
		AirQuality struct {
			USEPAIndex *int     `json:"us-epa-index"`
			PM25       *float64 `json:"pm2_5"`
			PM10       *float64 `json:"pm10"`
		} `json:"air_quality"`
	} `json:"current"`
}

// CurrentWeather returns the current sample for (lat, lon), or nil when the
// key is not configured or the upstream call fails. The sample carries the
// requested coordinates, not the ones the provider resolved.
func (c *WeatherAPIClient) CurrentWeather(ctx context.Context, lat, lon float64) (*types.WeatherSample, error) {
	if !c.cfg.APIKey.IsSet() {
		c.logger.WarnContext(ctx, "WeatherAPI key not configured")
		return nil, nil
	}

	q := url.Values{}
	q.Set("key", c.cfg.APIKey.Unmask())
	q.Set("q", formatCoord(lat)+","+formatCoord(lon))
	q.Set("aqi", "yes")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/current.json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weatherapi request: %w", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "WeatherAPI exception",
			"message", err.Error(),
			"latitude", lat,
			"longitude", lon,
		)
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.ErrorContext(ctx, "WeatherAPI request failed",
			"status", resp.StatusCode,
			"body", string(body),
			"latitude", lat,
			"longitude", lon,
		)
		return nil, nil
	}

	var payload weatherAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.ErrorContext(ctx, "WeatherAPI exception",
			"message", err.Error(),
			"latitude", lat,
			"longitude", lon,
		)
		return nil, nil
	}
	if payload.Current.TempC == nil {
		c.logger.ErrorContext(ctx, "WeatherAPI response missing temperature",
			"latitude", lat,
			"longitude", lon,
		)
		return nil, nil
	}

	name := payload.Location.Name
	if name == "" {
		name = "Unknown"
	}
	return &types.WeatherSample{
		Latitude:           lat,
		Longitude:          lon,
		LocationName:       name,
		OutdoorTemperature: *payload.Current.TempC,
		OutdoorHumidity:    payload.Current.Humidity,
		OutdoorAQI:         payload.Current.AirQuality.USEPAIndex,
		OutdoorPM25:        payload.Current.AirQuality.PM25,
		OutdoorPM10:        payload.Current.AirQuality.PM10,
		WeatherCondition:   payload.Current.Condition.Text,
		Source:             types.SourceWeatherAPI,
		FetchedAt:          c.clock.Now(),
	}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
