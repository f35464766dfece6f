package types

import "time"

// Device is a registered sensor unit. Location is optional; a device without
// both coordinates is evaluated without outdoor context.
type Device struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"name"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Description *string    `json:"description,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HasLocation reports whether both coordinates are set.
func (d *Device) HasLocation() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// Location is a coordinate pair on the 2-decimal weather grid.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SensorReading is one ingestion event from one device. TVOCPPM is nil when
// the device did not measure it, which is distinct from a zero reading.
type SensorReading struct {
	ID               int64     `json:"id"`
	DeviceID         string    `json:"device_id"`
	Temperature      float64   `json:"temperature"`
	Humidity         float64   `json:"humidity"`
	TVOCPPM          *int      `json:"tvoc_ppm"`
	Light            int       `json:"light"`
	Noise            int       `json:"noise"`
	ReadingTimestamp time.Time `json:"reading_timestamp"`
	CreatedAt        time.Time `json:"created_at"`
}

// WeatherSample is one outdoor observation for a rounded coordinate pair.
type WeatherSample struct {
	ID                 int64         `json:"id"`
	Latitude           float64       `json:"latitude"`
	Longitude          float64       `json:"longitude"`
	LocationName       string        `json:"location_name"`
	OutdoorTemperature float64       `json:"outdoor_temperature"`
	OutdoorHumidity    *float64      `json:"outdoor_humidity"`
	OutdoorAQI         *int          `json:"outdoor_aqi"`
	OutdoorPM25        *float64      `json:"outdoor_pm25"`
	OutdoorPM10        *float64      `json:"outdoor_pm10"`
	WeatherCondition   string        `json:"weather_condition"`
	Source             WeatherSource `json:"source"`
	FetchedAt          time.Time     `json:"fetched_at"`
}

// Candidate is an evaluator's proposal before de-duplication and persistence.
type Candidate struct {
	Type     RecommendationType
	Title    string
	Message  string
	Priority Priority
	Metadata Metadata
}

// Recommendation is the persisted form of a Candidate.
type Recommendation struct {
	ID             string               `json:"id"`
	DeviceID       string               `json:"device_id"`
	UserID         string               `json:"user_id"`
	Type           RecommendationType   `json:"type"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	Priority       Priority             `json:"priority"`
	Status         RecommendationStatus `json:"status"`
	Metadata       Metadata             `json:"metadata"`
	AcknowledgedAt *time.Time           `json:"acknowledged_at"`
	DismissedAt    *time.Time           `json:"dismissed_at"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// RecommendationFilter narrows a recommendation listing for one user.
type RecommendationFilter struct {
	UserID   string
	DeviceID string
	Status   RecommendationStatus
	Limit    int
}
