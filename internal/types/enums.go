package types

// RecommendationType identifies which condition check produced a recommendation.
// The set is closed; the database enforces it with a CHECK constraint.
type RecommendationType string

const (
	RecTemperature RecommendationType = "temperature"
	RecHumidity    RecommendationType = "humidity"
	RecVentilate   RecommendationType = "ventilate"
	RecLighting    RecommendationType = "lighting"
	RecNoise       RecommendationType = "noise"
	RecBreak       RecommendationType = "break"
)

// Valid reports whether t is one of the known recommendation types.
func (t RecommendationType) Valid() bool {
	switch t {
	case RecTemperature, RecHumidity, RecVentilate, RecLighting, RecNoise, RecBreak:
		return true
	}
	return false
}

// Priority ranks how urgently a recommendation should be acted upon.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// RecommendationStatus is the lifecycle state of a persisted recommendation.
// pending is the only initial state; acknowledged and dismissed are terminal.
type RecommendationStatus string

const (
	StatusPending      RecommendationStatus = "pending"
	StatusAcknowledged RecommendationStatus = "acknowledged"
	StatusDismissed    RecommendationStatus = "dismissed"
)

// Valid reports whether s is a known status.
func (s RecommendationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusDismissed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s RecommendationStatus) Terminal() bool {
	return s == StatusAcknowledged || s == StatusDismissed
}

// WeatherSource identifies the upstream provider of an outdoor weather sample.
type WeatherSource string

const (
	SourceOpenWeatherMap WeatherSource = "openweathermap"
	SourceAirVisual      WeatherSource = "airvisual"
	SourceIQAir          WeatherSource = "iqair"
	SourceWeatherAPI     WeatherSource = "weatherapi"
)
