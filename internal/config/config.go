// Package config defines the process configuration for the envmonitor
// services. Configuration is loaded once at startup and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> SecretProvider (Lowest)
//
// Any missing required value or invalid format aborts startup.
package config

import (
	"time"

	"envmonitor/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"envmonitor"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Weather       WeatherConfig
	MQTT          MQTTConfig
	Scheduler     SchedulerConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// WeatherConfig holds the outdoor weather provider settings. An empty APIKey
// is allowed: the provider then reports no data instead of failing.
type WeatherConfig struct {
	APIKey   SecretString  `envconfig:"WEATHERAPI_KEY"`
	BaseURL  string        `envconfig:"WEATHERAPI_BASE_URL" default:"https://api.weatherapi.com/v1" validate:"required,url"`
	Timeout  time.Duration `envconfig:"WEATHERAPI_TIMEOUT" default:"10s"`
	CacheTTL time.Duration `envconfig:"WEATHER_CACHE_TTL" default:"1h"`
}

// MQTTConfig holds the broker connection used by the ingest worker.
type MQTTConfig struct {
	Broker   string       `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883"`
	ClientID string       `envconfig:"MQTT_CLIENT_ID" default:"envmonitor-ingest"`
	Username string       `envconfig:"MQTT_USERNAME"`
	Password SecretString `envconfig:"MQTT_PASSWORD"`
	Topic    string       `envconfig:"MQTT_READINGS_TOPIC" default:"sensors/+/readings"`
	QoS      byte         `envconfig:"MQTT_QOS" default:"1" validate:"max=2"`
}

// SchedulerConfig tunes the periodic jobs.
type SchedulerConfig struct {
	GeneratorConcurrency int           `envconfig:"GENERATOR_CONCURRENCY" default:"4" validate:"min=1,max=64"`
	LockTTL              time.Duration `envconfig:"JOB_LOCK_TTL" default:"15m"`
}

// AWSConfig holds regional configuration for the metrics client.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"EnvMonitor"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSecretResolution indicates a failure when fetching secrets from the
	// SecretProvider.
	ErrSecretResolution ConfigErrorType = "SECRET_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
