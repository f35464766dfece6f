package types

// Telemetry metric names for CloudWatch.
const (
	// Metric Names
	MetricAPILatency             = "APILatency"
	MetricAPIRequestCount        = "APIRequestCount"
	MetricJobDuration            = "JobDuration"
	MetricJobFailure             = "JobFailure"
	MetricRecommendationsCreated = "RecommendationsCreated"
	MetricRecommendationsSkipped = "RecommendationsSkipped"
	MetricDevicesFailed          = "DevicesFailed"
	MetricWeatherFetched         = "WeatherFetched"
	MetricWeatherSkipped         = "WeatherSkipped"
	MetricWeatherFailed          = "WeatherFailed"

	// Dimension Keys
	DimTask     = "Task"
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"

	// Metric Namespace
	MetricNamespace = "EnvMonitor"
)
