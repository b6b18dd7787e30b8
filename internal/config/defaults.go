package config

const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultEnvironment = "development"
	DefaultAPIPrefix   = "/api/v1"
	DefaultLogLevel    = "info"

	// DefaultUpperLimitQueryReturnRows bounds every query execution the
	// pipeline performs, including agent tool calls. Never unbounded.
	DefaultUpperLimitQueryReturnRows = 50

	// DefaultObservationMaxLength bounds persisted tool observations in
	// the reasoning trace.
	DefaultObservationMaxLength = 2000

	DefaultAgentMaxIterations = 15
	DefaultAgentMaxTokens     = 4096
	DefaultAgentTimeout       = 300 // seconds

	DefaultQueryTimeoutMs = 60000

	DefaultRateLimitPerMinute = 60

	DefaultErrorMaxLength = 2000
)

var DefaultAPIKeyHeader = "X-API-Key"
